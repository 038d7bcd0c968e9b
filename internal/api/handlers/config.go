package handlers

import (
	"net/http"

	"github.com/mcpbridge/gateway/pkg/models"
)

// GetConfig handles GET /api/config.
func (h *Handlers) GetConfig(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, h.Store.Get())
}

// configPatchRequest carries spec.md §6.1's "full or patch" PUT body:
// every field is optional, and any field present replaces its Config
// counterpart wholesale. Endpoints/Services/CustomTools still have their
// own dedicated add/remove routes for the common case (adding one there
// also starts its live Connection or Service), but a document submitted
// here is validated in full before anything is applied — a malformed
// endpoint URL is rejected with InvalidEndpoint before the file is
// touched or the live managers are told anything changed. A caller that
// replaces endpoints/services wholesale through this route is
// responsible for also calling /api/services/restart (or equivalent) to
// bring the live managers in line with the new document; Store.Update
// itself only ever commits documents that pass validation.
type configPatchRequest struct {
	Endpoints   []string                         `json:"endpoints,omitempty"`
	Services    map[string]models.ServiceConfig  `json:"services,omitempty"`
	Tools       map[string]models.ToolSetting    `json:"tools,omitempty"`
	Connection  *models.ConnectionConfig         `json:"connection,omitempty"`
	Platforms   map[string]map[string]string     `json:"platforms,omitempty"`
	CustomTools []models.CustomTool              `json:"customTools,omitempty"`
}

// PutConfig handles PUT /api/config.
func (h *Handlers) PutConfig(w http.ResponseWriter, r *http.Request) {
	var req configPatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	cfg, err := h.Store.Update(func(c *models.Config) {
		if req.Endpoints != nil {
			c.Endpoints = req.Endpoints
		}
		if req.Services != nil {
			c.Services = req.Services
		}
		if req.Tools != nil {
			c.Tools = req.Tools
		}
		if req.Connection != nil {
			c.Connection = *req.Connection
		}
		if req.Platforms != nil {
			c.Platforms = req.Platforms
		}
		if req.CustomTools != nil {
			c.CustomTools = req.CustomTools
		}
	})
	if err != nil {
		writeError(w, err)
		return
	}

	h.Services.Refresh()
	writeSuccess(w, http.StatusOK, cfg)
}

// ReloadConfig handles POST /api/config/reload.
func (h *Handlers) ReloadConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Store.Reload()
	if err != nil {
		writeError(w, err)
		return
	}
	h.Services.Refresh()
	writeSuccess(w, http.StatusOK, cfg)
}

// ConfigExists handles GET /api/config/exists.
func (h *Handlers) ConfigExists(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"exists": h.Store.Exists(),
		"path":   h.Store.Path(),
	})
}

// StartServices handles POST /api/services/start: (re)starts every
// configured service and endpoint that isn't currently running.
func (h *Handlers) StartServices(w http.ResponseWriter, r *http.Request) {
	h.Services.Start(r.Context())
	h.Endpoints.Start(r.Context())
	writeSuccessMsg(w, http.StatusOK, nil, "services started")
}

// StopServices handles POST /api/services/stop.
func (h *Handlers) StopServices(w http.ResponseWriter, r *http.Request) {
	h.Endpoints.StopAll(r.Context())
	h.Services.StopAll()
	writeSuccessMsg(w, http.StatusOK, nil, "services stopped")
}

// RestartServices handles POST /api/services/restart.
func (h *Handlers) RestartServices(w http.ResponseWriter, r *http.Request) {
	h.Endpoints.StopAll(r.Context())
	h.Services.StopAll()
	h.Services.Start(r.Context())
	h.Endpoints.Start(r.Context())
	writeSuccessMsg(w, http.StatusOK, nil, "services restarted")
}
