package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mcpbridge/gateway/internal/gwerrors"
	"github.com/mcpbridge/gateway/pkg/models"
)

type createServiceRequest struct {
	Name   string              `json:"name"`
	Config models.ServiceConfig `json:"config"`
}

// CreateService handles POST /api/mcp-servers.
func (h *Handlers) CreateService(w http.ResponseWriter, r *http.Request) {
	var req createServiceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Name == "" {
		writeError(w, gwerrors.New(gwerrors.InvalidServiceName, "name is required"))
		return
	}
	if err := h.Services.AddService(r.Context(), req.Name, req.Config); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{"name": req.Name})
}

// RemoveService handles DELETE /api/mcp-servers/:name.
func (h *Handlers) RemoveService(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	affected, err := h.Services.RemoveService(r.Context(), name, true, true)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"name":          name,
		"operation":     "removed",
		"affectedTools": affected,
	})
}

// ServiceStatus handles GET /api/mcp-servers/:name/status.
func (h *Handlers) ServiceStatus(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	state, err := h.Services.ServiceStatus(name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, state)
}

// ServiceTools handles GET /api/mcp-servers/:name/tools.
func (h *Handlers) ServiceTools(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	tools, err := h.Services.ServiceTools(name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"serviceName": name,
		"tools":       tools,
		"count":       len(tools),
	})
}

// UpdateServiceConfig handles PUT /api/mcp-servers/:name/config: removes
// and re-adds the service under the same name with the new config, the
// simplest way to apply a config change without a dedicated in-place
// reconfigure path on mcpservice.Service.
func (h *Handlers) UpdateServiceConfig(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var cfg models.ServiceConfig
	if err := decodeJSON(r, &cfg); err != nil {
		writeError(w, err)
		return
	}

	if _, err := h.Services.RemoveService(r.Context(), name, true, true); err != nil && gwerrors.KindOf(err) != gwerrors.ServerNotFound {
		writeError(w, err)
		return
	}
	if err := h.Services.AddService(r.Context(), name, cfg); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{"name": name})
}

// TestConnection handles POST /api/mcp-servers/test-connection.
func (h *Handlers) TestConnection(w http.ResponseWriter, r *http.Request) {
	var cfg models.ServiceConfig
	if err := decodeJSON(r, &cfg); err != nil {
		writeError(w, err)
		return
	}
	result := h.Services.TestConnection(r.Context(), cfg)
	writeSuccess(w, http.StatusOK, result)
}
