package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mcpbridge/gateway/internal/gwerrors"
	"github.com/mcpbridge/gateway/pkg/models"
)

type callToolRequest struct {
	ServiceName string                 `json:"serviceName"`
	ToolName    string                 `json:"toolName"`
	Args        map[string]interface{} `json:"args"`
}

// CallTool handles POST /api/tools/call.
func (h *Handlers) CallTool(w http.ResponseWriter, r *http.Request) {
	var req callToolRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.ToolName == "" {
		writeError(w, gwerrors.New(gwerrors.InvalidRequest, "toolName is required"))
		return
	}

	namespacedName := req.ToolName
	if req.ServiceName != "" && req.ServiceName != models.ReservedCustomServiceName {
		namespacedName = models.NamespacedName(req.ServiceName, req.ToolName)
	}

	raw, err := h.Services.CallTool(r.Context(), namespacedName, req.Args)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, json.RawMessage(raw))
}

// ListTools handles GET /api/tools/list?status=enabled|disabled|all.
func (h *Handlers) ListTools(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("status")
	all := h.Services.GetAllTools()

	list := make([]models.Tool, 0, len(all))
	for _, tool := range all {
		switch filter {
		case "enabled":
			if !tool.Enabled {
				continue
			}
		case "disabled":
			if tool.Enabled {
				continue
			}
		}
		list = append(list, tool)
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"list":  list,
		"total": len(list),
	})
}

type customToolRequest struct {
	Workflow          models.CustomToolHandler `json:"workflow"`
	CustomName        string                   `json:"customName,omitempty"`
	CustomDescription string                   `json:"customDescription,omitempty"`
	ParameterConfig   map[string]interface{}   `json:"parameterConfig,omitempty"`
}

// CreateCustomTool handles POST /api/tools/custom.
func (h *Handlers) CreateCustomTool(w http.ResponseWriter, r *http.Request) {
	var req customToolRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.CustomName == "" {
		writeError(w, gwerrors.New(gwerrors.InvalidRequest, "customName is required"))
		return
	}

	schema := req.ParameterConfig
	if schema == nil {
		schema = map[string]interface{}{"type": "object"}
	}

	tool := models.CustomTool{
		Name:        req.CustomName,
		Description: req.CustomDescription,
		InputSchema: schema,
		Handler:     req.Workflow,
	}
	if err := h.Services.AddCustomTool(tool); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{"tool": tool})
}

// RemoveCustomTool handles DELETE /api/tools/custom/:toolName.
func (h *Handlers) RemoveCustomTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "toolName")
	if err := h.Services.RemoveCustomTool(name); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{"toolName": name, "operation": "removed"})
}
