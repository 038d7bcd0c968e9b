// Package handlers implements the gateway's HTTP handlers (C9): thin
// adapters that decode a request, call into C5 (servicemgr), C6/C7
// (endpoint), C1 (configstore) or C8 (notify), and translate the
// result into the unified response envelope.
//
// Grounded on the teacher's internal/api/handlers/handlers.go for the
// Handlers-struct-of-dependencies shape and its respondJSON/respondError
// helpers, generalized here into the envelope spec.md §6.1 requires:
// success as {success:true, data, message?}, error as
// {error:{code, message, details?}} with the status from gwerrors.Status.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/mcpbridge/gateway/internal/configstore"
	"github.com/mcpbridge/gateway/internal/endpoint"
	"github.com/mcpbridge/gateway/internal/gwerrors"
	"github.com/mcpbridge/gateway/internal/notify"
	"github.com/mcpbridge/gateway/internal/servicemgr"
)

// Handlers holds every dependency the HTTP layer dispatches into.
type Handlers struct {
	Store      *configstore.Store
	Services   *servicemgr.Manager
	Endpoints  *endpoint.Manager
	Notify     *notify.Service
}

// New constructs a Handlers with its four component dependencies.
func New(store *configstore.Store, services *servicemgr.Manager, endpoints *endpoint.Manager, notify *notify.Service) *Handlers {
	return &Handlers{Store: store, Services: services, Endpoints: endpoints, Notify: notify}
}

type successEnvelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

type errorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeSuccess(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, successEnvelope{Success: true, Data: data})
}

func writeSuccessMsg(w http.ResponseWriter, status int, data interface{}, message string) {
	writeJSON(w, status, successEnvelope{Success: true, Data: data, Message: message})
}

// writeError translates a gwerrors.Error (or any error — unknowns map
// to InternalError) into the error envelope and its HTTP status.
func writeError(w http.ResponseWriter, err error) {
	status := gwerrors.Status(err)
	writeJSON(w, status, errorEnvelope{Error: errorBody{
		Code:    string(gwerrors.KindOf(err)),
		Message: err.Error(),
		Details: gwerrors.DetailsOf(err),
	}})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return gwerrors.Wrap(gwerrors.InvalidRequest, "malformed request body", err)
	}
	return nil
}
