package handlers

import (
	"net/http"

	"github.com/mcpbridge/gateway/internal/gwerrors"
)

type endpointRequest struct {
	Endpoint string `json:"endpoint"`
}

func (h *Handlers) decodeEndpointRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req endpointRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return "", false
	}
	if req.Endpoint == "" {
		writeError(w, gwerrors.New(gwerrors.InvalidEndpoint, "endpoint is required"))
		return "", false
	}
	return req.Endpoint, true
}

// AddEndpoint handles POST /api/endpoint/add.
func (h *Handlers) AddEndpoint(w http.ResponseWriter, r *http.Request) {
	url, ok := h.decodeEndpointRequest(w, r)
	if !ok {
		return
	}
	if err := h.Endpoints.Add(r.Context(), url); err != nil {
		writeError(w, err)
		return
	}
	h.writeEndpointState(w, url)
}

// RemoveEndpoint handles DELETE /api/endpoint/remove.
func (h *Handlers) RemoveEndpoint(w http.ResponseWriter, r *http.Request) {
	url, ok := h.decodeEndpointRequest(w, r)
	if !ok {
		return
	}
	if err := h.Endpoints.Remove(r.Context(), url); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{"endpoint": url, "operation": "remove"})
}

// ConnectEndpoint handles POST /api/endpoint/connect.
func (h *Handlers) ConnectEndpoint(w http.ResponseWriter, r *http.Request) {
	url, ok := h.decodeEndpointRequest(w, r)
	if !ok {
		return
	}
	if err := h.Endpoints.Connect(r.Context(), url); err != nil {
		writeError(w, err)
		return
	}
	h.writeEndpointState(w, url)
}

// DisconnectEndpoint handles POST /api/endpoint/disconnect.
func (h *Handlers) DisconnectEndpoint(w http.ResponseWriter, r *http.Request) {
	url, ok := h.decodeEndpointRequest(w, r)
	if !ok {
		return
	}
	if err := h.Endpoints.Disconnect(r.Context(), url); err != nil {
		writeError(w, err)
		return
	}
	h.writeEndpointState(w, url)
}

// ReconnectEndpoint handles POST /api/endpoint/reconnect.
func (h *Handlers) ReconnectEndpoint(w http.ResponseWriter, r *http.Request) {
	url, ok := h.decodeEndpointRequest(w, r)
	if !ok {
		return
	}
	if err := h.Endpoints.Reconnect(r.Context(), url); err != nil {
		writeError(w, err)
		return
	}
	h.writeEndpointState(w, url)
}

// EndpointStatus handles POST /api/endpoint/status.
func (h *Handlers) EndpointStatus(w http.ResponseWriter, r *http.Request) {
	url, ok := h.decodeEndpointRequest(w, r)
	if !ok {
		return
	}
	h.writeEndpointState(w, url)
}

func (h *Handlers) writeEndpointState(w http.ResponseWriter, url string) {
	state, err := h.Endpoints.GetState(url)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, state)
}
