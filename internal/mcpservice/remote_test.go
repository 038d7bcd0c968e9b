package mcpservice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mcpbridge/gateway/pkg/models"
)

func TestRemoteTransportCallPlainJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			return // start()'s reachability probe
		}
		var req map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req["method"] != "tools/list" {
			t.Fatalf("method = %v, want tools/list", req["method"])
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req["id"],
			"result":  map[string]interface{}{"tools": []interface{}{}},
		})
	}))
	defer srv.Close()

	tp := newRemoteTransport("remote-svc", models.ServiceConfig{Kind: models.ServiceStreamableHTTP, URL: srv.URL})
	if err := tp.start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer tp.stop(true)

	result, err := tp.call(context.Background(), "tools/list", map[string]interface{}{})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if string(result.raw) != `{"tools":[]}` {
		t.Fatalf("raw = %s, want {\"tools\":[]}", result.raw)
	}
}

func TestRemoteTransportCallSSEFraming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("event: message\n"))
		w.Write([]byte(`data: {"jsonrpc":"2.0","id":1,"result":{"ok":true}}` + "\n\n"))
	}))
	defer srv.Close()

	tp := newRemoteTransport("sse-svc", models.ServiceConfig{Kind: models.ServiceSSE, URL: srv.URL})
	if err := tp.start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer tp.stop(true)

	result, err := tp.call(context.Background(), "tools/call", map[string]interface{}{"name": "x"})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if string(result.raw) != `{"ok":true}` {
		t.Fatalf("raw = %s, want {\"ok\":true}", result.raw)
	}
}

func TestRemoteTransportCallPropagatesJSONRPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      1,
			"error":   map[string]interface{}{"code": -32601, "message": "method not found"},
		})
	}))
	defer srv.Close()

	tp := newRemoteTransport("err-svc", models.ServiceConfig{Kind: models.ServiceStreamableHTTP, URL: srv.URL})
	if err := tp.start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer tp.stop(true)

	if _, err := tp.call(context.Background(), "tools/call", map[string]interface{}{}); err == nil {
		t.Fatalf("expected error from jsonrpc error response")
	}
}

func TestRemoteTransportHeadersApplied(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": 1, "result": map[string]interface{}{}})
	}))
	defer srv.Close()

	tp := newRemoteTransport("auth-svc", models.ServiceConfig{
		Kind:    models.ServiceStreamableHTTP,
		URL:     srv.URL,
		Headers: map[string]string{"Authorization": "Bearer secret-token"},
	})
	if err := tp.start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer tp.stop(true)

	if _, err := tp.call(context.Background(), "ping", nil); err != nil {
		t.Fatalf("call: %v", err)
	}
	if gotAuth != "Bearer secret-token" {
		t.Fatalf("Authorization header = %q, want Bearer secret-token", gotAuth)
	}
}
