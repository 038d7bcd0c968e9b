package servicemgr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/mcpbridge/gateway/internal/configstore"
	"github.com/mcpbridge/gateway/internal/eventbus"
	"github.com/mcpbridge/gateway/internal/gwerrors"
	"github.com/mcpbridge/gateway/pkg/models"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	bus := eventbus.New()
	store, err := configstore.Load(filepath.Join(dir, "cfg.json"), bus)
	if err != nil {
		t.Fatalf("configstore.Load: %v", err)
	}
	return New(store, bus)
}

func TestCallToolUnknownNameFails(t *testing.T) {
	m := newTestManager(t)
	m.Start(context.Background())

	_, err := m.CallTool(context.Background(), "ghost__tool", nil)
	if gwerrors.KindOf(err) != gwerrors.ServiceOrToolNotFound {
		t.Fatalf("kind = %v, want ServiceOrToolNotFound", gwerrors.KindOf(err))
	}
}

func TestAddServiceRejectsDuplicateName(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	cfg := models.ServiceConfig{Kind: models.ServiceStdio, Command: "does-not-exist-binary"}
	if err := m.AddService(ctx, "calc", cfg); err != nil {
		t.Fatalf("AddService: %v", err)
	}
	err := m.AddService(ctx, "calc", cfg)
	if gwerrors.KindOf(err) != gwerrors.ServerAlreadyExists {
		t.Fatalf("kind = %v, want ServerAlreadyExists", gwerrors.KindOf(err))
	}
}

func TestRemoveServiceUnknownFails(t *testing.T) {
	m := newTestManager(t)
	m.Start(context.Background())

	_, err := m.RemoveService(context.Background(), "ghost", true, true)
	if gwerrors.KindOf(err) != gwerrors.ServerNotFound {
		t.Fatalf("kind = %v, want ServerNotFound", gwerrors.KindOf(err))
	}
}

func TestCustomToolDisabledFailsFastWithoutOutboundCall(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	m := newTestManager(t)
	ct := models.CustomTool{
		Name:        "sendEmail",
		Description: "send an email",
		InputSchema: map[string]interface{}{"type": "object"},
		Handler:     models.CustomToolHandler{Platform: "zapier", Config: map[string]interface{}{"endpoint": srv.URL}},
	}
	if err := m.AddCustomTool(ct); err != nil {
		t.Fatalf("AddCustomTool: %v", err)
	}
	if err := m.SetToolEnabled("sendEmail", false); err != nil {
		t.Fatalf("SetToolEnabled: %v", err)
	}

	_, err := m.CallTool(context.Background(), "sendEmail", map[string]interface{}{})
	if gwerrors.KindOf(err) != gwerrors.ToolDisabled {
		t.Fatalf("kind = %v, want ToolDisabled", gwerrors.KindOf(err))
	}
	if called {
		t.Fatalf("expected no outbound call for a disabled tool")
	}
}

func TestCustomToolHappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	m := newTestManager(t)
	ct := models.CustomTool{
		Name:        "ping",
		Description: "ping a webhook",
		InputSchema: map[string]interface{}{"type": "object"},
		Handler:     models.CustomToolHandler{Platform: "zapier", Config: map[string]interface{}{"endpoint": srv.URL}},
	}
	if err := m.AddCustomTool(ct); err != nil {
		t.Fatalf("AddCustomTool: %v", err)
	}
	if _, err := m.store.Update(func(c *models.Config) {
		c.Platforms["zapier"] = map[string]string{"token": "tok"}
	}); err != nil {
		t.Fatalf("Update platforms: %v", err)
	}

	raw, err := m.CallTool(context.Background(), "ping", map[string]interface{}{})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if decoded["ok"] != true {
		t.Fatalf("decoded = %v, want ok:true", decoded)
	}

	var found *models.Tool
	for _, tool := range m.GetAllTools() {
		if tool.NamespacedName == "ping" {
			t := tool
			found = &t
		}
	}
	if found == nil {
		t.Fatalf("ping tool not found in registry")
	}
	if found.CallCount != 1 {
		t.Fatalf("CallCount = %d, want 1", found.CallCount)
	}
	if found.LastCalledAt == nil {
		t.Fatalf("LastCalledAt = nil, want non-nil after a call")
	}
}
