package configstore

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mcpbridge/gateway/internal/eventbus"
	"github.com/mcpbridge/gateway/internal/gwerrors"
	"github.com/mcpbridge/gateway/pkg/models"
)

func newTestStore(t *testing.T) (*Store, string, *eventbus.Bus) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "mcpgateway.config.json")
	bus := eventbus.New()
	s, err := Load(path, bus)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s, path, bus
}

func TestLoadSeedsDefaultConfigWhenMissing(t *testing.T) {
	s, path, _ := newTestStore(t)

	if !s.Exists() {
		t.Fatalf("expected seeded config file at %s", path)
	}
	cfg := s.Get()
	if len(cfg.Endpoints) != 0 || len(cfg.Services) != 0 {
		t.Fatalf("expected empty seeded config, got %+v", cfg)
	}
}

func TestUpdateRoundTrip(t *testing.T) {
	s, path, _ := newTestStore(t)

	if _, err := s.AddEndpoint("wss://example.test/mcp"); err != nil {
		t.Fatalf("AddEndpoint: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config file: %v", err)
	}
	var onDisk models.Config
	if err := json.Unmarshal(raw, &onDisk); err != nil {
		t.Fatalf("unmarshal on-disk config: %v", err)
	}
	if len(onDisk.Endpoints) != 1 || onDisk.Endpoints[0] != "wss://example.test/mcp" {
		t.Fatalf("on-disk endpoints = %v, want [wss://example.test/mcp]", onDisk.Endpoints)
	}

	got := s.Get()
	if len(got.Endpoints) != 1 || got.Endpoints[0] != "wss://example.test/mcp" {
		t.Fatalf("in-memory endpoints = %v, want [wss://example.test/mcp]", got.Endpoints)
	}
}

func TestUpdateRejectsInvalidResultLeavesFileUntouched(t *testing.T) {
	s, path, bus := newTestStore(t)

	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config file: %v", err)
	}

	unsub := bus.Subscribe(eventbus.TopicConfigChanged, func(interface{}) {
		t.Fatalf("config:changed must not be published on a failed update")
	})
	defer unsub()

	_, err = s.Update(func(c *models.Config) {
		c.Services["bad name!"] = models.ServiceConfig{Kind: models.ServiceStdio, Command: "echo"}
	})
	if err == nil {
		t.Fatalf("expected validation error for invalid service name")
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config file after failed update: %v", err)
	}
	if string(before) != string(after) {
		t.Fatalf("config file changed after a failed update:\nbefore=%s\nafter=%s", before, after)
	}

	cfg := s.Get()
	if len(cfg.Services) != 0 {
		t.Fatalf("in-memory config mutated after a failed update: %+v", cfg)
	}
}

func TestUpdatePublishesConfigChangedOnSuccess(t *testing.T) {
	s, _, bus := newTestStore(t)

	received := make(chan *models.Config, 1)
	unsub := bus.Subscribe(eventbus.TopicConfigChanged, func(payload interface{}) {
		if cfg, ok := payload.(*models.Config); ok {
			received <- cfg
		}
	})
	defer unsub()

	if _, err := s.AddEndpoint("ws://localhost:9999"); err != nil {
		t.Fatalf("AddEndpoint: %v", err)
	}

	select {
	case cfg := <-received:
		if len(cfg.Endpoints) != 1 {
			t.Fatalf("expected 1 endpoint in published snapshot, got %d", len(cfg.Endpoints))
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for config:changed")
	}
}

// TestUpdateNoOpMutationPublishesNothing covers spec.md's S6 scenario: a
// PUT /api/config whose mutate function leaves the document unchanged
// (an empty body, a redundant add) must write nothing and emit nothing.
func TestUpdateNoOpMutationPublishesNothing(t *testing.T) {
	s, path, bus := newTestStore(t)

	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config file: %v", err)
	}

	unsub := bus.Subscribe(eventbus.TopicConfigChanged, func(interface{}) {
		t.Fatalf("config:changed must not be published on a no-op update")
	})
	defer unsub()

	if _, err := s.Update(func(c *models.Config) {}); err != nil {
		t.Fatalf("Update with no-op mutation: %v", err)
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config file after no-op update: %v", err)
	}
	if string(before) != string(after) {
		t.Fatalf("config file changed after a no-op update:\nbefore=%s\nafter=%s", before, after)
	}
}

// TestUpdateRejectsMalformedEndpointURLAsBadRequest covers the other
// half of S6: a malformed endpoint URL submitted through Update (the
// path PUT /api/config and AddEndpoint both go through) must surface as
// a 400 InvalidEndpoint, not a generic 500, so the HTTP layer can map it
// correctly via gwerrors.Status.
func TestUpdateRejectsMalformedEndpointURLAsBadRequest(t *testing.T) {
	s, _, _ := newTestStore(t)

	_, err := s.Update(func(c *models.Config) {
		c.Endpoints = append(c.Endpoints, "not-a-websocket-url")
	})
	if err == nil {
		t.Fatalf("expected error for malformed endpoint URL")
	}
	if kind := gwerrors.KindOf(err); kind != gwerrors.InvalidEndpoint {
		t.Fatalf("kind = %s, want InvalidEndpoint", kind)
	}
	if status := gwerrors.Status(err); status != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", status, http.StatusBadRequest)
	}
}

func TestSetToolEnabledRoundTrips(t *testing.T) {
	s, _, _ := newTestStore(t)

	if _, err := s.AddService("weather", models.ServiceConfig{Kind: models.ServiceStdio, Command: "weather-mcp"}); err != nil {
		t.Fatalf("AddService: %v", err)
	}
	name := models.NamespacedName("weather", "forecast")
	if _, err := s.SetToolEnabled(name, false); err != nil {
		t.Fatalf("SetToolEnabled: %v", err)
	}

	got := s.Get()
	setting, ok := got.Tools[name]
	if !ok {
		t.Fatalf("expected tool setting for %q", name)
	}
	if setting.Enabled {
		t.Fatalf("expected tool %q to be disabled", name)
	}
}

func TestRemoveServiceAlsoDropsItsToolSettings(t *testing.T) {
	s, _, _ := newTestStore(t)

	if _, err := s.AddService("weather", models.ServiceConfig{Kind: models.ServiceStdio, Command: "weather-mcp"}); err != nil {
		t.Fatalf("AddService: %v", err)
	}
	name := models.NamespacedName("weather", "forecast")
	if _, err := s.SetToolEnabled(name, true); err != nil {
		t.Fatalf("SetToolEnabled: %v", err)
	}
	if _, err := s.RemoveService("weather"); err != nil {
		t.Fatalf("RemoveService: %v", err)
	}

	got := s.Get()
	if _, ok := got.Services["weather"]; ok {
		t.Fatalf("expected service weather to be removed")
	}
	if _, ok := got.Tools[name]; ok {
		t.Fatalf("expected tool setting %q to be removed along with its service", name)
	}
}

func TestAddCustomToolValidatesBodyTemplate(t *testing.T) {
	s, _, _ := newTestStore(t)

	_, err := s.AddCustomTool(models.CustomTool{
		Name:        "sendEmail",
		Description: "send an email",
		InputSchema: map[string]interface{}{"type": "object"},
		Handler: models.CustomToolHandler{
			Platform: "zapier",
			Config: map[string]interface{}{
				"bodyTemplate": `{"to": "{{recipient}}"}`,
			},
		},
	})
	if err != nil {
		t.Fatalf("AddCustomTool with valid template: %v", err)
	}

	_, err = s.AddCustomTool(models.CustomTool{
		Name:        "broken",
		Description: "bad template",
		InputSchema: map[string]interface{}{"type": "object"},
		Handler: models.CustomToolHandler{
			Platform: "zapier",
			Config: map[string]interface{}{
				"bodyTemplate": `{"to": {{1bad}}`,
			},
		},
	})
	if err == nil {
		t.Fatalf("expected error for malformed bodyTemplate")
	}
}
