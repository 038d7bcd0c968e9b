package endpoint

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/mcpbridge/gateway/internal/configstore"
	"github.com/mcpbridge/gateway/internal/eventbus"
	"github.com/mcpbridge/gateway/internal/gwerrors"
)

func newTestEndpointManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	bus := eventbus.New()
	store, err := configstore.Load(filepath.Join(dir, "cfg.json"), bus)
	if err != nil {
		t.Fatalf("configstore.Load: %v", err)
	}
	return New(store, bus, "cat", nil)
}

func TestAddRejectsDuplicateURL(t *testing.T) {
	m := newTestEndpointManager(t)
	ctx := context.Background()

	if err := m.Add(ctx, "wss://example.test/one"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	defer m.StopAll(ctx)

	err := m.Add(ctx, "wss://example.test/one")
	if gwerrors.KindOf(err) != gwerrors.EndpointAlreadyExists {
		t.Fatalf("kind = %v, want EndpointAlreadyExists", gwerrors.KindOf(err))
	}
}

func TestConnectDisconnectUnknownURLFail(t *testing.T) {
	m := newTestEndpointManager(t)
	ctx := context.Background()

	if err := m.Connect(ctx, "ghost"); gwerrors.KindOf(err) != gwerrors.EndpointNotFound {
		t.Fatalf("Connect kind = %v, want EndpointNotFound", gwerrors.KindOf(err))
	}
	if err := m.Disconnect(ctx, "ghost"); gwerrors.KindOf(err) != gwerrors.EndpointNotFound {
		t.Fatalf("Disconnect kind = %v, want EndpointNotFound", gwerrors.KindOf(err))
	}
	if err := m.Reconnect(ctx, "ghost"); gwerrors.KindOf(err) != gwerrors.EndpointNotFound {
		t.Fatalf("Reconnect kind = %v, want EndpointNotFound", gwerrors.KindOf(err))
	}
}

func TestRemoveStopsAndForgetsEndpoint(t *testing.T) {
	m := newTestEndpointManager(t)
	ctx := context.Background()

	if err := m.Add(ctx, "wss://example.test/one"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := m.Remove(ctx, "wss://example.test/one"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	if urls := m.store.Endpoints(); len(urls) != 0 {
		t.Fatalf("endpoints = %v, want empty after Remove", urls)
	}
	if err := m.Disconnect(ctx, "wss://example.test/one"); gwerrors.KindOf(err) != gwerrors.EndpointNotFound {
		t.Fatalf("kind = %v, want EndpointNotFound after Remove", gwerrors.KindOf(err))
	}
}

func TestStatusReportsEveryEndpoint(t *testing.T) {
	m := newTestEndpointManager(t)
	ctx := context.Background()

	if err := m.Add(ctx, "wss://example.test/a"); err != nil {
		t.Fatalf("Add a: %v", err)
	}
	if err := m.Add(ctx, "wss://example.test/b"); err != nil {
		t.Fatalf("Add b: %v", err)
	}
	defer m.StopAll(ctx)

	states := m.Status()
	if len(states) != 2 {
		t.Fatalf("len(states) = %d, want 2", len(states))
	}
}
