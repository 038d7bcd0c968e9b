package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mcpbridge/gateway/internal/eventbus"
	"github.com/mcpbridge/gateway/internal/wsutil"
)

func newTestServer(t *testing.T, svc *Service) (*httptest.Server, string) {
	t.Helper()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := svc.ServeWS(r.Context(), w, r); err != nil {
			t.Logf("ServeWS exited: %v", err)
		}
	})
	srv := httptest.NewServer(handler)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	return srv, wsURL
}

func readFrame(t *testing.T, ctx context.Context, conn wsutil.Conn) Frame {
	t.Helper()
	data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	return f
}

func TestServeWSSendsInitialSnapshot(t *testing.T) {
	bus := eventbus.New()
	svc := New(bus,
		func() interface{} { return map[string]string{"k": "config"} },
		func() interface{} { return map[string]string{"k": "status"} },
		true,
	)
	srv, wsURL := newTestServer(t, svc)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := wsutil.Dial(ctx, wsURL, nil, 2*time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close(1000, "done")

	first := readFrame(t, ctx, conn)
	if first.Type != FrameConfigUpdate {
		t.Fatalf("first.Type = %q, want configUpdate", first.Type)
	}
	second := readFrame(t, ctx, conn)
	if second.Type != FrameStatusUpdate {
		t.Fatalf("second.Type = %q, want statusUpdate", second.Type)
	}
}

func TestServeWSBroadcastsConfigChanged(t *testing.T) {
	bus := eventbus.New()
	svc := New(bus, func() interface{} { return nil }, func() interface{} { return nil }, true)
	srv, wsURL := newTestServer(t, svc)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := wsutil.Dial(ctx, wsURL, nil, 2*time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close(1000, "done")

	readFrame(t, ctx, conn) // configUpdate
	readFrame(t, ctx, conn) // statusUpdate

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && svc.ClientCount() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if svc.ClientCount() != 1 {
		t.Fatalf("ClientCount = %d, want 1", svc.ClientCount())
	}

	bus.Emit(eventbus.TopicConfigChanged, map[string]string{"changed": "yes"})

	frame := readFrame(t, ctx, conn)
	if frame.Type != FrameConfig {
		t.Fatalf("frame.Type = %q, want config", frame.Type)
	}
}
