package endpoint

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/mcpbridge/gateway/internal/eventbus"
	"github.com/mcpbridge/gateway/internal/wsutil"
	"github.com/mcpbridge/gateway/pkg/models"
)

// fakeConn is a wsutil.Conn double. One per dial attempt.
type fakeConn struct {
	mu       sync.Mutex
	toServer chan []byte // frames the endpoint writes "upstream"
	fromTest chan []byte // frames the test pushes "from upstream"
	closed   bool
	closeErr error // returned from Read/Write after a simulated close
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		toServer: make(chan []byte, 16),
		fromTest: make(chan []byte, 16),
	}
}

func (f *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case data, ok := <-f.fromTest:
		if !ok {
			return nil, f.currentErr()
		}
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeConn) Write(ctx context.Context, data []byte) error {
	f.mu.Lock()
	if f.closed {
		err := f.closeErr
		f.mu.Unlock()
		return err
	}
	f.mu.Unlock()
	f.toServer <- data
	return nil
}

func (f *fakeConn) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return f.closeErr
	}
	return nil
}

func (f *fakeConn) Close(code int, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) currentErr() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closeErr != nil {
		return f.closeErr
	}
	return context.Canceled
}

func testConnCfg() models.ConnectionConfig {
	return models.ConnectionConfig{
		HeartbeatIntervalMs: 50,
		HeartbeatTimeoutMs:  40,
		ReconnectIntervalMs: 20,
	}
}

func TestConnectionRelaysUpstreamFrameToSubprocess(t *testing.T) {
	conn := newFakeConn()
	c := NewConnection("wss://example.test/endpoint", testConnCfg(), "cat", nil, eventbus.New())
	c.dial = func(ctx context.Context, url string) (wsutil.Conn, error) { return conn, nil }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Stop(context.Background())

	waitForState(t, c, StateConnected)

	conn.fromTest <- []byte(`{"hello":"world"}`)

	// The connection's own subprocess read loop competes for Lines() and
	// forwards the echo upstream, so the echo may arrive on either side.
	select {
	case line := <-c.proc.Lines():
		if line != `{"hello":"world"}` {
			t.Fatalf("line = %q", line)
		}
	case data := <-conn.toServer:
		if string(data) != `{"hello":"world"}` {
			t.Fatalf("relayed echo = %q", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for subprocess to echo the relayed frame")
	}
}

func TestConnectionReconnectsAfterDrop(t *testing.T) {
	attempts := make(chan *fakeConn, 4)
	c := NewConnection("wss://example.test/endpoint", testConnCfg(), "cat", nil, eventbus.New())
	c.dial = func(ctx context.Context, url string) (wsutil.Conn, error) {
		conn := newFakeConn()
		attempts <- conn
		return conn, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Stop(context.Background())

	first := <-attempts
	waitForState(t, c, StateConnected)

	first.mu.Lock()
	first.closeErr = context.Canceled
	first.closed = true
	close(first.fromTest)
	first.mu.Unlock()

	select {
	case <-attempts:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a reconnect attempt")
	}
}

func TestConnectionFatalCloseCodeStopsReconnecting(t *testing.T) {
	c := NewConnection("wss://example.test/endpoint", testConnCfg(), "cat", nil, eventbus.New())
	callCount := 0
	c.dial = func(ctx context.Context, url string) (wsutil.Conn, error) {
		callCount++
		if callCount > 1 {
			t.Fatalf("dialed again after a fatal close code, attempt %d", callCount)
		}
		conn := newFakeConn()
		go func() {
			time.Sleep(20 * time.Millisecond)
			conn.mu.Lock()
			conn.closed = true
			conn.closeErr = websocket.CloseError{Code: wsutil.FatalCloseCode, Reason: "fatal"}
			close(conn.fromTest)
			conn.mu.Unlock()
		}()
		return conn, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Stop(context.Background())

	waitForState(t, c, StateStopped)
}

func waitForState(t *testing.T, c *Connection, want State) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		got := c.state
		c.mu.Unlock()
		if got == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %q", want)
}
