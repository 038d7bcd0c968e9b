// Package wsutil provides a small shared abstraction over
// github.com/coder/websocket used by both the outbound endpoint client
// (internal/endpoint, C6) and the inbound UI notification server
// (internal/notify, C8). Grounded on the pack's own coder/websocket
// usage in MrWong99-glyphoxa/pkg/provider/s2s/openai (Dial with
// HTTPHeader, conn.Write(ctx, MessageText, data), conn.Read(ctx)).
package wsutil

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

// Conn is the narrow surface this gateway needs from a WebSocket
// connection, satisfied by *websocket.Conn and by test fakes.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Ping(ctx context.Context) error
	Close(code int, reason string) error
}

// connAdapter adapts *websocket.Conn to Conn, fixing the message type
// to text since every frame this gateway exchanges is a JSON-RPC or
// notification line.
type connAdapter struct {
	conn *websocket.Conn
}

func (a connAdapter) Read(ctx context.Context) ([]byte, error) {
	_, data, err := a.conn.Read(ctx)
	return data, err
}

func (a connAdapter) Write(ctx context.Context, data []byte) error {
	return a.conn.Write(ctx, websocket.MessageText, data)
}

func (a connAdapter) Ping(ctx context.Context) error {
	return a.conn.Ping(ctx)
}

func (a connAdapter) Close(code int, reason string) error {
	return a.conn.Close(websocket.StatusCode(code), reason)
}

// Dial connects to url with the given headers and a connection
// timeout, returning a Conn.
func Dial(ctx context.Context, url string, headers http.Header, timeout time.Duration) (Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, url, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(16 << 20)
	return connAdapter{conn: conn}, nil
}

// Accept upgrades an incoming HTTP request to a WebSocket connection,
// used by the UI notification server (C8).
func Accept(w http.ResponseWriter, r *http.Request, insecureSkipVerify bool) (Conn, error) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: insecureSkipVerify})
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(16 << 20)
	return connAdapter{conn: conn}, nil
}

// CloseStatus extracts the close code from a Read/Write error, or -1 if
// err did not originate from a WebSocket close frame.
func CloseStatus(err error) int {
	return int(websocket.CloseStatus(err))
}

// Fatal close codes the endpoint connection must not reconnect after.
const FatalCloseCode = 4004
