package mcpservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/mcpbridge/gateway/pkg/models"
)

// remoteTransport speaks MCP JSON-RPC over HTTP, for services configured
// as sse or streamableHttp. Each call is one POST carrying a single
// JSON-RPC request, mirroring the teacher's executeHTTPTool /
// executeSSETool pair in internal/mcpgw/gateway.go — unified here since
// both kinds POST a JSON-RPC envelope and read back a single reply.
type remoteTransport struct {
	name   string
	cfg    models.ServiceConfig
	client *http.Client

	nextID int64
	live   int32 // atomic bool
}

func newRemoteTransport(name string, cfg models.ServiceConfig) *remoteTransport {
	return &remoteTransport{
		name:   name,
		cfg:    cfg,
		client: &http.Client{Timeout: callTimeout},
	}
}

func (t *remoteTransport) start(ctx context.Context) error {
	// Remote services have no separate "connect" step beyond the first
	// request; a reachability probe doubles as connection establishment.
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(pingCtx, http.MethodGet, t.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("build probe request for %s: %w", t.name, err)
	}
	t.applyHeaders(req)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", t.name, err)
	}
	resp.Body.Close()

	atomic.StoreInt32(&t.live, 1)
	return nil
}

func (t *remoteTransport) stop(graceful bool) {
	atomic.StoreInt32(&t.live, 0)
}

func (t *remoteTransport) connected() bool {
	return atomic.LoadInt32(&t.live) == 1
}

func (t *remoteTransport) call(ctx context.Context, method string, params interface{}) (*rpcResult, error) {
	id := atomic.AddInt64(&t.nextID, 1)
	paramsRaw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}

	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
		"params":  json.RawMessage(paramsRaw),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal jsonrpc envelope: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if t.cfg.Kind == models.ServiceSSE {
		httpReq.Header.Set("Accept", "text/event-stream, application/json")
	} else {
		httpReq.Header.Set("Accept", "application/json")
	}
	t.applyHeaders(httpReq)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", t.name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response from %s: %w", t.name, err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("service %s returned HTTP %d: %s", t.name, resp.StatusCode, respBody)
	}

	payload := extractJSONRPCPayload(respBody)

	var parsed struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("decode response from %s: %w", t.name, err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("service %s returned jsonrpc error %d: %s", t.name, parsed.Error.Code, parsed.Error.Message)
	}
	return &rpcResult{raw: parsed.Result}, nil
}

func (t *remoteTransport) applyHeaders(req *http.Request) {
	for k, v := range t.cfg.Headers {
		req.Header.Set(k, v)
	}
}

// extractJSONRPCPayload handles both a plain JSON body and a
// text/event-stream body, taking the last "data: " line of the latter —
// an SSE-transport service streams the JSON-RPC reply as a single data
// event per spec.md's framing.
func extractJSONRPCPayload(body []byte) []byte {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return trimmed
	}

	var last []byte
	for _, line := range bytes.Split(body, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if data, ok := bytes.CutPrefix(line, []byte("data:")); ok {
			last = bytes.TrimSpace(data)
		}
	}
	if last != nil {
		return last
	}
	return trimmed
}
