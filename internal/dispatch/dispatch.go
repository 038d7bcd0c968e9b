// Package dispatch implements the gateway's own dispatcher subprocess
// mode: the hidden "dispatch" sub-command each endpoint.Connection
// spawns (see pkg/server.NewWithConfig) instead of shelling out to a
// separate binary. It speaks line-delimited JSON-RPC 2.0 on stdin/
// stdout — the same wire dialect the upstream WebSocket carries — and
// satisfies every request by calling back into this same gateway
// process's own HTTP API.
//
// Grounded on the teacher's internal/process/local.go for the
// line-buffered-stdio-child shape (here inverted: this process IS the
// child, reading stdin instead of writing it) and on C3's
// newline-delimited JSON-RPC framing described in spec.md §5.3.
package dispatch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type callToolParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

type callToolRequestBody struct {
	ToolName string                 `json:"toolName"`
	Args     map[string]interface{} `json:"args"`
}

type successEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

const httpTimeout = 60 * time.Second

// Run reads newline-delimited JSON-RPC requests from r until EOF or ctx
// is cancelled, satisfies each by calling the gateway's own HTTP API on
// localhost:port, and writes one JSON-RPC response line per request to
// w. A malformed input line yields a JSON-RPC parse-error response
// rather than aborting the whole loop — one bad frame must not sever
// the pipe for every other in-flight request.
func Run(ctx context.Context, port int, r io.Reader, w io.Writer) error {
	client := &http.Client{Timeout: httpTimeout}
	base := fmt.Sprintf("http://127.0.0.1:%d", port)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	out := bufio.NewWriter(w)
	defer out.Flush()

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		resp := handleLine(ctx, client, base, line)
		data, err := json.Marshal(resp)
		if err != nil {
			log.Error().Err(err).Msg("dispatch: marshal response")
			continue
		}
		if _, err := out.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("write dispatch response: %w", err)
		}
		if err := out.Flush(); err != nil {
			return fmt.Errorf("flush dispatch response: %w", err)
		}
	}
	return scanner.Err()
}

func handleLine(ctx context.Context, client *http.Client, base string, line []byte) response {
	var req request
	if err := json.Unmarshal(line, &req); err != nil {
		return response{JSONRPC: "2.0", Error: &rpcError{Code: -32700, Message: "parse error"}}
	}

	switch req.Method {
	case "tools/list":
		return listTools(ctx, client, base, req)
	case "tools/call":
		return callTool(ctx, client, base, req)
	default:
		return response{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32601, Message: "method not found: " + req.Method}}
	}
}

func listTools(ctx context.Context, client *http.Client, base string, req request) response {
	data, err := httpGet(ctx, client, base+"/api/tools/list")
	if err != nil {
		return errResponse(req.ID, err)
	}
	return decodeEnvelope(req.ID, data)
}

func callTool(ctx context.Context, client *http.Client, base string, req request) response {
	var params callToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return response{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32602, Message: "invalid params"}}
		}
	}

	body, err := json.Marshal(callToolRequestBody{ToolName: params.Name, Args: params.Arguments})
	if err != nil {
		return errResponse(req.ID, err)
	}

	data, err := httpPost(ctx, client, base+"/api/tools/call", body)
	if err != nil {
		return errResponse(req.ID, err)
	}
	return decodeEnvelope(req.ID, data)
}

func decodeEnvelope(id json.RawMessage, data []byte) response {
	var ok successEnvelope
	if err := json.Unmarshal(data, &ok); err == nil && ok.Success {
		return response{JSONRPC: "2.0", ID: id, Result: ok.Data}
	}
	var bad errorEnvelope
	if err := json.Unmarshal(data, &bad); err == nil && bad.Error.Message != "" {
		return response{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: -32000, Message: bad.Error.Message}}
	}
	return response{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: -32603, Message: "malformed gateway response"}}
}

func errResponse(id json.RawMessage, err error) response {
	return response{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: -32603, Message: err.Error()}}
}

func httpGet(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return do(client, req)
}

func httpPost(ctx context.Context, client *http.Client, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return do(client, req)
}

func do(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}
