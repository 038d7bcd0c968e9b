package mcpservice

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/mcpbridge/gateway/internal/jsonrpc"
	"github.com/mcpbridge/gateway/internal/process"
	"github.com/mcpbridge/gateway/pkg/models"
	"github.com/rs/zerolog/log"
)

// stdioTransport runs an MCP service as a local subprocess, speaking
// line-delimited JSON-RPC over its stdin/stdout. Grounded on the
// teacher's internal/process/local.go subprocess lifecycle (StdoutPipe,
// SIGTERM-then-grace-then-kill) and on Sentinel-Gate's stdio_client.go
// close ordering (stdin first to signal EOF, then kill, then stdout).
type stdioTransport struct {
	name string
	cfg  models.ServiceConfig

	stderrBuf *process.StderrBuffer
	corr      *jsonrpc.Correlator

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	closed  bool
	connect bool

	writeMu sync.Mutex
}

func newStdioTransport(name string, cfg models.ServiceConfig, stderrBuf *process.StderrBuffer) *stdioTransport {
	return &stdioTransport{name: name, cfg: cfg, stderrBuf: stderrBuf, corr: jsonrpc.NewCorrelator()}
}

func (t *stdioTransport) start(ctx context.Context) error {
	cmd := exec.CommandContext(context.Background(), t.cfg.Command, t.cfg.Args...)
	cmd.Env = append(os.Environ(), t.cfg.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe for %s: %w", t.name, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe for %s: %w", t.name, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("create stderr pipe for %s: %w", t.name, err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start subprocess for %s: %w", t.name, err)
	}

	t.mu.Lock()
	t.cmd = cmd
	t.stdin = stdin
	t.connect = true
	t.mu.Unlock()

	go t.readLoop(stdout)
	go t.drainStderr(stderr)
	go func() {
		_ = cmd.Wait()
		t.mu.Lock()
		t.connect = false
		t.mu.Unlock()
		t.corr.Shutdown()
		log.Info().Str("service", t.name).Msg("mcp stdio subprocess exited")
	}()

	return nil
}

func (t *stdioTransport) readLoop(stdout io.Reader) {
	lr := jsonrpc.NewLineReader(stdout)
	for {
		line, err := lr.Next()
		if err != nil {
			return
		}
		if !jsonrpc.IsResponse(line) {
			continue // server-initiated notifications are out of scope for v1
		}
		var resp jsonrpc.Response
		if err := json.Unmarshal(line, &resp); err != nil {
			log.Warn().Str("service", t.name).Err(err).Msg("malformed jsonrpc line from stdio service")
			continue
		}
		t.corr.Resolve(resp)
	}
}

func (t *stdioTransport) drainStderr(stderr io.Reader) {
	lr := jsonrpc.NewLineReader(stderr)
	for {
		line, err := lr.Next()
		if err != nil {
			return
		}
		t.stderrBuf.Append(string(line))
	}
}

func (t *stdioTransport) call(ctx context.Context, method string, params interface{}) (*rpcResult, error) {
	t.mu.Lock()
	if !t.connect {
		t.mu.Unlock()
		return nil, fmt.Errorf("stdio service %s is not connected", t.name)
	}
	stdin := t.stdin
	t.mu.Unlock()

	id := t.corr.NextID()
	paramsRaw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	req := jsonrpc.Request{Jsonrpc: "2.0", ID: id, Method: method, Params: paramsRaw}
	line, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	timeout := callTimeout
	if d, ok := ctx.Deadline(); ok {
		timeout = time.Until(d)
	}
	resultCh := t.corr.Register(id, timeout)

	t.writeMu.Lock()
	_, werr := stdin.Write(append(line, '\n'))
	t.writeMu.Unlock()
	if werr != nil {
		return nil, fmt.Errorf("write to stdio service %s: %w", t.name, werr)
	}

	resp, err := jsonrpc.WaitForResult(ctx, resultCh)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return &rpcResult{raw: resp.Result}, nil
}

func (t *stdioTransport) connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connect
}

// stop closes stdin (signalling EOF to a well-behaved MCP server), then
// escalates to SIGTERM with a grace period, then SIGKILL, mirroring the
// teacher's stop sequence in internal/process/local.go.
func (t *stdioTransport) stop(graceful bool) {
	t.mu.Lock()
	cmd := t.cmd
	stdin := t.stdin
	closed := t.closed
	t.closed = true
	t.mu.Unlock()

	if closed || cmd == nil || cmd.Process == nil {
		return
	}

	if stdin != nil {
		_ = stdin.Close()
	}

	if !graceful {
		_ = cmd.Process.Kill()
		return
	}

	_ = cmd.Process.Signal(syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		_ = cmd.Process.Kill()
	}
}
