// Package mcpservice implements one configured MCP service connection
// (C3 in the design): a stdio subprocess, or a remote SSE/streamable-HTTP
// endpoint, speaking MCP's JSON-RPC 2.0 dialect, exposing ListTools and
// CallTool to the service manager above it.
//
// Grounded on the teacher's internal/mcpgw/gateway.go for the JSON-RPC
// method shapes (initialize, tools/list, tools/call) and its
// executeHTTPTool/executeSSETool pattern for the remote transports, and
// on internal/process/local.go for stdio subprocess lifecycle
// (StdoutPipe, SIGTERM-then-grace-then-kill, background Wait()).
package mcpservice

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mcpbridge/gateway/internal/gwerrors"
	"github.com/mcpbridge/gateway/internal/process"
	"github.com/mcpbridge/gateway/pkg/models"
	"github.com/rs/zerolog/log"
)

// protocolVersion is the MCP protocol version this gateway speaks during
// the initialize handshake.
const protocolVersion = "2024-11-05"

// callTimeout bounds a single tools/call round trip. Matches the 60s
// default JSON-RPC call timeout shared by all three C3 transports.
const callTimeout = 60 * time.Second

// transport is the minimal surface every MCP wire shape (stdio,
// sse, streamableHttp) must implement so Service can treat them
// uniformly.
type transport interface {
	start(ctx context.Context) error
	stop(graceful bool)
	call(ctx context.Context, method string, params interface{}) (*rpcResult, error)
	connected() bool
}

// rpcResult is the decoded payload of a successful JSON-RPC response,
// kept as raw JSON so callers can unmarshal into whatever shape the
// method implies (tools/list vs tools/call have different results).
type rpcResult struct {
	raw []byte
}

// Service owns one configured MCP service: its transport, its cached
// tool list, and its lifecycle state.
type Service struct {
	name string
	cfg  models.ServiceConfig

	mu        sync.RWMutex
	transport transport
	status    models.ServiceStatus
	lastErr   string
	tools     []models.Tool

	stderr *process.StderrBuffer
}

// New constructs an unstarted Service for the given name/config.
func New(name string, cfg models.ServiceConfig) *Service {
	s := &Service{
		name:   name,
		cfg:    cfg,
		status: models.ServiceStopped,
		stderr: process.NewStderrBuffer(200),
	}
	return s
}

// Name returns the service's configured name.
func (s *Service) Name() string { return s.name }

// Start launches the transport and performs the initialize + tools/list
// handshake, populating the cached tool list.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.status == models.ServiceRunning || s.status == models.ServiceStarting {
		s.mu.Unlock()
		return nil
	}
	s.status = models.ServiceStarting
	tp := s.buildTransport()
	s.transport = tp
	s.mu.Unlock()

	if err := tp.start(ctx); err != nil {
		s.setError(err)
		return gwerrors.Wrap(gwerrors.ServiceUnavailable, fmt.Sprintf("start service %q", s.name), err)
	}

	if _, err := tp.call(ctx, "initialize", initializeParams()); err != nil {
		tp.stop(false)
		s.setError(err)
		return gwerrors.Wrap(gwerrors.ServiceUnavailable, fmt.Sprintf("initialize service %q", s.name), err)
	}

	tools, err := s.fetchTools(ctx, tp)
	if err != nil {
		tp.stop(false)
		s.setError(err)
		return gwerrors.Wrap(gwerrors.ServiceUnavailable, fmt.Sprintf("list tools for service %q", s.name), err)
	}

	s.mu.Lock()
	s.tools = tools
	s.status = models.ServiceRunning
	s.lastErr = ""
	s.mu.Unlock()

	log.Info().Str("service", s.name).Int("tools", len(tools)).Msg("mcp service started")
	return nil
}

func (s *Service) buildTransport() transport {
	switch s.cfg.Kind {
	case models.ServiceStdio:
		return newStdioTransport(s.name, s.cfg, s.stderr)
	default:
		return newRemoteTransport(s.name, s.cfg)
	}
}

func (s *Service) setError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = models.ServiceError
	s.lastErr = err.Error()
}

// Stop tears down the transport. graceful controls whether a stdio
// subprocess gets a SIGTERM grace period before SIGKILL.
func (s *Service) Stop(graceful bool) {
	s.mu.Lock()
	tp := s.transport
	s.status = models.ServiceStopped
	s.mu.Unlock()

	if tp != nil {
		tp.stop(graceful)
	}
}

// statusStderrTailLines bounds how much of the captured stderr ring
// buffer rides along on a status query; the full 200-line buffer is
// there for depth, not to be echoed whole on every poll.
const statusStderrTailLines = 20

// Status returns the service's current observable state, including the
// tail of whatever its subprocess (if any) has written to stderr.
func (s *Service) Status() models.ServiceState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.ServiceState{
		Name:       s.name,
		Status:     s.status,
		ToolsCount: len(s.tools),
		LastError:  s.lastErr,
		StderrTail: s.StderrTail(statusStderrTailLines),
	}
}

// IsConnected reports whether the underlying transport is live.
func (s *Service) IsConnected() bool {
	s.mu.RLock()
	tp := s.transport
	s.mu.RUnlock()
	return tp != nil && tp.connected()
}

// Tools returns the cached, namespaced tool list discovered at startup.
func (s *Service) Tools() []models.Tool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Tool, len(s.tools))
	copy(out, s.tools)
	return out
}

// StderrTail returns the service's captured stderr tail (stdio services
// only; empty for remote transports).
func (s *Service) StderrTail(n int) []process.StderrLine {
	return s.stderr.Tail(n)
}

// CallTool invokes originalName (the tool's name as the upstream MCP
// service knows it, not the namespaced form) with args, enforcing
// callTimeout.
func (s *Service) CallTool(ctx context.Context, originalName string, args map[string]interface{}) ([]byte, error) {
	s.mu.RLock()
	tp := s.transport
	status := s.status
	s.mu.RUnlock()

	if tp == nil || status != models.ServiceRunning {
		return nil, gwerrors.Newf(gwerrors.ServiceUnavailable, "service %q is not running", s.name)
	}

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	result, err := tp.call(callCtx, "tools/call", map[string]interface{}{
		"name":      originalName,
		"arguments": args,
	})
	if err != nil {
		if callCtx.Err() != nil {
			return nil, gwerrors.Wrap(gwerrors.CallTimeout, fmt.Sprintf("call %s on %s timed out", originalName, s.name), err)
		}
		return nil, gwerrors.Wrap(gwerrors.ExternalApiError, fmt.Sprintf("call %s on %s", originalName, s.name), err)
	}
	return result.raw, nil
}

// TestConnection performs a one-shot connect+initialize+tools/list+disconnect
// without mutating Service state, used by the "test connection" API
// before a service is actually added.
func TestConnection(ctx context.Context, cfg models.ServiceConfig) models.TestConnectionResult {
	start := time.Now()
	tp := (&Service{name: "test", cfg: cfg, stderr: process.NewStderrBuffer(1)}).buildTransport()

	testCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := tp.start(testCtx); err != nil {
		return models.TestConnectionResult{OK: false, Message: err.Error()}
	}
	defer tp.stop(true)

	if _, err := tp.call(testCtx, "initialize", initializeParams()); err != nil {
		return models.TestConnectionResult{OK: false, Message: err.Error()}
	}
	if _, err := tp.call(testCtx, "tools/list", map[string]interface{}{}); err != nil {
		return models.TestConnectionResult{OK: false, Message: err.Error()}
	}
	return models.TestConnectionResult{OK: true, Message: "connected", RTTMs: time.Since(start).Milliseconds()}
}

func initializeParams() map[string]interface{} {
	return map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]interface{}{},
		"clientInfo": map[string]string{
			"name":    "mcpbridge-gateway",
			"version": "0.1.0",
		},
	}
}
