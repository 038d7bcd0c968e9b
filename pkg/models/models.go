// Package models holds the shared data types exchanged between the
// gateway's core components (config, registry, endpoints) and its HTTP
// and WebSocket surfaces.
package models

import (
	"time"

	"github.com/mcpbridge/gateway/internal/process"
)

// ── Service configuration ───────────────────────────────────

// ServiceKind is the tagged-variant discriminator for ServiceConfig.
type ServiceKind string

const (
	ServiceStdio          ServiceKind = "stdio"
	ServiceSSE            ServiceKind = "sse"
	ServiceStreamableHTTP ServiceKind = "streamableHttp"
)

// ServiceConfig describes how to reach one MCP service. Kind selects
// which of the remaining fields apply; unused fields are left zero.
type ServiceConfig struct {
	Kind ServiceKind `json:"kind"`

	// stdio
	Command string   `json:"command,omitempty"`
	Args    []string `json:"args,omitempty"`
	Env     []string `json:"env,omitempty"`

	// sse / streamableHttp
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// ── Custom tools ─────────────────────────────────────────────

// CustomToolHandler names the platform a synthetic tool is proxied to
// and the platform-specific invocation config (body template, result
// field, etc).
type CustomToolHandler struct {
	Platform string                 `json:"platform"`
	Config   map[string]interface{} `json:"config"`
}

// CustomTool is an operator-registered synthetic tool executed by the
// gateway itself via an external HTTP call.
type CustomTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
	Handler     CustomToolHandler      `json:"handler"`
}

// ── Connection tuning ────────────────────────────────────────

type ConnectionConfig struct {
	HeartbeatIntervalMs int `json:"heartbeatIntervalMs"`
	HeartbeatTimeoutMs  int `json:"heartbeatTimeoutMs"`
	ReconnectIntervalMs int `json:"reconnectIntervalMs"`
}

// DefaultConnectionConfig matches spec.md §5's stated defaults.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		HeartbeatIntervalMs: 30_000,
		HeartbeatTimeoutMs:  10_000,
		ReconnectIntervalMs: 3_000,
	}
}

// ── Tool enable/disable + namespaced registry entry ─────────

// ToolSetting is the persisted enable/disable + description override
// for a namespaced tool name.
type ToolSetting struct {
	Enabled     bool   `json:"enabled"`
	Description string `json:"description,omitempty"`
}

// Config is the full mutable configuration document: the single
// source of truth owned by the Config Store (C1).
type Config struct {
	Endpoints   []string                 `json:"endpoints"`
	Services    map[string]ServiceConfig `json:"services"`
	Tools       map[string]ToolSetting   `json:"tools"`
	Connection  ConnectionConfig         `json:"connection"`
	Platforms   map[string]map[string]string `json:"platforms"`
	CustomTools []CustomTool             `json:"customTools"`
}

// NewConfig returns an empty, well-formed Config.
func NewConfig() *Config {
	return &Config{
		Endpoints:   []string{},
		Services:    map[string]ServiceConfig{},
		Tools:       map[string]ToolSetting{},
		Connection:  DefaultConnectionConfig(),
		Platforms:   map[string]map[string]string{},
		CustomTools: []CustomTool{},
	}
}

// Clone returns a deep copy, used to hand out immutable snapshots to readers.
func (c *Config) Clone() *Config {
	out := &Config{
		Endpoints:  append([]string{}, c.Endpoints...),
		Services:   make(map[string]ServiceConfig, len(c.Services)),
		Tools:      make(map[string]ToolSetting, len(c.Tools)),
		Connection: c.Connection,
		Platforms:  make(map[string]map[string]string, len(c.Platforms)),
	}
	for k, v := range c.Services {
		sc := v
		sc.Args = append([]string{}, v.Args...)
		sc.Env = append([]string{}, v.Env...)
		if v.Headers != nil {
			sc.Headers = make(map[string]string, len(v.Headers))
			for hk, hv := range v.Headers {
				sc.Headers[hk] = hv
			}
		}
		out.Services[k] = sc
	}
	for k, v := range c.Tools {
		out.Tools[k] = v
	}
	for k, v := range c.Platforms {
		m := make(map[string]string, len(v))
		for pk, pv := range v {
			m[pk] = pv
		}
		out.Platforms[k] = m
	}
	if c.CustomTools != nil {
		out.CustomTools = make([]CustomTool, 0, len(c.CustomTools))
	}
	for _, ct := range c.CustomTools {
		cpy := ct
		if ct.InputSchema != nil {
			cpy.InputSchema = cloneJSONMap(ct.InputSchema)
		}
		cpy.Handler.Config = cloneJSONMap(ct.Handler.Config)
		out.CustomTools = append(out.CustomTools, cpy)
	}
	return out
}

func cloneJSONMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ReservedCustomServiceName is the owner literal for synthetic tools.
const ReservedCustomServiceName = "customMCP"

// ── Tool (merged registry entry) ────────────────────────────

type Tool struct {
	NamespacedName string                 `json:"namespacedName"`
	ServiceName    string                 `json:"serviceName"`
	OriginalName   string                 `json:"originalName"`
	Description    string                 `json:"description"`
	InputSchema    map[string]interface{} `json:"inputSchema"`
	Enabled        bool                   `json:"enabled"`
	CallCount      uint64                 `json:"callCount"`
	LastCalledAt   *time.Time             `json:"lastCalledAt,omitempty"`
}

// NamespacedName joins a service name and original tool name per
// spec.md's `<serviceName>__<toolName>` convention.
func NamespacedName(service, original string) string {
	return service + "__" + original
}

// ── Endpoint state ───────────────────────────────────────────

type EndpointState struct {
	URL              string     `json:"url"`
	Connected        bool       `json:"connected"`
	Initialized      bool       `json:"initialized"`
	LastError        string     `json:"lastError,omitempty"`
	ReconnectAttempt int        `json:"reconnectAttempt"`
	NextReconnectAt  *time.Time `json:"nextReconnectAt,omitempty"`
}

// ── Service state ────────────────────────────────────────────

type ServiceStatus string

const (
	ServiceStopped ServiceStatus = "stopped"
	ServiceStarting ServiceStatus = "starting"
	ServiceRunning ServiceStatus = "running"
	ServiceError   ServiceStatus = "error"
)

type ServiceState struct {
	Name       string        `json:"name"`
	Status     ServiceStatus `json:"status"`
	PID        int           `json:"pid,omitempty"`
	ToolsCount int           `json:"toolsCount"`
	LastError  string        `json:"lastError,omitempty"`
	// StderrTail carries the most recent stderr lines captured from a
	// stdio service's subprocess (§4.2); always empty for sse/streamableHttp
	// services, which have no subprocess to tail.
	StderrTail []process.StderrLine `json:"stderrTail,omitempty"`
}

// ── Connection test result ──────────────────────────────────

type TestConnectionResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	RTTMs   int64  `json:"rttMs,omitempty"`
}
