// Package servicemgr implements the MCP Service Manager (C5): it owns
// every configured mcpservice.Service and custom-tool proxy binding,
// merges their advertised tools into one namespaced registry, and
// dispatches calls by namespaced tool name.
//
// Grounded on the teacher's internal/mcpgw.Gateway for the
// registry-and-dispatch shape (store-backed tool lookup there becomes
// an in-process map here) and on internal/process.Manager for the
// single-mutex-over-a-map-of-lifecycles pattern protecting service
// creation/removal.
package servicemgr

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mcpbridge/gateway/internal/configstore"
	"github.com/mcpbridge/gateway/internal/customtool"
	"github.com/mcpbridge/gateway/internal/eventbus"
	"github.com/mcpbridge/gateway/internal/gwerrors"
	"github.com/mcpbridge/gateway/internal/mcpservice"
	"github.com/mcpbridge/gateway/pkg/models"
	"github.com/rs/zerolog/log"
)

// usageStat is the in-memory, non-persisted call counter per
// namespaced tool name — never written to C1, reset on restart.
type usageStat struct {
	count        uint64
	lastCalledAt time.Time
}

// registryEntry is one merged-registry row: either owned by a running
// mcpservice.Service, or by the reserved customMCP custom-tool proxy.
type registryEntry struct {
	tool        models.Tool
	customTool  *models.CustomTool // non-nil for customMCP-owned entries
	serviceName string             // empty for custom tools
}

// Manager owns the service/custom-tool registry.
type Manager struct {
	store *configstore.Store
	bus   *eventbus.Bus
	proxy *customtool.Proxy

	mu       sync.Mutex
	services map[string]*mcpservice.Service
	registry map[string]*registryEntry

	usageMu sync.Mutex
	usage   map[string]*usageStat
}

// New constructs an unstarted Manager.
func New(store *configstore.Store, bus *eventbus.Bus) *Manager {
	return &Manager{
		store:    store,
		bus:      bus,
		proxy:    customtool.New(store),
		services: make(map[string]*mcpservice.Service),
		registry: make(map[string]*registryEntry),
		usage:    make(map[string]*usageStat),
	}
}

// Start loads every configured service from C1, connects each one
// (logging failures rather than aborting — one bad service must not
// prevent the others from starting), and builds the initial registry.
func (m *Manager) Start(ctx context.Context) {
	cfg := m.store.Get()

	m.mu.Lock()
	for name, svcCfg := range cfg.Services {
		if _, exists := m.services[name]; exists {
			continue
		}
		svc := mcpservice.New(name, svcCfg)
		m.services[name] = svc
	}
	m.mu.Unlock()

	m.mu.Lock()
	services := make([]*mcpservice.Service, 0, len(m.services))
	for _, svc := range m.services {
		services = append(services, svc)
	}
	m.mu.Unlock()

	for _, svc := range services {
		if err := svc.Start(ctx); err != nil {
			log.Warn().Str("service", svc.Name()).Err(err).Msg("mcp service failed to start")
		}
	}

	m.rebuildRegistry()
}

// Refresh rebuilds the merged tool registry from the current config and
// service set, used after an out-of-band config write (e.g. a raw
// PUT /api/config) that this Manager didn't perform itself.
func (m *Manager) Refresh() {
	m.rebuildRegistry()
}

// rebuildRegistry recomputes the merged tool registry from the current
// service set and the latest config's tool enable/disable settings and
// custom tools. Callers must not hold m.mu.
func (m *Manager) rebuildRegistry() {
	cfg := m.store.Get()

	m.mu.Lock()
	defer m.mu.Unlock()

	registry := make(map[string]*registryEntry)
	for _, svc := range m.services {
		for _, tool := range svc.Tools() {
			if setting, ok := cfg.Tools[tool.NamespacedName]; ok {
				tool.Enabled = setting.Enabled
			}
			registry[tool.NamespacedName] = &registryEntry{tool: tool, serviceName: svc.Name()}
		}
	}
	for i := range cfg.CustomTools {
		ct := cfg.CustomTools[i]
		tool := models.Tool{
			NamespacedName: ct.Name,
			ServiceName:    models.ReservedCustomServiceName,
			OriginalName:   ct.Name,
			Description:    ct.Description,
			InputSchema:    ct.InputSchema,
			Enabled:        true,
		}
		if setting, ok := cfg.Tools[ct.Name]; ok {
			tool.Enabled = setting.Enabled
		}
		registry[ct.Name] = &registryEntry{tool: tool, customTool: &ct, serviceName: models.ReservedCustomServiceName}
	}

	m.registry = registry
	m.bus.Emit(eventbus.TopicToolRegistryChanged, len(registry))
}

// AddService registers and starts a new MCP service, persists it to
// C1, and rebuilds the registry.
func (m *Manager) AddService(ctx context.Context, name string, cfg models.ServiceConfig) error {
	m.mu.Lock()
	if _, exists := m.services[name]; exists {
		m.mu.Unlock()
		return gwerrors.Newf(gwerrors.ServerAlreadyExists, "service %q already exists", name)
	}
	svc := mcpservice.New(name, cfg)
	m.services[name] = svc
	m.mu.Unlock()

	if _, err := m.store.AddService(name, cfg); err != nil {
		m.mu.Lock()
		delete(m.services, name)
		m.mu.Unlock()
		return err
	}

	if err := svc.Start(ctx); err != nil {
		log.Warn().Str("service", name).Err(err).Msg("mcp service failed to start after add")
	}

	m.rebuildRegistry()
	m.bus.Emit(eventbus.TopicServiceStatusChanged, svc.Status())
	return nil
}

// RemoveService stops and forgets a service, optionally leaving its
// config entry in place (cleanupConfig=false) for operators who want to
// re-add it without retyping the spec.
func (m *Manager) RemoveService(ctx context.Context, name string, graceful bool, cleanupConfig bool) ([]string, error) {
	m.mu.Lock()
	svc, ok := m.services[name]
	if !ok {
		m.mu.Unlock()
		return nil, gwerrors.Newf(gwerrors.ServerNotFound, "service %q not found", name)
	}
	delete(m.services, name)
	affected := affectedToolNames(m.registry, name)
	m.mu.Unlock()

	svc.Stop(graceful)

	if cleanupConfig {
		if _, err := m.store.RemoveService(name); err != nil {
			return nil, err
		}
	}

	m.rebuildRegistry()
	m.bus.Emit(eventbus.TopicServiceStatusChanged, models.ServiceState{Name: name, Status: models.ServiceStopped})
	return affected, nil
}

func (m *Manager) recordUsage(namespacedName string) {
	m.usageMu.Lock()
	defer m.usageMu.Unlock()
	stat, ok := m.usage[namespacedName]
	if !ok {
		stat = &usageStat{}
		m.usage[namespacedName] = stat
	}
	stat.count++
	stat.lastCalledAt = time.Now()
}

func affectedToolNames(registry map[string]*registryEntry, serviceName string) []string {
	var out []string
	prefix := serviceName + "__"
	for name := range registry {
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	return out
}

// CallTool resolves namespacedName in the registry and dispatches to
// the owning service or custom-tool proxy.
func (m *Manager) CallTool(ctx context.Context, namespacedName string, args map[string]interface{}) (json.RawMessage, error) {
	m.mu.Lock()
	entry, ok := m.registry[namespacedName]
	m.mu.Unlock()

	if !ok {
		return nil, gwerrors.Newf(gwerrors.ServiceOrToolNotFound, "tool %q is not registered", namespacedName)
	}
	if !entry.tool.Enabled {
		return nil, gwerrors.Newf(gwerrors.ToolDisabled, "tool %q is disabled", namespacedName)
	}

	m.recordUsage(namespacedName)

	if entry.customTool != nil {
		return m.proxy.Invoke(ctx, *entry.customTool, args)
	}

	m.mu.Lock()
	svc, ok := m.services[entry.serviceName]
	m.mu.Unlock()
	if !ok {
		return nil, gwerrors.Newf(gwerrors.ServiceOrToolNotFound, "service %q backing tool %q is gone", entry.serviceName, namespacedName)
	}

	raw, err := svc.CallTool(ctx, entry.tool.OriginalName, args)
	return raw, err
}

// GetAllTools returns the union view of every enabled+disabled tool in
// the registry (callers filter by status themselves, matching the
// ?status= query parameter semantics of GET /api/tools/list).
func (m *Manager) GetAllTools() []models.Tool {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Tool, 0, len(m.registry))
	for _, entry := range m.registry {
		tool := entry.tool
		m.usageMu.Lock()
		if stat, ok := m.usage[tool.NamespacedName]; ok {
			tool.CallCount = stat.count
			lastCalledAt := stat.lastCalledAt
			tool.LastCalledAt = &lastCalledAt
		}
		m.usageMu.Unlock()
		out = append(out, tool)
	}
	return out
}

// ServiceStatus returns one service's state, or an error if unknown.
func (m *Manager) ServiceStatus(name string) (models.ServiceState, error) {
	m.mu.Lock()
	svc, ok := m.services[name]
	m.mu.Unlock()
	if !ok {
		return models.ServiceState{}, gwerrors.Newf(gwerrors.ServerNotFound, "service %q not found", name)
	}
	return svc.Status(), nil
}

// ServiceTools returns the tools a specific service advertises.
func (m *Manager) ServiceTools(name string) ([]models.Tool, error) {
	m.mu.Lock()
	svc, ok := m.services[name]
	m.mu.Unlock()
	if !ok {
		return nil, gwerrors.Newf(gwerrors.ServerNotFound, "service %q not found", name)
	}
	return svc.Tools(), nil
}

// RestartService stops then starts a service in place.
func (m *Manager) RestartService(ctx context.Context, name string) error {
	m.mu.Lock()
	svc, ok := m.services[name]
	m.mu.Unlock()
	if !ok {
		return gwerrors.Newf(gwerrors.ServerNotFound, "service %q not found", name)
	}

	svc.Stop(true)
	m.bus.Emit(eventbus.TopicServiceRestartRequested, name)
	if err := svc.Start(ctx); err != nil {
		return gwerrors.Wrap(gwerrors.ServiceUnavailable, fmt.Sprintf("restart service %q", name), err)
	}
	m.rebuildRegistry()
	return nil
}

// AddCustomTool persists a custom tool to C1 and rebuilds the registry.
func (m *Manager) AddCustomTool(ct models.CustomTool) error {
	if _, err := m.store.AddCustomTool(ct); err != nil {
		return err
	}
	m.rebuildRegistry()
	return nil
}

// RemoveCustomTool removes a custom tool from C1 and rebuilds the registry.
func (m *Manager) RemoveCustomTool(name string) error {
	if _, err := m.store.RemoveCustomTool(name); err != nil {
		return err
	}
	m.rebuildRegistry()
	return nil
}

// SetToolEnabled flips a namespaced tool's enable flag in C1 and
// rebuilds the registry so the change is immediately observable.
func (m *Manager) SetToolEnabled(namespacedName string, enabled bool) error {
	if _, err := m.store.SetToolEnabled(namespacedName, enabled); err != nil {
		return err
	}
	m.rebuildRegistry()
	return nil
}

// TestConnection connects an ephemeral mcpservice.Service, lists its
// tools, and disconnects — used by the HTTP layer to validate a service
// spec before committing it to C1.
func (m *Manager) TestConnection(ctx context.Context, cfg models.ServiceConfig) models.TestConnectionResult {
	return mcpservice.TestConnection(ctx, cfg)
}

// StopAll stops every owned service, used on process shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	services := make([]*mcpservice.Service, 0, len(m.services))
	for _, svc := range m.services {
		services = append(services, svc)
	}
	m.mu.Unlock()

	for _, svc := range services {
		svc.Stop(true)
	}
}
