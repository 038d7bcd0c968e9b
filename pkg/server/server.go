// Package server is the public entry point for initializing the MCP
// gateway: it wires the configuration store, event bus, service
// manager, endpoint manager, notification hub and HTTP router into one
// ready-to-serve unit.
//
// Grounded on the teacher's pkg/server.New/buildServer two-call shape
// (LoadConfig, then a build function assembling every component),
// trimmed to this gateway's nine components — no store-backed tenancy,
// no pluggable auth chain, no embedding/vectorstore registries.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/mcpbridge/gateway/internal/api"
	"github.com/mcpbridge/gateway/internal/api/handlers"
	"github.com/mcpbridge/gateway/internal/configstore"
	"github.com/mcpbridge/gateway/internal/endpoint"
	"github.com/mcpbridge/gateway/internal/eventbus"
	"github.com/mcpbridge/gateway/internal/gwconfig"
	"github.com/mcpbridge/gateway/internal/notify"
	"github.com/mcpbridge/gateway/internal/servicemgr"
	"github.com/mcpbridge/gateway/internal/telemetry"
	"github.com/rs/zerolog/log"
)

// dispatchSubcommand is the hidden main.go mode each endpoint's
// dispatcher subprocess is launched into: a self-exec of the gatewayd
// binary that speaks line-delimited JSON-RPC on stdio and proxies every
// request to this same process's own HTTP API, rather than a separate
// dispatcher binary the teacher would have shelled out to.
const dispatchSubcommand = "dispatch"

// Server holds the initialized gateway daemon.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Store is the configuration document owner (C1).
	Store *configstore.Store

	// Bus is the in-process event bus every component publishes to.
	Bus *eventbus.Bus

	// Services owns every configured MCP service and custom tool (C5).
	Services *servicemgr.Manager

	// Endpoints owns every configured WebSocket endpoint pipe (C6/C7).
	Endpoints *endpoint.Manager

	// Notify is the UI-facing WebSocket fan-out hub (C8).
	Notify *notify.Service

	// Config is the process-wide settings this server was built with.
	Config *gwconfig.Config

	// shutdownTelemetry flushes the OpenTelemetry tracer provider.
	shutdownTelemetry func(context.Context) error
}

// New loads configuration from the environment and builds a Server.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, gwconfig.Load())
}

// NewWithConfig builds a Server from an explicit configuration, used by
// New and by main.go's daemon mode.
func NewWithConfig(ctx context.Context, cfg *gwconfig.Config) (*Server, error) {
	shutdown, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	bus := eventbus.New()

	store, err := configstore.Load(cfg.ConfigPath, bus)
	if err != nil {
		return nil, fmt.Errorf("load config store: %w", err)
	}
	log.Info().Str("path", cfg.ConfigPath).Msg("config store loaded")

	services := servicemgr.New(store, bus)
	log.Info().Msg("service manager initialized")

	selfExec, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve self executable for dispatcher: %w", err)
	}
	dispatcherArgs := []string{dispatchSubcommand, "--port", strconv.Itoa(cfg.Port)}
	endpoints := endpoint.New(store, bus, selfExec, dispatcherArgs)
	log.Info().Msg("endpoint manager initialized")

	notifier := notify.New(bus,
		func() interface{} { return store.Get() },
		func() interface{} { return statusSnapshot(services, endpoints) },
		false,
	)
	log.Info().Msg("notification service initialized")

	h := handlers.New(store, services, endpoints, notifier)
	router := api.NewRouter(cfg, h)

	return &Server{
		Handler:           router,
		Store:             store,
		Bus:               bus,
		Services:          services,
		Endpoints:         endpoints,
		Notify:            notifier,
		Config:            cfg,
		shutdownTelemetry: shutdown,
	}, nil
}

// statusSnapshot composes the status view sent to a UI client on initial
// connect in the statusUpdate frame: the merged tool list and every
// endpoint's state. Per-service states are not included.
func statusSnapshot(services *servicemgr.Manager, endpoints *endpoint.Manager) map[string]interface{} {
	return map[string]interface{}{
		"tools":     services.GetAllTools(),
		"endpoints": endpoints.Status(),
	}
}

// Start brings up every background component: connects configured MCP
// services, then dials configured WebSocket endpoints.
func (s *Server) Start(ctx context.Context) {
	s.Services.Start(ctx)
	s.Endpoints.Start(ctx)
}

// Shutdown stops every background component and flushes telemetry.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Endpoints.StopAll(ctx)
	s.Services.StopAll()
	if s.shutdownTelemetry != nil {
		return s.shutdownTelemetry(ctx)
	}
	return nil
}

