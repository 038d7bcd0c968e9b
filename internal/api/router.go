// Package api wires the gateway's HTTP surface: the chi router, its
// middleware chain, and every route from spec.md §6.1 onto
// internal/api/handlers.
//
// Grounded on the teacher's internal/api/router.go for the
// chi-plus-standard-middleware-chain-plus-cors shape; simplified here
// since this gateway has no tenant/auth middleware to mount.
package api

import (
	"net/http"
	"os"
	"strings"

	chi "github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/mcpbridge/gateway/internal/api/handlers"
	"github.com/mcpbridge/gateway/internal/api/middleware"
	"github.com/mcpbridge/gateway/internal/gwconfig"
)

// NewRouter builds the full HTTP handler for the gateway daemon.
func NewRouter(cfg *gwconfig.Config, h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)

	corsOrigins := parseCORSOrigins()
	isWildcard := len(corsOrigins) == 1 && corsOrigins[0] == "*"
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: !isWildcard,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(cfg))
	r.Get("/api/ws", h.Notify.HandleWS)

	r.Route("/api", func(r chi.Router) {
		r.Route("/endpoint", func(r chi.Router) {
			r.Post("/add", h.AddEndpoint)
			r.Post("/connect", h.ConnectEndpoint)
			r.Post("/disconnect", h.DisconnectEndpoint)
			r.Post("/reconnect", h.ReconnectEndpoint)
			r.Delete("/remove", h.RemoveEndpoint)
			r.Post("/status", h.EndpointStatus)
		})

		r.Route("/mcp-servers", func(r chi.Router) {
			r.Post("/", h.CreateService)
			r.Post("/test-connection", h.TestConnection)
			r.Route("/{name}", func(r chi.Router) {
				r.Delete("/", h.RemoveService)
				r.Get("/status", h.ServiceStatus)
				r.Get("/tools", h.ServiceTools)
				r.Put("/config", h.UpdateServiceConfig)
			})
		})

		r.Route("/tools", func(r chi.Router) {
			r.Post("/call", h.CallTool)
			r.Get("/list", h.ListTools)
			r.Post("/custom", h.CreateCustomTool)
			r.Delete("/custom/{toolName}", h.RemoveCustomTool)
		})

		r.Get("/config", h.GetConfig)
		r.Put("/config", h.PutConfig)
		r.Post("/config/reload", h.ReloadConfig)
		r.Get("/config/exists", h.ConfigExists)

		r.Route("/services", func(r chi.Router) {
			r.Post("/start", h.StartServices)
			r.Post("/stop", h.StopServices)
			r.Post("/restart", h.RestartServices)
		})
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func versionHandler(cfg *gwconfig.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"version":"` + cfg.Version + `"}`))
	}
}

func parseCORSOrigins() []string {
	if v := os.Getenv("MCPGW_CORS_ORIGINS"); v != "" {
		return strings.Split(v, ",")
	}
	return []string{"*"}
}
