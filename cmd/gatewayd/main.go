// mcp-gateway daemon — the entry point for the MCP aggregation gateway.
//
// Normal mode starts the HTTP control API and every configured MCP
// service and WebSocket endpoint. A hidden "dispatch" sub-command is
// used internally by the endpoint manager's dispatcher subprocesses
// (see pkg/server and internal/dispatch) and is not meant to be
// invoked directly by an operator.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mcpbridge/gateway/internal/dispatch"
	"github.com/mcpbridge/gateway/internal/gwconfig"
	"github.com/mcpbridge/gateway/pkg/server"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Exit codes per the gateway's process contract.
const (
	exitOK               = 0
	exitFatalStartup     = 1
	exitEnvironmentError = 2
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if len(os.Args) > 1 && os.Args[1] == "dispatch" {
		os.Exit(runDispatch(os.Args[2:]))
	}
	os.Exit(runDaemon())
}

func runDispatch(args []string) int {
	fs := flag.NewFlagSet("dispatch", flag.ContinueOnError)
	port := fs.Int("port", 0, "gateway HTTP port to proxy tool calls to")
	if err := fs.Parse(args); err != nil || *port == 0 {
		fmt.Fprintln(os.Stderr, "dispatch: --port is required")
		return exitFatalStartup
	}

	if err := dispatch.Run(context.Background(), *port, os.Stdin, os.Stdout); err != nil {
		log.Error().Err(err).Msg("dispatch loop exited")
		return exitFatalStartup
	}
	return exitOK
}

func runDaemon() int {
	cfg := gwconfig.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, err := server.NewWithConfig(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize gateway")
		return exitFatalStartup
	}

	if err := writePidFile(cfg.PidPath); err != nil {
		log.Error().Err(err).Msg("failed to write pid file")
		return exitEnvironmentError
	}
	defer os.Remove(cfg.PidPath)

	srv.Start(ctx)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      srv.Handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("gateway HTTP server failed")
			return exitFatalStartup
		}
	case <-sigCh:
		log.Info().Msg("shutting down gateway")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown did not complete cleanly")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("gateway shutdown did not complete cleanly")
	}

	return exitOK
}

type pidFile struct {
	Pid             int    `json:"pid"`
	StartedAtMillis int64  `json:"startedAtMillis"`
	Mode            string `json:"mode"`
}

func writePidFile(path string) error {
	pf := pidFile{Pid: os.Getpid(), StartedAtMillis: time.Now().UnixMilli(), Mode: "daemon"}
	data, err := json.Marshal(pf)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
