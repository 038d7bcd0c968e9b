// Package gwconfig holds the process-wide settings read from the
// environment at startup: listen port, telemetry, and the path to the
// persisted gateway configuration document owned by internal/configstore.
package gwconfig

import (
	"os"
	"strconv"
)

// Config holds process-wide settings for the gateway daemon.
type Config struct {
	Port       int
	Version    string
	ConfigPath string
	PidPath    string
	Telemetry  TelemetryConfig
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:       envInt("MCPGW_PORT", 8787),
		Version:    envStr("MCPGW_VERSION", "0.1.0"),
		ConfigPath: envStr("MCPGW_CONFIG_PATH", "./mcpgateway.config.json"),
		PidPath:    envStr("MCPGW_PID_PATH", "./mcpgateway.pid"),
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "mcp-gateway"),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
