// Package configstore is the gateway's authoritative configuration
// manager (C1 in the design): it loads, validates, and mutates the
// typed Config document, persisting every successful mutation to disk
// atomically and publishing a change event on the event bus.
//
// Grounded on the teacher's internal/config env-loader in shape (a
// struct plus small conversion helpers) but backed by a JSON file
// rather than environment variables, since the gateway's configuration
// is itself a mutable document operators edit at runtime.
package configstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mcpbridge/gateway/internal/eventbus"
	"github.com/mcpbridge/gateway/internal/gwerrors"
	"github.com/mcpbridge/gateway/pkg/models"
	"github.com/rs/zerolog/log"
)

// Store is the single-writer, many-reader configuration manager.
type Store struct {
	path string
	bus  *eventbus.Bus

	mu  sync.Mutex
	cfg *models.Config
}

// Load reads path if it exists, or seeds a fresh Config if it doesn't.
// A load failure (unreadable file, malformed JSON, or a document that
// fails validation) is returned rather than silently falling back, so
// the daemon can refuse to start on a broken config rather than run
// with an unexpectedly empty one.
func Load(path string, bus *eventbus.Bus) (*Store, error) {
	s := &Store{path: path, bus: bus}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		s.cfg = models.NewConfig()
		if writeErr := s.writeFile(s.cfg); writeErr != nil {
			return nil, fmt.Errorf("seed config at %s: %w", path, writeErr)
		}
		log.Info().Str("path", path).Msg("seeded new gateway config")
		return s, nil
	}
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.ConfigurationError, "read config file", err)
	}

	var cfg models.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, gwerrors.Wrap(gwerrors.ConfigurationError, "parse config file", err)
	}
	dropUnresolvableTools(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	s.cfg = &cfg
	return s, nil
}

// dropUnresolvableTools removes tools entries that don't resolve to a
// known service or custom tool, per spec.md §4.1: "unknown keys are
// dropped with a warning on load."
func dropUnresolvableTools(cfg *models.Config) {
	for name := range cfg.Tools {
		if !resolvesToolName(cfg, name) {
			log.Warn().Str("tool", name).Msg("dropping unresolvable tool entry from config")
			delete(cfg.Tools, name)
		}
	}
}

// Get returns an immutable snapshot of the current configuration.
func (s *Store) Get() *models.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Clone()
}

// Update applies mutate to a clone of the current config, validates the
// result, and — only if validation succeeds and the document actually
// changed — persists it atomically and publishes config:changed. On any
// failure, or when mutate leaves the document's JSON encoding identical
// to the current in-memory config (an empty PUT /api/config body, a
// redundant add), the
// in-memory config and on-disk file are left exactly as they were and no
// event is published.
func (s *Store) Update(mutate func(*models.Config)) (*models.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidate := s.cfg.Clone()
	mutate(candidate)

	if err := validate(candidate); err != nil {
		return nil, err
	}

	before, err := json.Marshal(s.cfg)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.InternalError, "marshal current config", err)
	}
	after, err := json.Marshal(candidate)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.InternalError, "marshal candidate config", err)
	}
	if string(before) == string(after) {
		return candidate.Clone(), nil
	}

	if err := s.writeFile(candidate); err != nil {
		return nil, gwerrors.Wrap(gwerrors.InternalError, "persist config", err)
	}

	s.cfg = candidate
	snapshot := candidate.Clone()
	s.bus.Emit(eventbus.TopicConfigChanged, snapshot)
	return snapshot, nil
}

// Reload re-reads the on-disk document, discarding whatever is
// currently in memory, and publishes config:changed on success. Used by
// POST /api/config/reload for operators who edited the file directly.
func (s *Store) Reload() (*models.Config, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.ConfigurationError, "read config file", err)
	}

	var cfg models.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, gwerrors.Wrap(gwerrors.ConfigurationError, "parse config file", err)
	}
	dropUnresolvableTools(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cfg = &cfg
	snapshot := cfg.Clone()
	s.mu.Unlock()

	s.bus.Emit(eventbus.TopicConfigChanged, snapshot)
	return snapshot, nil
}

// writeFile persists cfg to s.path atomically: write to a sibling temp
// file, then rename over the target. A crash between these two steps
// leaves either the old file or nothing — never a half-written one.
func (s *Store) writeFile(cfg *models.Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".mcpgateway-config-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp config file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsync temp config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename config file into place: %w", err)
	}
	return nil
}

// ── Typed helpers ────────────────────────────────────────────

func (s *Store) Endpoints() []string {
	return s.Get().Endpoints
}

func (s *Store) Services() map[string]models.ServiceConfig {
	return s.Get().Services
}

func (s *Store) Tools() map[string]models.ToolSetting {
	return s.Get().Tools
}

func (s *Store) GetPlatformCredentials(name string) (map[string]string, bool) {
	cfg := s.Get()
	creds, ok := cfg.Platforms[name]
	return creds, ok
}

func (s *Store) SetToolEnabled(namespacedName string, enabled bool) (*models.Config, error) {
	return s.Update(func(c *models.Config) {
		setting := c.Tools[namespacedName]
		setting.Enabled = enabled
		c.Tools[namespacedName] = setting
	})
}

func (s *Store) AddEndpoint(url string) (*models.Config, error) {
	return s.Update(func(c *models.Config) {
		for _, existing := range c.Endpoints {
			if existing == url {
				return
			}
		}
		c.Endpoints = append(c.Endpoints, url)
	})
}

func (s *Store) RemoveEndpoint(url string) (*models.Config, error) {
	return s.Update(func(c *models.Config) {
		out := c.Endpoints[:0]
		for _, existing := range c.Endpoints {
			if existing != url {
				out = append(out, existing)
			}
		}
		c.Endpoints = out
	})
}

func (s *Store) AddService(name string, cfg models.ServiceConfig) (*models.Config, error) {
	return s.Update(func(c *models.Config) {
		c.Services[name] = cfg
	})
}

func (s *Store) RemoveService(name string) (*models.Config, error) {
	return s.Update(func(c *models.Config) {
		delete(c.Services, name)
		for toolName := range c.Tools {
			if resolvesToServiceName(toolName, name) {
				delete(c.Tools, toolName)
			}
		}
	})
}

func resolvesToServiceName(namespacedName, serviceName string) bool {
	prefix := serviceName + "__"
	return len(namespacedName) > len(prefix) && namespacedName[:len(prefix)] == prefix
}

func (s *Store) AddCustomTool(ct models.CustomTool) (*models.Config, error) {
	return s.Update(func(c *models.Config) {
		for i, existing := range c.CustomTools {
			if existing.Name == ct.Name {
				c.CustomTools[i] = ct
				return
			}
		}
		c.CustomTools = append(c.CustomTools, ct)
	})
}

func (s *Store) RemoveCustomTool(name string) (*models.Config, error) {
	return s.Update(func(c *models.Config) {
		out := c.CustomTools[:0]
		for _, existing := range c.CustomTools {
			if existing.Name != name {
				out = append(out, existing)
			}
		}
		c.CustomTools = out
		delete(c.Tools, name)
	})
}

// Path returns the backing file path (used by /api/config/exists).
func (s *Store) Path() string { return s.path }

// Exists reports whether the backing config file is present on disk.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}
