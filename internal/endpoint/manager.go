// Package endpoint (continued): Manager (C7) owns every configured
// endpoint URL's Connection, persists additions/removals to C1, and
// exposes the idempotent connect/disconnect/reconnect operations the
// HTTP layer calls. Grounded on the teacher's internal/process.Manager
// single-mutex-over-a-map-of-lifecycles shape, reused here for
// Connections instead of process executors.
package endpoint

import (
	"context"
	"sync"

	"github.com/mcpbridge/gateway/internal/configstore"
	"github.com/mcpbridge/gateway/internal/eventbus"
	"github.com/mcpbridge/gateway/internal/gwerrors"
	"github.com/mcpbridge/gateway/pkg/models"
)

// Manager owns every configured endpoint's Connection.
type Manager struct {
	store             *configstore.Store
	bus               *eventbus.Bus
	dispatcherCommand string
	dispatcherArgs    []string

	mu    sync.Mutex
	conns map[string]*Connection
}

// New constructs an unstarted Manager. dispatcherCommand/dispatcherArgs
// are passed through to every Connection's dedicated subprocess.
func New(store *configstore.Store, bus *eventbus.Bus, dispatcherCommand string, dispatcherArgs []string) *Manager {
	return &Manager{
		store:             store,
		bus:               bus,
		dispatcherCommand: dispatcherCommand,
		dispatcherArgs:    dispatcherArgs,
		conns:             make(map[string]*Connection),
	}
}

// Start constructs and starts a Connection for every endpoint URL
// already present in C1.
func (m *Manager) Start(ctx context.Context) {
	urls := m.store.Endpoints()

	m.mu.Lock()
	for _, url := range urls {
		if _, exists := m.conns[url]; exists {
			continue
		}
		m.conns[url] = m.newConnection(url)
	}
	conns := make([]*Connection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.Unlock()

	for _, c := range conns {
		c.Start(ctx)
	}
}

func (m *Manager) newConnection(url string) *Connection {
	return NewConnection(url, m.store.Get().Connection, m.dispatcherCommand, m.dispatcherArgs, m.bus)
}

// Add registers a new endpoint URL: persists it to C1, creates its
// Connection, and starts connecting immediately.
func (m *Manager) Add(ctx context.Context, url string) error {
	m.mu.Lock()
	if _, exists := m.conns[url]; exists {
		m.mu.Unlock()
		return gwerrors.Newf(gwerrors.EndpointAlreadyExists, "endpoint %q already exists", url)
	}
	c := m.newConnection(url)
	m.conns[url] = c
	m.mu.Unlock()

	if _, err := m.store.AddEndpoint(url); err != nil {
		m.mu.Lock()
		delete(m.conns, url)
		m.mu.Unlock()
		return err
	}

	c.Start(ctx)
	return nil
}

// Remove disconnects and forgets an endpoint, removing it from C1.
func (m *Manager) Remove(ctx context.Context, url string) error {
	m.mu.Lock()
	c, ok := m.conns[url]
	if !ok {
		m.mu.Unlock()
		return gwerrors.Newf(gwerrors.EndpointNotFound, "endpoint %q not found", url)
	}
	delete(m.conns, url)
	m.mu.Unlock()

	c.Stop(ctx)
	_, err := m.store.RemoveEndpoint(url)
	return err
}

// Connect is a no-op if the endpoint is already running; otherwise it
// (re)starts the Connection's supervisor loop.
func (m *Manager) Connect(ctx context.Context, url string) error {
	c, err := m.get(url)
	if err != nil {
		return err
	}
	c.Start(ctx)
	return nil
}

// Disconnect is a no-op if the endpoint is already stopped; otherwise
// it halts reconnect attempts and tears down the socket and subprocess.
func (m *Manager) Disconnect(ctx context.Context, url string) error {
	c, err := m.get(url)
	if err != nil {
		return err
	}
	c.Stop(ctx)
	return nil
}

// Reconnect disconnects then reconnects an endpoint immediately,
// bypassing the normal backoff wait.
func (m *Manager) Reconnect(ctx context.Context, url string) error {
	c, err := m.get(url)
	if err != nil {
		return err
	}
	c.Stop(ctx)
	c.Start(ctx)
	return nil
}

func (m *Manager) get(url string) (*Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conns[url]
	if !ok {
		return nil, gwerrors.Newf(gwerrors.EndpointNotFound, "endpoint %q not found", url)
	}
	return c, nil
}

// Status returns every endpoint's current state, for the UI status
// snapshot built in pkg/server.
func (m *Manager) Status() []models.EndpointState {
	m.mu.Lock()
	conns := make([]*Connection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.Unlock()

	out := make([]models.EndpointState, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.State())
	}
	return out
}

// GetState returns one endpoint's current state, or EndpointNotFound.
func (m *Manager) GetState(url string) (models.EndpointState, error) {
	c, err := m.get(url)
	if err != nil {
		return models.EndpointState{}, err
	}
	return c.State(), nil
}

// StopAll stops every owned Connection, used on process shutdown.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	conns := make([]*Connection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func(c *Connection) {
			defer wg.Done()
			c.Stop(ctx)
		}(c)
	}
	wg.Wait()
}
