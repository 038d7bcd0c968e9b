// Package notify implements the Notification Service (C8): a
// WebSocket fan-out hub that mirrors the gateway's internal event bus
// to every connected UI client, plus an initial full snapshot on
// connect so a client never has to guess the state it missed before
// subscribing.
//
// Grounded on internal/wsutil (this session's coder/websocket wrapper,
// itself grounded on the pack's MrWong99-glyphoxa/pkg/provider/s2s/openai
// usage) for the accept/read/write/close shape, and on the teacher's own
// notify.Service for the per-recipient fan-out-with-isolated-failure
// pattern (DispatchAll's "one bad recipient doesn't block the others").
package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcpbridge/gateway/internal/eventbus"
	"github.com/mcpbridge/gateway/internal/wsutil"
	"github.com/rs/zerolog/log"
)

// FrameType names the kind of payload a Frame carries.
type FrameType string

const (
	FrameConfig        FrameType = "config"
	FrameStatus        FrameType = "status"
	FrameConfigUpdate  FrameType = "configUpdate"
	FrameStatusUpdate  FrameType = "statusUpdate"
	FrameRestartStatus FrameType = "restartStatus"
	FrameError         FrameType = "error"
)

// Frame is the envelope every message sent to a UI client is wrapped in.
type Frame struct {
	Type      FrameType   `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// SnapshotFunc produces the current full state of one facet of the
// gateway (config, or combined service/endpoint/tool status) for the
// initial frame sent to a newly connected client.
type SnapshotFunc func() interface{}

const clientSendBuffer = 32

// Service is the WebSocket fan-out hub.
type Service struct {
	bus              *eventbus.Bus
	configSnapshot   SnapshotFunc
	statusSnapshot   SnapshotFunc
	insecureSkipVerify bool

	mu      sync.Mutex
	clients map[string]*client
}

type client struct {
	id     string
	conn   wsutil.Conn
	send   chan Frame
	cancel context.CancelFunc
}

// New constructs a Service and subscribes it to every topic the UI
// needs mirrored. The subscriptions live for the Service's lifetime;
// there is no Stop because the eventbus itself is torn down with the
// process.
func New(bus *eventbus.Bus, configSnapshot, statusSnapshot SnapshotFunc, insecureSkipVerifyTLS bool) *Service {
	s := &Service{
		bus:                bus,
		configSnapshot:     configSnapshot,
		statusSnapshot:     statusSnapshot,
		insecureSkipVerify: insecureSkipVerifyTLS,
		clients:            make(map[string]*client),
	}

	bus.Subscribe(eventbus.TopicConfigChanged, func(payload interface{}) {
		s.broadcast(Frame{Type: FrameConfig, Data: payload, Timestamp: time.Now()})
	})
	bus.Subscribe(eventbus.TopicEndpointStatusChanged, func(payload interface{}) {
		s.broadcast(Frame{Type: FrameStatus, Data: payload, Timestamp: time.Now()})
	})
	bus.Subscribe(eventbus.TopicServiceStatusChanged, func(payload interface{}) {
		s.broadcast(Frame{Type: FrameStatus, Data: payload, Timestamp: time.Now()})
	})
	bus.Subscribe(eventbus.TopicToolRegistryChanged, func(payload interface{}) {
		s.broadcast(Frame{Type: FrameStatus, Data: payload, Timestamp: time.Now()})
	})
	bus.Subscribe(eventbus.TopicServiceRestartRequested, func(payload interface{}) {
		s.broadcast(Frame{Type: FrameRestartStatus, Data: payload, Timestamp: time.Now()})
	})
	bus.Subscribe(eventbus.TopicWSMessageReceived, func(payload interface{}) {
		s.broadcast(Frame{Type: FrameStatus, Data: payload, Timestamp: time.Now()})
	})

	return s
}

// ServeWS upgrades r to a WebSocket, registers the client, sends it the
// initial snapshot, and blocks until the client disconnects.
func (s *Service) ServeWS(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	conn, err := wsutil.Accept(w, r, s.insecureSkipVerify)
	if err != nil {
		return err
	}

	clientCtx, cancel := context.WithCancel(ctx)
	c := &client{id: uuid.NewString(), conn: conn, send: make(chan Frame, clientSendBuffer), cancel: cancel}

	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()

	defer s.unregister(c)

	s.sendInitialSnapshot(c)

	go s.writeLoop(clientCtx, c)
	return s.readLoop(clientCtx, c)
}

func (s *Service) sendInitialSnapshot(c *client) {
	now := time.Now()
	if s.configSnapshot != nil {
		s.deliver(c, Frame{Type: FrameConfigUpdate, Data: s.configSnapshot(), Timestamp: now})
	}
	if s.statusSnapshot != nil {
		s.deliver(c, Frame{Type: FrameStatusUpdate, Data: s.statusSnapshot(), Timestamp: now})
	}
}

// readLoop only exists to detect the client going away (close frame or
// transport error); the gateway's WebSocket protocol is server-push only.
func (s *Service) readLoop(ctx context.Context, c *client) error {
	for {
		if _, err := c.conn.Read(ctx); err != nil {
			return err
		}
	}
}

func (s *Service) writeLoop(ctx context.Context, c *client) {
	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				return
			}
			if err := writeFrame(ctx, c.conn, frame); err != nil {
				log.Debug().Str("client", c.id).Err(err).Msg("notify client write failed, dropping")
				s.unregister(c)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) unregister(c *client) {
	s.mu.Lock()
	if _, ok := s.clients[c.id]; ok {
		delete(s.clients, c.id)
	}
	s.mu.Unlock()
	c.cancel()
	_ = c.conn.Close(1000, "disconnect")
}

// broadcast fans a frame out to every connected client. A client whose
// send buffer is full is skipped for this frame rather than blocking
// the others — the teacher's DispatchAll applies the same isolation at
// the recipient level.
func (s *Service) broadcast(frame Frame) {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		s.deliver(c, frame)
	}
}

func (s *Service) deliver(c *client, frame Frame) {
	select {
	case c.send <- frame:
	default:
		log.Warn().Str("client", c.id).Str("frameType", string(frame.Type)).Msg("notify client send buffer full, dropping frame")
	}
}

func writeFrame(ctx context.Context, conn wsutil.Conn, frame Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return conn.Write(ctx, data)
}

// ClientCount reports the number of currently connected UI clients,
// used by diagnostics/status handlers.
func (s *Service) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// HandleWS adapts ServeWS to an http.HandlerFunc for mounting directly
// on a router, logging rather than propagating the terminal error since
// the response has already been hijacked into a WebSocket by the time
// ServeWS can fail mid-stream.
func (s *Service) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := s.ServeWS(r.Context(), w, r); err != nil {
		log.Debug().Err(err).Msg("notify websocket session ended")
	}
}
