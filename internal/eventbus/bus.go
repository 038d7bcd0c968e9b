// Package eventbus implements the gateway's in-process typed pub/sub.
// It decouples state producers (config store, endpoint connections,
// service manager) from consumers (the notification service, tests).
package eventbus

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Topic is one of the exhaustive set of event channels spec.md §4.2 names.
type Topic string

const (
	TopicConfigChanged          Topic = "config:changed"
	TopicEndpointStatusChanged  Topic = "endpoint:statusChanged"
	TopicServiceStatusChanged   Topic = "service:statusChanged"
	TopicServiceRestartRequested Topic = "service:restartRequested"
	TopicToolRegistryChanged    Topic = "tool:registryChanged"
	TopicWSMessageReceived      Topic = "ws:messageReceived"
)

// subscriberQueueCapacity bounds each subscriber's per-topic backlog.
// A slow subscriber drops its oldest pending event rather than block emit.
const subscriberQueueCapacity = 256

// Handler receives an event payload. It runs on the subscriber's own
// delivery goroutine, never on the publisher's goroutine.
type Handler func(payload interface{})

// Unsubscribe detaches a handler previously registered with Subscribe.
type Unsubscribe func()

type subscriber struct {
	id      uint64
	queue   chan interface{}
	done    chan struct{}
	handler Handler
}

// Bus is a typed, non-blocking, best-effort publish/subscribe fabric.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[Topic]map[uint64]*subscriber
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[Topic]map[uint64]*subscriber)}
}

// Subscribe registers handler on topic. Delivery for one subscriber on one
// topic is strictly ordered; call the returned Unsubscribe to detach.
func (b *Bus) Subscribe(topic Topic, handler Handler) Unsubscribe {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	sub := &subscriber{
		id:      id,
		queue:   make(chan interface{}, subscriberQueueCapacity),
		done:    make(chan struct{}),
		handler: handler,
	}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[uint64]*subscriber)
	}
	b.subs[topic][id] = sub
	b.mu.Unlock()

	go sub.run()

	return func() {
		b.mu.Lock()
		if m, ok := b.subs[topic]; ok {
			if s, ok := m[id]; ok {
				delete(m, id)
				close(s.done)
			}
		}
		b.mu.Unlock()
	}
}

func (s *subscriber) run() {
	for {
		select {
		case payload := <-s.queue:
			s.handler(payload)
		case <-s.done:
			return
		}
	}
}

// Emit delivers payload to every current subscriber of topic. It never
// blocks the caller: a subscriber whose queue is full has its oldest
// pending event dropped (logged) to make room for this one.
func (b *Bus) Emit(topic Topic, payload interface{}) {
	b.mu.RLock()
	subs := make([]*subscriber, 0, len(b.subs[topic]))
	for _, s := range b.subs[topic] {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		select {
		case s.queue <- payload:
		default:
			select {
			case <-s.queue:
				log.Warn().Str("topic", string(topic)).Msg("subscriber queue full, dropped oldest event")
			default:
			}
			select {
			case s.queue <- payload:
			default:
				log.Warn().Str("topic", string(topic)).Msg("subscriber queue full, dropped event")
			}
		}
	}
}
