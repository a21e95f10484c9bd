package sse

import (
	"encoding/json"
	"path"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	apperrors "github.com/kbukum/tsengine/errors"
	"github.com/kbukum/tsengine/logger"
)

const (
	clientBuffer    = 256
	broadcastBuffer = 256
)

// Client is one subscriber. It receives the events whose topic matches its
// pattern.
type Client struct {
	id      string
	pattern string
	events  chan frame
	dropped atomic.Int64
}

// NewClient returns a client subscribed to pattern.
func NewClient(pattern string) *Client {
	return &Client{
		id:      uuid.NewString(),
		pattern: pattern,
		events:  make(chan frame, clientBuffer),
	}
}

func (c *Client) ID() string      { return c.id }
func (c *Client) Pattern() string { return c.pattern }

// Dropped returns how many events were discarded because the client fell
// behind.
func (c *Client) Dropped() int64 { return c.dropped.Load() }

func (c *Client) send(f frame) bool {
	select {
	case c.events <- f:
		return true
	default:
		c.dropped.Add(1)
		return false
	}
}

type message struct {
	topic string
	frame frame
}

// Hub routes published events to matching clients. Run must be running for
// registrations and events to be delivered.
type Hub struct {
	log        *logger.Logger
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan message
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
	published  atomic.Int64
}

// NewHub returns a hub that is not yet running.
func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.NewNop()
	}
	return &Hub{
		log:        log.WithComponent("sse"),
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan message, broadcastBuffer),
		done:       make(chan struct{}),
	}
}

// Run delivers registrations and events until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.closeAll()
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.id] = c
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("client subscribed", logger.Fields("client_id", c.id, "pattern", c.pattern, "clients", n))
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c.id]; ok {
				delete(h.clients, c.id)
				close(c.events)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("client unsubscribed", logger.Fields("client_id", c.id, "clients", n))
		case m := <-h.broadcast:
			h.deliver(m)
		}
	}
}

// Stop closes every client and makes Run return. It is idempotent.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		close(c.events)
		delete(h.clients, id)
	}
}

// Register subscribes c. It reports false when the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes c and closes its event channel.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Publish encodes data as JSON and queues it for every client whose
// pattern matches topic. It never blocks: when the queue is full or the hub
// has stopped the event is dropped.
func (h *Hub) Publish(topic, event string, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return apperrors.Internal(err).WithDetail("topic", topic)
	}
	select {
	case <-h.done:
		return nil
	default:
	}
	select {
	case h.broadcast <- message{topic: topic, frame: frame{event: event, data: b}}:
		h.published.Add(1)
	default:
		h.log.Warn("event queue full, dropping event", logger.Fields("topic", topic, "event", event))
	}
	return nil
}

func (h *Hub) deliver(m message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if ok, _ := path.Match(c.pattern, m.topic); !ok {
			continue
		}
		if !c.send(m.frame) {
			h.log.Warn("client too slow, dropping event", logger.Fields("client_id", c.id, "topic", m.topic))
		}
	}
}

// ClientCount returns the number of subscribed clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Published returns the number of events accepted by Publish.
func (h *Hub) Published() int64 { return h.published.Load() }
