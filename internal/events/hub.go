package events

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync"
)

// ErrHubClosed is returned once Close has been called.
var ErrHubClosed = errors.New("event hub closed")

// Filter selects the events a client receives. Empty fields match everything.
type Filter struct {
	Chains []string
	Names  []string
}

// ParseFilter reads comma separated chain and event name lists.
func ParseFilter(chains, names string) Filter {
	return Filter{Chains: splitList(chains), Names: splitList(names)}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (f Filter) Matches(ev Event) bool {
	return matchAny(f.Chains, ev.Chain, true) && matchAny(f.Names, ev.Name, false)
}

func matchAny(list []string, v string, fold bool) bool {
	if len(list) == 0 {
		return true
	}
	for _, item := range list {
		if item == v || (fold && strings.EqualFold(item, v)) {
			return true
		}
	}
	return false
}

// Client is one stream subscriber. Send is closed when the client is unregistered.
type Client struct {
	ID     string
	Filter Filter
	Send   chan []byte
}

func NewClient(id string, filter Filter) *Client {
	return &Client{ID: id, Filter: filter, Send: make(chan []byte, 256)}
}

// Hub fans committed events out to websocket clients. A client whose
// buffer is full misses the event rather than stalling the chain.
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan Event
	done       chan struct{}
	closeOnce  sync.Once
	mutex      sync.RWMutex

	onCount func(int)
}

// NewHub starts the hub loop. onCount, if set, is called with the number of
// connected clients after every change.
func NewHub(onCount func(int)) *Hub {
	h := &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Event, 256),
		done:       make(chan struct{}),
		onCount:    onCount,
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.handleRegister(c)
		case c := <-h.unregister:
			h.handleUnregister(c)
		case ev := <-h.broadcast:
			h.handleBroadcast(ev)
		case <-h.done:
			h.mutex.Lock()
			for id, c := range h.clients {
				close(c.Send)
				delete(h.clients, id)
			}
			h.mutex.Unlock()
			return
		}
	}
}

func (h *Hub) Register(c *Client) error {
	if h.closed() {
		return ErrHubClosed
	}
	select {
	case h.register <- c:
		return nil
	case <-h.done:
		return ErrHubClosed
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Publish queues ev for delivery. It implements Sink.
func (h *Hub) Publish(ctx context.Context, ev Event) error {
	if h.closed() {
		return ErrHubClosed
	}
	select {
	case h.broadcast <- ev:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) Count() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func (h *Hub) closed() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

func (h *Hub) handleRegister(c *Client) {
	h.mutex.Lock()
	if old, ok := h.clients[c.ID]; ok && old != c {
		close(old.Send)
	}
	h.clients[c.ID] = c
	n := len(h.clients)
	h.mutex.Unlock()

	log.Printf("📱 Event stream client registered: %s", c.ID)
	h.count(n)
}

func (h *Hub) handleUnregister(c *Client) {
	h.mutex.Lock()
	current, ok := h.clients[c.ID]
	removed := ok && current == c
	if removed {
		delete(h.clients, c.ID)
		close(c.Send)
	}
	n := len(h.clients)
	h.mutex.Unlock()

	if removed {
		log.Printf("📱 Event stream client unregistered: %s", c.ID)
		h.count(n)
	}
}

func (h *Hub) handleBroadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("❌ Failed to marshal event %s: %v", ev.Name, err)
		return
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()
	for _, c := range h.clients {
		if !c.Filter.Matches(ev) {
			continue
		}
		select {
		case c.Send <- data:
		default:
			log.Printf("⚠️ Event stream client %s is full, dropped %s", c.ID, ev.Name)
		}
	}
}

func (h *Hub) count(n int) {
	if h.onCount != nil {
		h.onCount(n)
	}
}
