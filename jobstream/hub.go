// Package jobstream implements a generic, best-effort multi-subscriber
// broadcast hub used for server-sent event streams. It knows nothing
// about Jobs or Chat Rooms: it forwards whatever JSON-serializable
// payload it is given, framed as a named SSE event. The job registry
// and the chat registry each own one Hub instance keyed to their own
// entities.
package jobstream

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
)

// Sink is the write side of a subscriber connection. Implementations
// are expected to be an http.ResponseWriter wrapped with a Flush
// method (see httpapi), but the hub only depends on this narrow
// contract so it stays testable without spinning up an HTTP server.
type Sink interface {
	Write(p []byte) (int, error)
	Flush()
}

type subscriber struct {
	id   string
	sink Sink
}

// Hub maintains a set of subscribers and broadcasts framed SSE events
// to all of them. Write-then-flush is best-effort: a sink whose Write
// fails is logged and left for the next Unsubscribe to clean up,
// the hub does not retry or buffer for a slow subscriber.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]*subscriber
	name string // used only for log messages
}

// New creates an empty Hub. name identifies the hub in log lines
// (e.g. "jobs" or "chat").
func New(name string) *Hub {
	return &Hub{
		subs: make(map[string]*subscriber),
		name: name,
	}
}

// Subscribe registers sink and immediately writes an "init" event
// carrying initPayload, flushing once. It returns the new subscriber
// id (generated here so callers never have to invent one).
func (h *Hub) Subscribe(sink Sink, initPayload any) string {
	id := uuid.New().String()

	h.mu.Lock()
	h.subs[id] = &subscriber{id: id, sink: sink}
	h.mu.Unlock()

	h.writeTo(sink, "init", initPayload)
	return id
}

// Unsubscribe removes a subscriber. It is safe to call more than
// once for the same id.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, id)
}

// Count returns the number of live subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Broadcast writes eventType/payload to every subscriber for which
// filter returns true. Pass a nil filter to broadcast to everyone.
func (h *Hub) Broadcast(eventType string, payload any, filter func(id string) bool) {
	h.mu.RLock()
	targets := make([]*subscriber, 0, len(h.subs))
	for id, s := range h.subs {
		if filter == nil || filter(id) {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range targets {
		h.writeTo(s.sink, eventType, payload)
	}
}

func (h *Hub) writeTo(sink Sink, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Error: %s hub: failed to marshal %s event payload: %v", h.name, eventType, err)
		return
	}

	frame := fmt.Sprintf("event: %s\ndata: %s\n\n", eventType, data)
	if _, err := sink.Write([]byte(frame)); err != nil {
		log.Printf("Warning: %s hub: write failed for subscriber, will be dropped on next unsubscribe: %v", h.name, err)
		return
	}
	sink.Flush()
}
