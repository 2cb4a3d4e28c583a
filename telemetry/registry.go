package telemetry

import (
	"errors"
	"strconv"
	"sync"
)

// MessageHandler decodes and acts on one message's payload.
type MessageHandler func(data *[]byte) error

// Message is one named entry in the wire vocabulary. Commands carry a
// handler; responses are defined with a nil handler and only ever
// travel outward.
type Message struct {
	ID      uint16
	Name    string
	Format  string
	Handler MessageHandler
}

// Registry assigns wire IDs in registration order and dispatches
// inbound messages to their handlers. The registration order is part of
// the protocol: the host hardcodes identify_response as ID 0 and
// identify as ID 1 to bootstrap, so those must be registered first.
type Registry struct {
	mu     sync.RWMutex
	byID   map[uint16]*Message
	byName map[string]uint16
	nextID uint16
}

func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[uint16]*Message),
		byName: make(map[string]uint16),
	}
}

// Register adds a message and returns its ID. Registering a name twice
// returns the existing ID unchanged.
func (r *Registry) Register(name string, format string, handler MessageHandler) uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, exists := r.byName[name]; exists {
		return id
	}

	id := r.nextID
	r.nextID++

	r.byID[id] = &Message{
		ID:      id,
		Name:    name,
		Format:  format,
		Handler: handler,
	}
	r.byName[name] = id

	return id
}

// Response registers an outbound-only message.
func (r *Registry) Response(name string, format string) uint16 {
	return r.Register(name, format, nil)
}

// Get returns a message by ID.
func (r *Registry) Get(id uint16) (*Message, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byID[id]
	return m, ok
}

// Lookup returns a message by name.
func (r *Registry) Lookup(name string) (*Message, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return r.byID[id], true
}

// Count returns the number of registered messages.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Dispatch routes an inbound message to its handler. Unknown IDs and
// handlerless messages are errors; the caller decides whether that
// costs frame sync.
func (r *Registry) Dispatch(id uint16, data *[]byte) error {
	m, ok := r.Get(id)
	if !ok {
		return errors.New("unknown message id " + strconv.Itoa(int(id)))
	}
	if m.Handler == nil {
		return errors.New("message " + m.Name + " has no handler")
	}
	return m.Handler(data)
}

// Ordered returns every message in wire ID order. The dictionary
// builder relies on this ordering so the host sees stable IDs.
func (r *Registry) Ordered() []*Message {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Message, 0, len(r.byID))
	for id := uint16(0); id < r.nextID; id++ {
		if m, ok := r.byID[id]; ok {
			out = append(out, m)
		}
	}
	return out
}
