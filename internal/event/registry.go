// Package event maps stored type identifiers back to domain events and fans events out to handlers.
package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/jnst/chat-backend/internal/model"
)

var (
	// ErrEmptyPayload is returned when a payload decodes to nothing.
	ErrEmptyPayload = errors.New("event payload is empty")
	// ErrAlreadyRegistered is returned when the same event type is registered twice.
	ErrAlreadyRegistered = errors.New("event type already registered")
)

// Decoder rebuilds a typed domain event from its serialized payload.
type Decoder func(payload []byte) (model.DomainEvent, error)

// Registry is the closed set of event types the process knows how to decode.
//
// Lookups go through an insert-once cache keyed by the exact identifier string.
// On a miss the full identifier is tried, then the unqualified type name, which
// lets records written under an older package path still resolve.
type Registry struct {
	mu      sync.RWMutex
	byID    map[string]Decoder
	byShort map[string][]string

	cache sync.Map // string -> Decoder
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:    make(map[string]Decoder),
		byShort: make(map[string][]string),
	}
}

// TypeID returns the stable identifier stored in the outbox for an event value.
func TypeID(evt model.DomainEvent) string {
	return typeID(reflect.TypeOf(evt))
}

// TypeIDOf returns the identifier for T without needing a value.
func TypeIDOf[T model.DomainEvent]() string {
	return typeID(reflect.TypeFor[T]())
}

func typeID(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	return t.PkgPath() + "." + t.Name()
}

// ShortName strips qualifiers from an identifier: anything after the first comma,
// then everything up to the last dot.
func ShortName(id string) string {
	if i := strings.IndexByte(id, ','); i >= 0 {
		id = id[:i]
	}

	id = strings.TrimSpace(id)
	if i := strings.LastIndexByte(id, '.'); i >= 0 {
		id = id[i+1:]
	}

	return id
}

// Register adds T to the registry.
func Register[T model.DomainEvent](r *Registry) error {
	id := TypeIDOf[T]()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[id]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, id)
	}

	r.byID[id] = decodeAs[T]
	short := ShortName(id)
	r.byShort[short] = append(r.byShort[short], id)

	return nil
}

// MustRegister is Register for startup wiring, where a duplicate is a programming error.
func MustRegister[T model.DomainEvent](r *Registry) {
	if err := Register[T](r); err != nil {
		panic(err)
	}
}

func decodeAs[T model.DomainEvent](payload []byte) (model.DomainEvent, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, ErrEmptyPayload
	}

	var evt T
	if err := json.Unmarshal(trimmed, &evt); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", TypeIDOf[T](), err)
	}

	return evt, nil
}

// Resolve returns the decoder registered for the identifier. The boolean is
// false when nothing matches, or when the short name is ambiguous.
func (r *Registry) Resolve(id string) (Decoder, bool) {
	if d, ok := r.cache.Load(id); ok {
		return d.(Decoder), true
	}

	d, ok := r.lookup(id)
	if !ok {
		return nil, false
	}

	actual, _ := r.cache.LoadOrStore(id, d)

	return actual.(Decoder), true
}

func (r *Registry) lookup(id string) (Decoder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if d, ok := r.byID[id]; ok {
		return d, true
	}

	candidates := r.byShort[ShortName(id)]
	if len(candidates) != 1 {
		return nil, false
	}

	return r.byID[candidates[0]], true
}

// Len returns the number of registered types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byID)
}
