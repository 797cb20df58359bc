package kommand

import (
	"fmt"
	"sync"
)

var (
	// registry maps event names to their factory functions.
	// Each factory must return a new instance of a concrete Event type.
	registry = map[string]func() Event{}

	// mu protects access to the registry for concurrent operations.
	mu sync.RWMutex
)

// RegisterEvent registers an Event type under its EventType name, so
// storage adapters and consumers can rebuild concrete events from persisted
// type names. The factory must return a fresh instance on every call.
//
// Panics if the factory is nil, returns nil, or the name is already taken.
//
// Example:
//
//	RegisterEvent(func() Event { return &MoneyDeposited{} })
func RegisterEvent(fn func() Event) {
	if fn == nil {
		panic("cannot register nil factory")
	}
	RegisterEventName(fn().EventType(), fn)
}

// RegisterEventName registers an Event type under a custom name, independent
// of its type name. Same panics as RegisterEvent.
func RegisterEventName(name string, fn func() Event) {
	if fn == nil {
		panic("cannot register nil factory")
	}

	mu.Lock()
	defer mu.Unlock()

	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("event already registered: %s", name))
	}

	ev := fn()
	if ev == nil {
		panic(fmt.Sprintf("factory returned nil for event: %s", name))
	}

	registry[name] = fn
}

// NewEventByName creates a new instance of a registered Event by its name.
// Returns an error if the name is not registered or the factory returned nil.
func NewEventByName(name string) (Event, error) {
	mu.RLock()
	factory, ok := registry[name]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("event not registered: %s", name)
	}
	ev := factory()
	if ev == nil {
		return nil, fmt.Errorf("factory returned nil for event: %s", name)
	}
	return ev, nil
}
