package testutil

import (
	"sync"

	"github.com/google/uuid"

	"github.com/udisondev/skygrid/internal/event"
	"github.com/udisondev/skygrid/internal/world"
)

// EventRecorder: потокобезопасный event.Sink, запоминающий все уведомления.
type EventRecorder struct {
	mu     sync.Mutex
	events []event.Event
}

// NewEventRecorder creates an empty recorder.
func NewEventRecorder() *EventRecorder {
	return &EventRecorder{}
}

// Publish implements event.Sink.
func (r *EventRecorder) Publish(ev event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of recorded notifications.
func (r *EventRecorder) Events() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.Event(nil), r.events...)
}

// LevelEvents returns recorded LevelComputed notifications.
func (r *EventRecorder) LevelEvents() []event.LevelComputed {
	var out []event.LevelComputed
	for _, ev := range r.Events() {
		if lc, ok := ev.(event.LevelComputed); ok {
			out = append(out, lc)
		}
	}
	return out
}

// Count returns number of recorded notifications of the given kind.
func (r *EventRecorder) Count(kind string) int {
	n := 0
	for _, ev := range r.Events() {
		if ev.Kind() == kind {
			n++
		}
	}
	return n
}

// MockPositions is an in-memory island.Positions. Players absent from the map are offline.
type MockPositions struct {
	mu  sync.RWMutex
	pos map[uuid.UUID]world.Location
}

// NewMockPositions creates an empty position table.
func NewMockPositions() *MockPositions {
	return &MockPositions{pos: make(map[uuid.UUID]world.Location)}
}

// Set places a player online at loc.
func (m *MockPositions) Set(id uuid.UUID, loc world.Location) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pos[id] = loc
}

// Offline removes a player.
func (m *MockPositions) Offline(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pos, id)
}

// Position implements island.Positions.
func (m *MockPositions) Position(id uuid.UUID) (world.Location, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	loc, ok := m.pos[id]
	return loc, ok
}
