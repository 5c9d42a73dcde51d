// Package events defines the structured notifications the ledger emits while
// executing blocks.
package events

import "cdpledger/core/types"

// Event represents a structured state change emitted by the ledger.
type Event interface {
	EventType() string
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards every event.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Recorder keeps every emitted event in order. It is not safe for concurrent
// use.
type Recorder struct {
	Events []Event
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(e Event) {
	r.Events = append(r.Events, e)
}

// OfType returns the recorded events with the given type.
func (r *Recorder) OfType(eventType string) []*types.Event {
	var out []*types.Event
	for _, e := range r.Events {
		if e.EventType() == eventType {
			out = append(out, e.Event())
		}
	}
	return out
}

// Fanout forwards every event to each emitter in order.
type Fanout []Emitter

// Emit implements the Emitter interface.
func (f Fanout) Emit(e Event) {
	for _, em := range f {
		if em != nil {
			em.Emit(e)
		}
	}
}
