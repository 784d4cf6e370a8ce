package events

import (
	"log/slog"
	"sort"

	"lendledger/core/types"
)

// Event represents a structured state change emitted by the chain.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// LogEmitter writes each event to a structured logger.
type LogEmitter struct {
	Logger *slog.Logger
}

// Emit implements the Emitter interface.
func (e LogEmitter) Emit(evt Event) {
	if e.Logger == nil || evt == nil {
		return
	}
	attrs := []any{slog.String("type", evt.EventType())}
	if r, ok := evt.(interface{ Event() *types.Event }); ok {
		rendered := r.Event()
		keys := make([]string, 0, len(rendered.Attributes))
		for key := range rendered.Attributes {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			attrs = append(attrs, slog.String(key, rendered.Attributes[key]))
		}
	}
	e.Logger.Info("event", attrs...)
}
