package activity

import "context"

// Sink consumes batches of activity events. Implementations must be safe for
// repeated calls and honor ctx deadlines.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events; Hub satisfies this interface so caches
// and services stay agnostic about how events are buffered or persisted.
type Emitter interface {
	Emit(evt Event)
}

// Nop is an Emitter that discards events.
type Nop struct{}

// Emit implements Emitter.
func (Nop) Emit(Event) {}
