package events

import (
	"context"
	"io"
)

// Sink accepts events from a Source. Implementations must be safe to call
// from any goroutine.
type Sink interface {
	// Submit hands over a decoded event.
	Submit(ctx context.Context, ev Event) error
	// SubmitRaw hands over an undecoded envelope.
	SubmitRaw(ctx context.Context, raw []byte) error
}

// Source delivers events to a sink until the returned closer is closed.
// Close must stop all deliveries before it returns.
type Source interface {
	Subscribe(ctx context.Context, sink Sink) (io.Closer, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, sink Sink) (io.Closer, error)

// Subscribe calls f(ctx, sink).
func (f SourceFunc) Subscribe(ctx context.Context, sink Sink) (io.Closer, error) {
	return f(ctx, sink)
}
