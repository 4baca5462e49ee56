package provider

import "context"

type EventKind int

const (
	// Delta carries a fragment of the assistant reply.
	Delta EventKind = iota
	// Completed marks the end of a successful reply. No text.
	Completed
)

// Event is a vendor stream event normalized to the one shape the session
// core understands. Vendor events that map to neither kind are dropped by
// the adapter, never forwarded.
type Event struct {
	Kind EventKind
	Text string
}

// Stream is a lazy, finite sequence of normalized events. Recv returns the
// next event in upstream order, or an error if the underlying provider
// fails; failures are never normalized into events.
type Stream interface {
	Recv() (Event, error)
	Close() error
}

// Provider turns a single prompt into a streamed completion.
type Provider interface {
	Complete(ctx context.Context, prompt string) (Stream, error)
}
