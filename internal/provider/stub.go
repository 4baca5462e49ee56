package provider

import (
	"context"
	"sync"
)

// StubProvider replays a scripted completion. It backs tests and lets the
// server run without an API key (provider.type = "stub").
type StubProvider struct {
	Deltas []string
	// RecvErr, when set, is returned after FailAfter deltas instead of the
	// remaining script.
	RecvErr   error
	FailAfter int
	// CompleteErr fails the stream before it opens.
	CompleteErr error

	mu      sync.Mutex
	calls   int
	prompts []string
}

func (p *StubProvider) Complete(ctx context.Context, prompt string) (Stream, error) {
	p.mu.Lock()
	p.calls++
	p.prompts = append(p.prompts, prompt)
	p.mu.Unlock()

	if p.CompleteErr != nil {
		return nil, p.CompleteErr
	}

	return &stubStream{
		ctx:       ctx,
		deltas:    p.Deltas,
		recvErr:   p.RecvErr,
		failAfter: p.FailAfter,
	}, nil
}

// Calls reports how many times Complete was invoked.
func (p *StubProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// LastPrompt returns the most recent prompt, or "" if none was sent.
func (p *StubProvider) LastPrompt() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.prompts) == 0 {
		return ""
	}
	return p.prompts[len(p.prompts)-1]
}

type stubStream struct {
	ctx       context.Context
	deltas    []string
	recvErr   error
	failAfter int
	pos       int
}

func (s *stubStream) Recv() (Event, error) {
	if err := s.ctx.Err(); err != nil {
		return Event{}, err
	}
	if s.recvErr != nil && s.pos >= s.failAfter {
		return Event{}, s.recvErr
	}
	if s.pos < len(s.deltas) {
		delta := s.deltas[s.pos]
		s.pos++
		return Event{Kind: Delta, Text: delta}, nil
	}
	return Event{Kind: Completed}, nil
}

func (s *stubStream) Close() error {
	return nil
}
