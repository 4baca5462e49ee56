package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"recall-backend/internal/model"
	"recall-backend/internal/provider"
	"recall-backend/pkg/logger"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusStreaming Status = "streaming"
	StatusComplete  Status = "complete"
	StatusFailed    Status = "failed"
)

// StreamSession is one in-flight exchange with the completion provider. It
// emits a single linear sequence of events on Events(): metadata first, then
// zero or more content events, terminated by exactly one of done or error,
// after which the channel closes.
type StreamSession struct {
	ID        string
	StartedAt int64
	Cursor    string
	Request   model.ChatRequest

	events chan model.StreamEvent

	mu         sync.RWMutex
	status     Status
	finishedAt time.Time
}

func newStreamSession(id, cursor string) *StreamSession {
	return &StreamSession{
		ID:        id,
		StartedAt: time.Now().UnixMilli(),
		Cursor:    cursor,
		events:    make(chan model.StreamEvent, 64),
		status:    StatusPending,
	}
}

// Events is the session's output stream. Closed after the terminal event.
func (s *StreamSession) Events() <-chan model.StreamEvent {
	return s.events
}

func (s *StreamSession) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *StreamSession) setStatus(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	if status == StatusComplete || status == StatusFailed {
		s.finishedAt = time.Now()
	}
}

// finishedBefore reports whether the session reached a terminal status
// before the given cutoff. Active sessions never qualify.
func (s *StreamSession) finishedBefore(cutoff time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status != StatusComplete && s.status != StatusFailed {
		return false
	}
	return s.finishedAt.Before(cutoff)
}

// run drives the provider stream to completion. The consumer may stop
// reading at any point (client disconnect); ctx cancellation unblocks every
// send, so run never leaks.
func (s *StreamSession) run(ctx context.Context, p provider.Provider, prompt string, timeout time.Duration) {
	defer close(s.events)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("session %s: panic during streaming: %v", s.ID, r)
			s.fail(ctx, fmt.Sprintf("internal error: %v", r))
		}
	}()

	if !s.emit(ctx, model.MetadataEvent(s.StartedAt, s.Cursor)) {
		s.setStatus(StatusFailed)
		return
	}

	stream, err := p.Complete(ctx, prompt)
	if err != nil {
		s.fail(ctx, err.Error())
		return
	}
	defer stream.Close()

	for {
		ev, err := stream.Recv()
		if err != nil {
			s.fail(ctx, err.Error())
			return
		}

		switch ev.Kind {
		case provider.Delta:
			s.setStatus(StatusStreaming)
			if !s.emit(ctx, model.ContentEvent(ev.Text)) {
				s.setStatus(StatusFailed)
				return
			}
		case provider.Completed:
			s.emit(ctx, model.DoneEvent())
			s.setStatus(StatusComplete)
			return
		}
	}
}

// fail marks the session failed and emits the error frame best-effort; the
// transport may already be gone.
func (s *StreamSession) fail(ctx context.Context, message string) {
	logger.Warnf("session %s: stream failed: %s", s.ID, message)
	s.emit(ctx, model.ErrorEvent(message))
	s.setStatus(StatusFailed)
}

func (s *StreamSession) emit(ctx context.Context, ev model.StreamEvent) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
