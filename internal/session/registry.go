package session

import (
	"context"
	"sync"
	"time"

	"recall-backend/internal/config"
	"recall-backend/internal/model"
	"recall-backend/internal/prompt"
	"recall-backend/internal/provider"
	"recall-backend/pkg/logger"

	"github.com/google/uuid"
)

// Registry is the process-wide store of stream sessions. It is an injected
// capability so the in-memory map can later be swapped for a shared store
// without touching session logic.
type Registry interface {
	// CreateAndStart validates the request, inserts a fresh session and
	// begins processing asynchronously. Invalid requests allocate nothing.
	CreateAndStart(ctx context.Context, req model.ChatRequest) (*StreamSession, error)
	Get(sessionID string) (*StreamSession, bool)
	Delete(sessionID string) bool
	Clear() int
	Len() int
}

type MemoryRegistry struct {
	provider provider.Provider
	cfg      config.SessionConfig

	mu       sync.RWMutex
	sessions map[string]*StreamSession

	stopSweep chan struct{}
	sweepOnce sync.Once
}

func NewMemoryRegistry(p provider.Provider, cfg config.SessionConfig) *MemoryRegistry {
	return &MemoryRegistry{
		provider:  p,
		cfg:       cfg,
		sessions:  make(map[string]*StreamSession),
		stopSweep: make(chan struct{}),
	}
}

func (r *MemoryRegistry) CreateAndStart(ctx context.Context, req model.ChatRequest) (*StreamSession, error) {
	if len(req.Messages) == 0 {
		return nil, ErrNoMessages
	}
	last := req.Messages[len(req.Messages)-1]
	if last.Role != model.RoleUser {
		return nil, ErrLastMessageNotUser
	}

	// Building the prompt up front rejects unknown commands before any
	// session or provider resources exist.
	promptText, err := prompt.Build(req.Messages, req.Context, req.Command)
	if err != nil {
		return nil, err
	}

	sess := newStreamSession(uuid.New().String(), last.ID)
	sess.Request = req

	r.mu.Lock()
	r.sessions[sess.ID] = sess
	r.mu.Unlock()

	go sess.run(ctx, r.provider, promptText, r.cfg.StreamTimeout)

	return sess, nil
}

func (r *MemoryRegistry) Get(sessionID string) (*StreamSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[sessionID]
	return sess, ok
}

func (r *MemoryRegistry) Delete(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sessionID]; !ok {
		return false
	}
	delete(r.sessions, sessionID)
	return true
}

func (r *MemoryRegistry) Clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.sessions)
	r.sessions = make(map[string]*StreamSession)
	return n
}

func (r *MemoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// StartSweeper evicts finished sessions older than the configured TTL.
// Pending and streaming sessions are never evicted.
func (r *MemoryRegistry) StartSweeper() {
	go func() {
		ticker := time.NewTicker(r.cfg.CleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.sweep(time.Now().Add(-r.cfg.TTL))
			case <-r.stopSweep:
				return
			}
		}
	}()
}

func (r *MemoryRegistry) StopSweeper() {
	r.sweepOnce.Do(func() { close(r.stopSweep) })
}

func (r *MemoryRegistry) sweep(cutoff time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, sess := range r.sessions {
		if sess.finishedBefore(cutoff) {
			delete(r.sessions, id)
			logger.Infof("evicted expired session %s", id)
		}
	}
}
