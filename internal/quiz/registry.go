package quiz

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/victornm/keiko/internal/errors"
)

const defaultSessionTTL = time.Hour

type RegistryOption func(*Registry)

// WithSessionTTL sets how long a session may stay untouched before Sweep drops it.
func WithSessionTTL(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.ttl = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.now = now
	}
}

type entry struct {
	s       *Session
	touched time.Time
}

// Registry keeps the open sessions of the HTTP surface. Sessions left idle longer than the
// TTL are exited and dropped by Sweep.
type Registry struct {
	engine *Engine
	ttl    time.Duration
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
}

func NewRegistry(e *Engine, opts ...RegistryOption) *Registry {
	r := &Registry{
		engine:   e,
		ttl:      defaultSessionTTL,
		now:      time.Now,
		sessions: make(map[string]*entry),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

func (r *Registry) Open(ctx context.Context, loc Locator, student string) (*Session, error) {
	s, err := r.engine.Start(ctx, loc, student)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.sessions[s.ID()] = &entry{s: s, touched: r.now()}
	r.mu.Unlock()

	return s, nil
}

// Get returns an open session and marks it as touched.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[id]
	if !ok {
		return nil, errors.NotFound("session not found: %s", id)
	}

	e.touched = r.now()
	return e.s, nil
}

// Forget drops a session without touching its state.
func (r *Registry) Forget(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, id)
}

// Exit leaves and drops a session.
func (r *Registry) Exit(id string) error {
	s, err := r.Get(id)
	if err != nil {
		return err
	}

	s.Exit()
	r.Forget(id)
	return nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.sessions)
}

// Sweep exits and drops every session idle for longer than the TTL. It returns the number
// of sessions dropped.
func (r *Registry) Sweep(ctx context.Context) int {
	deadline := r.now().Add(-r.ttl)

	var idle []*Session

	r.mu.Lock()
	for id, e := range r.sessions {
		if e.touched.Before(deadline) {
			idle = append(idle, e.s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	// Exit waits for an operation in flight, so it runs outside the registry lock.
	for _, s := range idle {
		s.Exit()
	}

	if len(idle) > 0 {
		slog.InfoContext(ctx, "quiz: idle sessions dropped", "count", len(idle), "ttl", r.ttl)
	}

	return len(idle)
}

// RunSweeper calls Sweep every interval until ctx is done.
func (r *Registry) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = r.ttl / 4
	}

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Sweep(ctx)
		}
	}
}
