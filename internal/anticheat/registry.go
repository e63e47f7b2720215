package anticheat

import (
	"fmt"
	"sync"
	"time"

	"github.com/playguard/playguard/internal/idgen"
)

// Registry owns the set of live sessions. It is an injected dependency of
// the Recorder, never a package-level singleton, so tests and multi-tenant
// embeddings get isolated instances.
type Registry struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	whitelist map[string]struct{}
}

// NewRegistry creates a session registry accepting the given game IDs.
func NewRegistry(whitelist []string) *Registry {
	wl := make(map[string]struct{}, len(whitelist))
	for _, id := range whitelist {
		wl[id] = struct{}{}
	}
	return &Registry{
		sessions:  make(map[string]*Session),
		whitelist: wl,
	}
}

// Create validates gameID against the whitelist, generates an unpredictable
// session ID, and stores a fresh session stamped with startMs. Returns
// ErrUnknownGame for anything off the whitelist.
func (r *Registry) Create(gameID string, startMs int64) (*Session, error) {
	if _, ok := r.whitelist[gameID]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGame, gameID)
	}

	s := &Session{
		ID:                idgen.Session(),
		GameID:            gameID,
		StartTime:         startMs,
		lastSpeedFlagAt:   -1,
		lastPatternFlagAt: -1,
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	activeSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	return s, nil
}

// Get returns the live session for id, or nil. A nil result means "the
// session no longer exists", a normal outcome for stale handles, not an
// error.
func (r *Registry) Get(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// Take atomically removes and returns the session, or nil if it does not
// exist. Concurrent callers racing to finalize the same session see exactly
// one non-nil result.
func (r *Registry) Take(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil
	}
	delete(r.sessions, id)
	activeSessions.Set(float64(len(r.sessions)))
	return s
}

// Remove deletes the session. Idempotent: removing twice is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	activeSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep removes every session whose StartTime is older than maxAge and
// returns how many were evicted. This bounds memory from abandoned tabs
// that never call endSession. A swept session simply never produces a
// report.
func (r *Registry) Sweep(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge).UnixMilli()

	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, s := range r.sessions {
		if s.StartTime < cutoff {
			delete(r.sessions, id)
			evicted++
		}
	}
	if evicted > 0 {
		sessionsSwept.Add(float64(evicted))
	}
	activeSessions.Set(float64(len(r.sessions)))
	return evicted
}
