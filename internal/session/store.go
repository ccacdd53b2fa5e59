package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "armpose/internal/errors"
	"armpose/internal/infrastructure"
)

// ErrSessionNotFound is returned for unknown session IDs
var ErrSessionNotFound = apperrors.NewNotFoundError("session")

// Store is an in-memory, mutex-guarded session registry
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	metrics  *infrastructure.BusinessMetrics
}

// NewStore creates an empty store. metrics may be nil.
func NewStore(metrics *infrastructure.BusinessMetrics) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		metrics:  metrics,
	}
}

// Create registers a new session with a random ID
func (s *Store) Create(ctx context.Context) *Session {
	sess := New(uuid.NewString())

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	infrastructure.RecordActiveSessionChange(ctx, s.metrics, 1)
	return sess
}

// Get returns the session with id
func (s *Store) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Delete removes a session and stops its playback
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	sess.Reset()
	infrastructure.RecordActiveSessionChange(ctx, s.metrics, -1)
	return nil
}

// List returns session summaries, oldest first
func (s *Store) List() []Summary {
	s.mu.RLock()
	all := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	s.mu.RUnlock()

	out := make([]Summary, len(all))
	for i, sess := range all {
		out[i] = sess.Summary()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Len returns the number of live sessions
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// CleanupIdle removes sessions not modified for longer than idle and
// returns how many were removed.
func (s *Store) CleanupIdle(ctx context.Context, idle time.Duration) int {
	cutoff := time.Now().Add(-idle)

	s.mu.RLock()
	all := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	s.mu.RUnlock()

	// session locks are never taken while the store lock is held
	var idleSessions []*Session
	for _, sess := range all {
		if sess.UpdatedAt().Before(cutoff) {
			idleSessions = append(idleSessions, sess)
		}
	}

	var stale []*Session
	s.mu.Lock()
	for _, sess := range idleSessions {
		if s.sessions[sess.ID] == sess {
			stale = append(stale, sess)
			delete(s.sessions, sess.ID)
		}
	}
	s.mu.Unlock()

	for _, sess := range stale {
		sess.Reset()
	}
	if len(stale) > 0 {
		infrastructure.RecordActiveSessionChange(ctx, s.metrics, -int64(len(stale)))
	}
	return len(stale)
}
