package session

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/campushq/advisor/internal/domain"
)

// MemoryStore keeps sessions in process memory. It is the default store
// and the one used when no database is configured.
type MemoryStore struct {
	historyCap int
	idleTTL    time.Duration
	logger     *slog.Logger
	now        func() time.Time

	mu       sync.Mutex
	sessions map[string]*memorySession
}

// memorySession carries its own lock so appends to one session serialize
// without blocking the whole store.
type memorySession struct {
	mu   sync.Mutex
	data Session
}

// NewMemoryStore creates an in-memory store. historyCap bounds exchanges
// per session; idleTTL is how long a session may sit untouched before
// EvictIdle removes it.
func NewMemoryStore(historyCap int, idleTTL time.Duration, logger *slog.Logger) *MemoryStore {
	if historyCap <= 0 {
		historyCap = 50
	}
	if idleTTL <= 0 {
		idleTTL = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryStore{
		historyCap: historyCap,
		idleTTL:    idleTTL,
		logger:     logger,
		now:        time.Now,
		sessions:   make(map[string]*memorySession),
	}
}

func (s *MemoryStore) GetOrCreate(_ context.Context, id string) (*Session, error) {
	s.mu.Lock()
	if id == "" {
		id = uuid.NewString()
	}
	ms, ok := s.sessions[id]
	if !ok {
		now := s.now().UTC()
		ms = &memorySession{data: Session{ID: id, CreatedAt: now, LastActive: now}}
		s.sessions[id] = ms
	}
	s.mu.Unlock()

	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.snapshot(), nil
}

func (s *MemoryStore) Append(_ context.Context, id string, ex domain.Exchange) error {
	s.mu.Lock()
	ms, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	history := ms.data.History
	if len(history) >= s.historyCap {
		// FIFO eviction. Shift in place so the backing array does not
		// pin evicted exchanges.
		n := copy(history, history[len(history)-s.historyCap+1:])
		history = history[:n]
	}
	ms.data.History = append(history, ex)
	ms.data.LastActive = s.now().UTC()
	ms.data.Profile = deriveProfile(ms.data.History)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.Lock()
	ms, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.snapshot(), nil
}

func (s *MemoryStore) List(_ context.Context, limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.Lock()
	all := make([]*memorySession, 0, len(s.sessions))
	for _, ms := range s.sessions {
		all = append(all, ms)
	}
	s.mu.Unlock()

	out := make([]*Session, 0, len(all))
	for _, ms := range all {
		ms.mu.Lock()
		snap := ms.snapshot()
		ms.mu.Unlock()
		snap.History = nil
		out = append(out, snap)
	}

	slices.SortFunc(out, func(a, b *Session) int {
		return b.LastActive.Compare(a.LastActive)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) EvictIdle(_ context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, ms := range s.sessions {
		ms.mu.Lock()
		idle := ms.data.LastActive.Before(cutoff)
		ms.mu.Unlock()
		if idle {
			delete(s.sessions, id)
			evicted++
		}
	}
	if evicted > 0 {
		s.logger.Info("evicted idle sessions", "count", evicted)
	}
	return evicted, nil
}

// snapshot copies the session so callers never share the stored slices.
// Callers must hold ms.mu.
func (ms *memorySession) snapshot() *Session {
	snap := ms.data
	snap.History = slices.Clone(ms.data.History)
	if ms.data.Profile != nil {
		snap.Profile = make(map[string]string, len(ms.data.Profile))
		for k, v := range ms.data.Profile {
			snap.Profile[k] = v
		}
	}
	return &snap
}
