// Package session is the single source of truth for conversation state.
//
// History is bounded with FIFO eviction, idle sessions are evicted by a
// sweep, and all reads and writes for one session are serialized. Other
// packages read and append through a Store; nobody holds an independent
// mutable copy.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/campushq/advisor/internal/domain"
)

// ErrNotFound is returned when a session id does not exist.
var ErrNotFound = errors.New("session not found")

// Session is a snapshot of one user's conversation state. Stores return
// copies; mutating a returned Session has no effect on stored state.
type Session struct {
	ID         string            `json:"id"`
	CreatedAt  time.Time         `json:"created_at"`
	LastActive time.Time         `json:"last_active"`
	History    []domain.Exchange `json:"history,omitempty"`
	Profile    map[string]string `json:"profile,omitempty"`
}

// Store keeps sessions. Implementations serialize all operations per
// session id.
type Store interface {
	// GetOrCreate returns the session for id, creating it on first
	// contact. An empty id creates a session under a fresh id.
	GetOrCreate(ctx context.Context, id string) (*Session, error)

	// Append records a completed exchange. History beyond the configured
	// cap is evicted oldest first.
	Append(ctx context.Context, id string, ex domain.Exchange) error

	// Get returns the session for id or ErrNotFound.
	Get(ctx context.Context, id string) (*Session, error)

	// List returns up to limit sessions ordered by most recent activity.
	// History is omitted; use Get for a full session.
	List(ctx context.Context, limit int) ([]*Session, error)

	// EvictIdle removes sessions idle since before now minus the
	// configured TTL and reports how many were removed.
	EvictIdle(ctx context.Context, now time.Time) (int, error)
}

// profileInterestKey names the derived attribute tracking which office a
// student asks about most.
const profileInterestKey = "primary_interest"

// deriveProfile recomputes derived attributes from history alone, so the
// profile stays consistent under FIFO eviction.
func deriveProfile(history []domain.Exchange) map[string]string {
	if len(history) == 0 {
		return nil
	}

	counts := make(map[domain.Domain]int)
	for _, ex := range history {
		for _, d := range ex.Domains {
			counts[d]++
		}
	}

	best, bestCount := domain.General, 0
	for _, d := range domain.AggregationOrder {
		if counts[d] > bestCount {
			best, bestCount = d, counts[d]
		}
	}
	if bestCount == 0 {
		return nil
	}
	return map[string]string{profileInterestKey: string(best)}
}
