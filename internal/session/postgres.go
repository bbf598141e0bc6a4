package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campushq/advisor/internal/domain"
)

// PostgresStore persists sessions so conversations survive restarts.
// Per-session serialization rides on a row lock: every Append takes
// FOR UPDATE on the session row before touching its exchanges.
type PostgresStore struct {
	pool       *pgxpool.Pool
	historyCap int
	idleTTL    time.Duration
	logger     *slog.Logger
}

// NewPostgresStore creates a store over pool. See NewMemoryStore for the
// meaning of historyCap and idleTTL.
func NewPostgresStore(pool *pgxpool.Pool, historyCap int, idleTTL time.Duration, logger *slog.Logger) *PostgresStore {
	if historyCap <= 0 {
		historyCap = 50
	}
	if idleTTL <= 0 {
		idleTTL = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{pool: pool, historyCap: historyCap, idleTTL: idleTTL, logger: logger}
}

func (s *PostgresStore) GetOrCreate(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		id = uuid.NewString()
	}

	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (id, created_at, last_active)
		VALUES ($1, $2, $2)
		ON CONFLICT (id) DO NOTHING`, id, now)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	return s.load(ctx, id)
}

func (s *PostgresStore) Append(ctx context.Context, id string, ex domain.Exchange) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("beginning session append: %w", err)
	}
	defer tx.Rollback(ctx)

	// Serializes concurrent appends to the same session.
	var exists bool
	err = tx.QueryRow(ctx,
		`SELECT true FROM sessions WHERE id = $1 FOR UPDATE`, id).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("locking session: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO session_exchanges (session_id, ordinal, query, answer, domains, asked_at)
		VALUES ($1,
			(SELECT COALESCE(MAX(ordinal) + 1, 0) FROM session_exchanges WHERE session_id = $1),
			$2, $3, $4, $5)`,
		id, ex.Query, ex.Answer, domainStrings(ex.Domains), ex.AskedAt.UTC())
	if err != nil {
		return fmt.Errorf("inserting exchange: %w", err)
	}

	// FIFO cap: keep only the newest historyCap exchanges.
	_, err = tx.Exec(ctx, `
		DELETE FROM session_exchanges
		WHERE session_id = $1 AND ordinal <= (
			SELECT MAX(ordinal) - $2 FROM session_exchanges WHERE session_id = $1
		)`, id, s.historyCap)
	if err != nil {
		return fmt.Errorf("trimming history: %w", err)
	}

	history, err := loadHistory(ctx, tx, id)
	if err != nil {
		return err
	}
	profile, err := json.Marshal(deriveProfile(history))
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE sessions SET last_active = $2, profile = $3 WHERE id = $1`,
		id, time.Now().UTC(), profile)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Session, error) {
	return s.load(ctx, id)
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, created_at, last_active, profile
		FROM sessions
		ORDER BY last_active DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *PostgresStore) EvictIdle(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM sessions WHERE last_active < $1`, now.Add(-s.idleTTL).UTC())
	if err != nil {
		return 0, fmt.Errorf("evicting idle sessions: %w", err)
	}

	evicted := int(tag.RowsAffected())
	if evicted > 0 {
		s.logger.Info("evicted idle sessions", "count", evicted)
	}
	return evicted, nil
}

func (s *PostgresStore) load(ctx context.Context, id string) (*Session, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, created_at, last_active, profile FROM sessions WHERE id = $1`, id)
	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	sess.History, err = loadHistory(ctx, s.pool, id)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// querier is the common surface of pgxpool.Pool and pgx.Tx used here.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadHistory(ctx context.Context, q querier, id string) ([]domain.Exchange, error) {
	rows, err := q.Query(ctx, `
		SELECT query, answer, domains, asked_at
		FROM session_exchanges
		WHERE session_id = $1
		ORDER BY ordinal`, id)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	defer rows.Close()

	var history []domain.Exchange
	for rows.Next() {
		var ex domain.Exchange
		var domains []string
		if err := rows.Scan(&ex.Query, &ex.Answer, &domains, &ex.AskedAt); err != nil {
			return nil, fmt.Errorf("scanning exchange: %w", err)
		}
		for _, d := range domains {
			ex.Domains = append(ex.Domains, domain.Domain(d))
		}
		history = append(history, ex)
	}
	return history, rows.Err()
}

func scanSession(row pgx.Row) (*Session, error) {
	var sess Session
	var profile []byte
	if err := row.Scan(&sess.ID, &sess.CreatedAt, &sess.LastActive, &profile); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("scanning session: %w", err)
	}
	if len(profile) > 0 {
		if err := json.Unmarshal(profile, &sess.Profile); err != nil {
			return nil, fmt.Errorf("decoding profile: %w", err)
		}
	}
	return &sess, nil
}

func domainStrings(domains []domain.Domain) []string {
	out := make([]string, len(domains))
	for i, d := range domains {
		out[i] = string(d)
	}
	return out
}
