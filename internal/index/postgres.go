package index

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Postgres is the pgvector-backed index. Chunks carry a generation column
// and queries filter on the single active generation recorded in
// index_state, so a rebuild becomes visible in one transactional pointer
// flip and readers never mix generations.
//
// Postgres is safe for concurrent use.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgres creates a Postgres index on pool. The pool must have
// pgvector types registered (see app.Setup).
func NewPostgres(pool *pgxpool.Pool, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{pool: pool, logger: logger}
}

const activeGenerationSQL = `SELECT active_generation FROM index_state WHERE id = 1`

// Upsert adds or replaces chunks by ID within the active generation.
func (p *Postgres) Upsert(ctx context.Context, batch []Chunk) error {
	if len(batch) == 0 {
		return nil
	}
	if err := validateChunks(batch); err != nil {
		return err
	}

	var active int64
	if err := p.pool.QueryRow(ctx, activeGenerationSQL).Scan(&active); err != nil {
		return fmt.Errorf("reading active generation: %w", err)
	}

	b := &pgx.Batch{}
	for _, c := range batch {
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("marshalling metadata for chunk %s: %w", c.ID, err)
		}
		b.Queue(`
			INSERT INTO chunks (id, generation, document_id, ordinal, content, embedding, metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (generation, id) DO UPDATE
			SET document_id = EXCLUDED.document_id,
			    ordinal     = EXCLUDED.ordinal,
			    content     = EXCLUDED.content,
			    embedding   = EXCLUDED.embedding,
			    metadata    = EXCLUDED.metadata`,
			c.ID, active, c.DocumentID, c.Ordinal, c.Text,
			pgvector.NewVector(c.Embedding), meta)
	}

	if err := p.pool.SendBatch(ctx, b).Close(); err != nil {
		return fmt.Errorf("upserting %d chunks: %w", len(batch), err)
	}

	p.logger.Debug("upserted chunks", "batch", len(batch), "generation", active)
	return nil
}

// Rebuild writes chunks as the next generation and flips the active
// pointer, all in one transaction. Any failure rolls back and the old
// generation keeps serving; rows of superseded generations are removed
// after the flip.
func (p *Postgres) Rebuild(ctx context.Context, chunks []Chunk) error {
	if err := validateChunks(chunks); err != nil {
		return fmt.Errorf("%w: %v", ErrRebuildFailed, err)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrRebuildFailed, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Serialize rebuilds against each other; readers are unaffected until
	// the commit flips the pointer.
	var active int64
	if err := tx.QueryRow(ctx, activeGenerationSQL+` FOR UPDATE`).Scan(&active); err != nil {
		return fmt.Errorf("%w: locking index state: %v", ErrRebuildFailed, err)
	}
	next := active + 1

	rows := make([][]any, 0, len(chunks))
	seen := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		if _, dup := seen[c.ID]; dup {
			continue // deterministic: first occurrence wins within a rebuild
		}
		seen[c.ID] = struct{}{}
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("%w: marshalling metadata for chunk %s: %v", ErrRebuildFailed, c.ID, err)
		}
		rows = append(rows, []any{
			c.ID, next, c.DocumentID, c.Ordinal, c.Text,
			pgvector.NewVector(c.Embedding), meta,
		})
	}

	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"chunks"},
		[]string{"id", "generation", "document_id", "ordinal", "content", "embedding", "metadata"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("%w: copying chunks: %v", ErrRebuildFailed, err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE index_state SET active_generation = $1 WHERE id = 1`, next); err != nil {
		return fmt.Errorf("%w: flipping active generation: %v", ErrRebuildFailed, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE generation < $1`, next); err != nil {
		return fmt.Errorf("%w: pruning old generations: %v", ErrRebuildFailed, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrRebuildFailed, err)
	}

	p.logger.Info("index rebuilt", "generation", next, "chunks", len(rows))
	return nil
}

// Search returns at most k hits matching scope, ordered by descending
// cosine similarity with ties broken by chunk ID.
func (p *Postgres) Search(ctx context.Context, vector []float32, k int, scope string) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}

	query := `
		SELECT id, document_id, ordinal, content, metadata,
		       1 - (embedding <=> $1) AS similarity
		FROM chunks
		WHERE generation = (` + activeGenerationSQL + `)`
	args := []any{pgvector.NewVector(vector)}

	if scope != "" && scope != "all" {
		query += ` AND metadata->>'topic' = $2`
		args = append(args, scope)
	}
	query += fmt.Sprintf(` ORDER BY embedding <=> $1 ASC, id ASC LIMIT %d`, k)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			c    Chunk
			meta []byte
			sim  float64
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Ordinal, &c.Text, &meta, &sim); err != nil {
			return nil, fmt.Errorf("scanning chunk row: %w", err)
		}
		if err := json.Unmarshal(meta, &c.Metadata); err != nil {
			p.logger.Warn("unparsable chunk metadata", "chunk_id", c.ID, "error", err)
			c.Metadata = map[string]string{}
		}
		hits = append(hits, Hit{Chunk: c, Similarity: float32(sim)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunk rows: %w", err)
	}
	return hits, nil
}

// Count returns the number of chunks matching scope in the active
// generation.
func (p *Postgres) Count(ctx context.Context, scope string) (int, error) {
	query := `SELECT count(*) FROM chunks WHERE generation = (` + activeGenerationSQL + `)`
	args := []any{}
	if scope != "" && scope != "all" {
		query += ` AND metadata->>'topic' = $1`
		args = append(args, scope)
	}

	var n int64
	if err := p.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return int(n), nil
}
