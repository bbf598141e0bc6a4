package app

import (
	"context"
	"log/slog"

	"github.com/campushq/advisor/internal/index"
)

// snapshottingIndex persists the in-memory index to disk after every
// successful write, so indexed chunks survive a restart without
// re-embedding.
type snapshottingIndex struct {
	*index.Memory
	path   string
	logger *slog.Logger
}

func (s *snapshottingIndex) Rebuild(ctx context.Context, chunks []index.Chunk) error {
	if err := s.Memory.Rebuild(ctx, chunks); err != nil {
		return err
	}
	s.save()
	return nil
}

func (s *snapshottingIndex) Upsert(ctx context.Context, batch []index.Chunk) error {
	if err := s.Memory.Upsert(ctx, batch); err != nil {
		return err
	}
	s.save()
	return nil
}

// save failures are logged, not returned: the new generation is already
// live in memory and losing the snapshot only costs a re-run of ingest
// after a restart.
func (s *snapshottingIndex) save() {
	if err := s.Memory.SaveSnapshot(s.path); err != nil {
		s.logger.Warn("saving index snapshot", "path", s.path, "error", err)
	}
}
