package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// snapshot is the on-disk form of a Memory generation. Persisting it lets
// a restarted process serve retrieval without re-embedding the corpus;
// re-embedding only ever happens through an explicit rebuild.
type snapshot struct {
	Generation uint64  `json:"generation"`
	Chunks     []Chunk `json:"chunks"`
}

// SaveSnapshot writes the active generation to path. The file lock keeps
// two advisor processes sharing a data directory from interleaving writes;
// the write itself is tmp-then-rename so readers never see a torn file.
func (m *Memory) SaveSnapshot(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("locking snapshot: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	gen := m.gen.Load()
	data, err := json.Marshal(snapshot{Generation: gen.seq, Chunks: gen.chunks})
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing snapshot: %w", err)
	}

	m.logger.Info("index snapshot saved", "path", path, "chunks", len(gen.chunks))
	return nil
}

// LoadSnapshot restores a previously saved generation. A missing file is
// not an error: the index simply starts empty.
func (m *Memory) LoadSnapshot(path string) error {
	lock := flock.New(path + ".lock")
	if err := lock.RLock(); err != nil {
		return fmt.Errorf("locking snapshot: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decoding snapshot %s: %w", path, err)
	}
	if err := validateChunks(snap.Chunks); err != nil {
		return fmt.Errorf("snapshot %s: %w", path, err)
	}

	byID := make(map[string]Chunk, len(snap.Chunks))
	for _, c := range snap.Chunks {
		byID[c.ID] = c
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen.Store(&generation{seq: snap.Generation, chunks: sortedChunks(byID)})

	m.logger.Info("index snapshot loaded", "path", path, "chunks", len(snap.Chunks))
	return nil
}
