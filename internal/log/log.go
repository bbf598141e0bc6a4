// Package log provides the logging infrastructure for the advisor service.
//
// Loggers are plain *slog.Logger values injected through constructors.
// Components never reach for a package-level logger; they receive one and
// narrow it with With("component", ...) at the injection site:
//
//	retriever := retrieve.New(idx, provider, logger.With("component", "retriever"))
//
// Tests use NewNop to silence output, or NewWithWriter with a buffer to
// assert on log lines.
package log

import (
	"io"
	"log/slog"
	"os"
)

// Config selects handler format and verbosity.
type Config struct {
	// Level is the minimum level emitted. Zero value is slog.LevelInfo.
	Level slog.Level

	// JSON switches from the human-readable text handler to JSON output,
	// which is what the service runs with in containers.
	JSON bool

	// AddSource annotates records with file:line of the call site.
	AddSource bool
}

// New creates a logger writing to stderr with the given configuration.
func New(cfg Config) *slog.Logger {
	return NewWithWriter(os.Stderr, cfg)
}

// NewWithWriter creates a logger writing to w. Used by tests to capture
// output and by commands that redirect logs away from their own output.
func NewWithWriter(w io.Writer, cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}
	if cfg.JSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// NewNop returns a logger that discards everything. Test-only: production
// code paths always pass a real logger so failures stay observable.
func NewNop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
