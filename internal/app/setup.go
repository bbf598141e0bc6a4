package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"

	"github.com/campushq/advisor/db"
	"github.com/campushq/advisor/internal/answer"
	"github.com/campushq/advisor/internal/config"
	"github.com/campushq/advisor/internal/database"
	"github.com/campushq/advisor/internal/domain"
	"github.com/campushq/advisor/internal/embed"
	"github.com/campushq/advisor/internal/index"
	"github.com/campushq/advisor/internal/ingest"
	"github.com/campushq/advisor/internal/log"
	"github.com/campushq/advisor/internal/observability"
	"github.com/campushq/advisor/internal/retrieve"
	"github.com/campushq/advisor/internal/router"
	"github.com/campushq/advisor/internal/session"
	"github.com/campushq/advisor/internal/specialist"
)

// snapshotFile is the on-disk index snapshot inside DataDir, used when
// no database is configured.
const snapshotFile = "index.json"

// Setup initializes the application from cfg. On failure everything
// already initialized is torn down before returning.
func Setup(ctx context.Context, cfg *config.Config) (_ *App, retErr error) {
	if cfg == nil {
		return nil, config.ErrConfigNil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{
		Config: cfg,
		Logger: log.New(log.Config{Level: logLevel(cfg.LogLevel), JSON: cfg.LogJSON}),
	}
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				a.Logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	shutdownTracing, err := observability.Setup(ctx, observability.Config{
		Enabled:     cfg.TracingEnabled,
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
	}, a.Logger)
	if err != nil {
		return nil, err
	}
	a.onClose(shutdownTracing)

	a.Genkit = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if a.Genkit == nil {
		return nil, errors.New("initializing genkit")
	}

	a.Embeddings = embed.NewProvider(
		embed.GenkitLoader(a.Genkit, cfg.EmbedderModel),
		cfg.EmbedTimeout,
		a.Logger,
	)

	if err := a.setupStorage(ctx); err != nil {
		return nil, err
	}

	retriever := retrieve.New(a.Index, a.Embeddings, a.Logger,
		retrieve.WithTimeout(cfg.SearchTimeout))

	completer := provideCompleter(a.Genkit, cfg)
	specCfg := specialist.Config{
		TopK:      cfg.TopK,
		MaxTokens: cfg.MaxTokens,
		Timeout:   cfg.SpecialistTimeout,
	}
	handlers := make([]router.Handler, 0, 4)
	for _, d := range []domain.Domain{domain.Admissions, domain.Academics, domain.FinancialAid, domain.General} {
		handlers = append(handlers, specialist.New(d, retriever, completer, specCfg, a.Logger))
	}

	a.Router = router.New(handlers, a.Sessions, cfg.SpecialistTimeout, a.Logger)

	a.Pipeline = ingest.NewPipeline(provideSources(cfg, a.Logger), a.Embeddings, a.Index, a.Logger)

	sweeper, err := session.NewSweeper(a.Sessions, sweepSchedule(cfg), a.Logger)
	if err != nil {
		return nil, err
	}
	a.sweeper = sweeper
	sweeper.Start()
	a.onClose(func(context.Context) error {
		sweeper.Stop()
		return nil
	})

	a.Logger.Info("advisor engine ready",
		"storage", storageMode(cfg),
		"embedder", cfg.EmbedderModel,
		"model", cfg.CompletionModel)
	return a, nil
}

// setupStorage wires either the PostgreSQL index and session store or
// the in-memory pair with an on-disk snapshot.
func (a *App) setupStorage(ctx context.Context) error {
	cfg := a.Config

	if cfg.PostgresEnabled {
		if err := db.Migrate(cfg.PostgresURL(), a.Logger); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}

		pool, err := database.NewPool(ctx, cfg.PostgresDSN())
		if err != nil {
			return fmt.Errorf("connecting to PostgreSQL: %w", err)
		}
		a.Pool = pool
		a.onClose(func(context.Context) error {
			pool.Close()
			return nil
		})

		a.Index = index.NewPostgres(pool, a.Logger)
		a.Sessions = session.NewPostgresStore(pool, cfg.SessionHistoryCap, cfg.SessionIdleTTL, a.Logger)
		return nil
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	mem := index.NewMemory(a.Logger)
	path := filepath.Join(cfg.DataDir, snapshotFile)
	if err := mem.LoadSnapshot(path); err != nil {
		return fmt.Errorf("loading index snapshot: %w", err)
	}
	a.Index = &snapshottingIndex{Memory: mem, path: path, logger: a.Logger}
	a.Sessions = session.NewMemoryStore(cfg.SessionHistoryCap, cfg.SessionIdleTTL, a.Logger)
	return nil
}

// provideSources builds the ingest source list from configuration. The
// catalog crawler is optional; the local document directory under
// DataDir is always included.
func provideSources(cfg *config.Config, logger *slog.Logger) []ingest.Source {
	sources := []ingest.Source{
		ingest.NewFileSource(filepath.Join(cfg.DataDir, "catalog")),
	}
	if cfg.CatalogURL != "" && cfg.CatalogDomain != "" {
		sources = append(sources, ingest.NewCatalogSource(cfg.CatalogURL, cfg.CatalogDomain, logger))
	}
	return sources
}

func provideCompleter(g *genkit.Genkit, cfg *config.Config) specialist.Completer {
	return answer.NewGenkitCompleter(g, cfg.CompletionModel, cfg.Temperature)
}

func sweepSchedule(cfg *config.Config) string {
	if cfg.SessionSweepPeriod <= 0 {
		return session.DefaultSweepSchedule
	}
	return "@every " + cfg.SessionSweepPeriod.String()
}

// logLevel parses a level name ("debug", "info", "warn", "error");
// anything unrecognized falls back to info.
func logLevel(name string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func storageMode(cfg *config.Config) string {
	if cfg.PostgresEnabled {
		return "postgres"
	}
	return "memory"
}
