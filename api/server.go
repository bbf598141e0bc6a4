// Package api exposes the advisor engine over a JSON HTTP API.
//
// The query entry point accepts {text, session_id?} and returns
// {answer_text, domains_used, degraded_domains, session_id}. Health and
// readiness probes sit outside the middleware stack so orchestrators can
// probe without consuming rate-limit tokens.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campushq/advisor/internal/ingest"
	"github.com/campushq/advisor/internal/session"
)

// ServerConfig configures the API server.
type ServerConfig struct {
	Logger   *slog.Logger
	Answerer Answerer      // Required
	Sessions session.Store // Optional: nil disables the sessions API
	Reindex  Reindexer     // Optional: nil disables POST /api/v1/reindex
	Pool     *pgxpool.Pool // Optional: nil skips the database readiness check

	RateRPS    float64 // Tokens per second per IP (0 = 1/s)
	RateBurst  int     // Burst per IP (0 = 60)
	TrustProxy bool    // Honor X-Real-IP/X-Forwarded-For
}

// Reindexer triggers an explicit index rebuild. *ingest.Pipeline
// satisfies this.
type Reindexer interface {
	Run(ctx context.Context) (ingest.Stats, error)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer wires routes and the middleware stack.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Answerer == nil {
		return nil, errors.New("answerer is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	qh := &queryHandler{answerer: cfg.Answerer, logger: logger}
	mux.HandleFunc("POST /api/v1/query", qh.ask)

	if cfg.Sessions != nil {
		sh := &sessionHandler{store: cfg.Sessions, logger: logger}
		mux.HandleFunc("GET /api/v1/sessions", sh.list)
		mux.HandleFunc("GET /api/v1/sessions/{id}", sh.get)
	}

	if cfg.Reindex != nil {
		rh := &reindexHandler{pipeline: cfg.Reindex, logger: logger}
		mux.HandleFunc("POST /api/v1/reindex", rh.run)
	}

	rps := cfg.RateRPS
	if rps <= 0 {
		rps = 1.0
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(rps, burst)

	// Outermost first: Recovery → RequestID → Logging → RateLimit → Routes.
	// RequestID runs before Logging so the log line carries the id.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("GET /ready", readiness(cfg.Pool))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler { return s.mux }
