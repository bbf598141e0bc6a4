package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campushq/advisor/internal/domain"
	"github.com/campushq/advisor/internal/ingest"
	"github.com/campushq/advisor/internal/log"
	"github.com/campushq/advisor/internal/router"
	"github.com/campushq/advisor/internal/session"
)

type stubAnswerer struct {
	resp domain.Response
	err  error
}

func (s *stubAnswerer) Answer(_ context.Context, q domain.Query) (domain.Response, error) {
	if strings.TrimSpace(q.Text) == "" {
		return domain.Response{}, router.ErrEmptyQuery
	}
	return s.resp, s.err
}

type stubReindexer struct {
	stats ingest.Stats
	err   error
}

func (s *stubReindexer) Run(context.Context) (ingest.Stats, error) { return s.stats, s.err }

func newTestServer(t *testing.T, cfg ServerConfig) *Server {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	if cfg.Answerer == nil {
		cfg.Answerer = &stubAnswerer{resp: domain.Response{AnswerText: "ok", SessionID: "s1"}}
	}
	srv, err := NewServer(cfg)
	require.NoError(t, err)
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestQueryEndpoint(t *testing.T) {
	answerer := &stubAnswerer{resp: domain.Response{
		AnswerText:      "tuition is 4200 per year",
		DomainsUsed:     []domain.Domain{domain.FinancialAid},
		DegradedDomains: []domain.Domain{domain.Academics},
		SessionID:       "sess-1",
	}}
	srv := newTestServer(t, ServerConfig{Answerer: answerer})

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/query", `{"text":"welding program cost"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var got queryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "tuition is 4200 per year", got.AnswerText)
	assert.Equal(t, []string{"financial-aid"}, got.DomainsUsed)
	assert.Equal(t, []string{"academics"}, got.DegradedDomains)
	assert.Equal(t, "sess-1", got.SessionID)
}

func TestQueryEndpointEmptyText(t *testing.T) {
	srv := newTestServer(t, ServerConfig{})

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/query", `{"text":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "empty_query")
}

func TestQueryEndpointMalformedBody(t *testing.T) {
	srv := newTestServer(t, ServerConfig{})

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/query", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionEndpoints(t *testing.T) {
	store := session.NewMemoryStore(10, time.Hour, log.NewNop())
	sess, err := store.GetOrCreate(context.Background(), "")
	require.NoError(t, err)
	require.NoError(t, store.Append(context.Background(), sess.ID, domain.Exchange{
		Query:   "how do I apply",
		Answer:  "online",
		Domains: []domain.Domain{domain.Admissions},
		AskedAt: time.Now().UTC(),
	}))

	srv := newTestServer(t, ServerConfig{Sessions: store})

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []sessionSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, sess.ID, list[0].ID)

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/sessions/"+sess.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var detail sessionDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	require.Len(t, detail.History, 1)
	assert.Equal(t, "how do I apply", detail.History[0].Query)
	assert.Equal(t, []string{"admissions"}, detail.History[0].Domains)

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/sessions/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReindexEndpoint(t *testing.T) {
	srv := newTestServer(t, ServerConfig{
		Reindex: &stubReindexer{stats: ingest.Stats{Documents: 3, Chunks: 42}},
	})

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/reindex", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"chunks":42`)
}

func TestReindexEndpointNotConfigured(t *testing.T) {
	srv := newTestServer(t, ServerConfig{})

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/reindex", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, ServerConfig{})

	rec := doJSON(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDAssignedAndEchoed(t *testing.T) {
	srv := newTestServer(t, ServerConfig{})

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/query", `{"text":"q"}`)
	_, err := uuid.Parse(rec.Header().Get("X-Request-ID"))
	assert.NoError(t, err, "every response carries a generated request id")

	want := uuid.NewString()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader(`{"text":"q"}`))
	req.Header.Set("X-Request-ID", want)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, want, rec.Header().Get("X-Request-ID"))
}

func TestRateLimitExceeded(t *testing.T) {
	srv := newTestServer(t, ServerConfig{RateRPS: 0.001, RateBurst: 2})

	var last int
	for range 5 {
		rec := doJSON(t, srv, http.MethodPost, "/api/v1/query", `{"text":"q"}`)
		last = rec.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}

type panicAnswerer struct{}

func (panicAnswerer) Answer(context.Context, domain.Query) (domain.Response, error) {
	panic("boom")
}

func TestRecoveryMiddleware(t *testing.T) {
	srv := newTestServer(t, ServerConfig{Answerer: panicAnswerer{}})

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/query", `{"text":"q"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal_error")
}
