package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/campushq/advisor/internal/domain"
	"github.com/campushq/advisor/internal/router"
)

// maxQueryBytes bounds the request body.
const maxQueryBytes = 16 << 10

// Answerer runs the full query pipeline. *router.Router satisfies this.
type Answerer interface {
	Answer(ctx context.Context, q domain.Query) (domain.Response, error)
}

type queryRequest struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id,omitempty"`
	Topic     string `json:"topic,omitempty"`
}

type queryResponse struct {
	AnswerText      string   `json:"answer_text"`
	DomainsUsed     []string `json:"domains_used"`
	DegradedDomains []string `json:"degraded_domains,omitempty"`
	SessionID       string   `json:"session_id"`
}

type queryHandler struct {
	answerer Answerer
	logger   *slog.Logger
}

// ask handles POST /api/v1/query.
func (h *queryHandler) ask(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxQueryBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}

	resp, err := h.answerer.Answer(r.Context(), domain.Query{
		Text:      req.Text,
		SessionID: req.SessionID,
		Topic:     req.Topic,
	})
	if err != nil {
		if errors.Is(err, router.ErrEmptyQuery) {
			writeError(w, http.StatusBadRequest, "empty_query", "query text is required")
			return
		}
		h.logger.Error("answering query failed",
			"error", err,
			"request_id", requestIDFromContext(r.Context()))
		writeError(w, http.StatusInternalServerError, "internal_error", "could not answer the query")
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		AnswerText:      resp.AnswerText,
		DomainsUsed:     domainNames(resp.DomainsUsed),
		DegradedDomains: domainNames(resp.DegradedDomains),
		SessionID:       resp.SessionID,
	})
}

func domainNames(domains []domain.Domain) []string {
	if len(domains) == 0 {
		return []string{}
	}
	out := make([]string, len(domains))
	for i, d := range domains {
		out[i] = string(d)
	}
	return out
}
