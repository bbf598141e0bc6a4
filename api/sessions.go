package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/campushq/advisor/internal/session"
)

type sessionSummary struct {
	ID         string            `json:"id"`
	CreatedAt  time.Time         `json:"created_at"`
	LastActive time.Time         `json:"last_active"`
	Profile    map[string]string `json:"profile,omitempty"`
}

type exchangeBody struct {
	Query   string    `json:"query"`
	Answer  string    `json:"answer"`
	Domains []string  `json:"domains"`
	AskedAt time.Time `json:"asked_at"`
}

type sessionDetail struct {
	sessionSummary
	History []exchangeBody `json:"history"`
}

type sessionHandler struct {
	store  session.Store
	logger *slog.Logger
}

// list handles GET /api/v1/sessions.
func (h *sessionHandler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	sessions, err := h.store.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("listing sessions failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not list sessions")
		return
	}

	out := make([]sessionSummary, len(sessions))
	for i, s := range sessions {
		out[i] = summarize(s)
	}
	writeJSON(w, http.StatusOK, out)
}

// get handles GET /api/v1/sessions/{id}.
func (h *sessionHandler) get(w http.ResponseWriter, r *http.Request) {
	sess, err := h.store.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "session not found")
		return
	}
	if err != nil {
		h.logger.Error("loading session failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not load session")
		return
	}

	detail := sessionDetail{
		sessionSummary: summarize(sess),
		History:        make([]exchangeBody, len(sess.History)),
	}
	for i, ex := range sess.History {
		domains := make([]string, len(ex.Domains))
		for j, d := range ex.Domains {
			domains[j] = string(d)
		}
		detail.History[i] = exchangeBody{
			Query:   ex.Query,
			Answer:  ex.Answer,
			Domains: domains,
			AskedAt: ex.AskedAt,
		}
	}
	writeJSON(w, http.StatusOK, detail)
}

func summarize(s *session.Session) sessionSummary {
	return sessionSummary{
		ID:         s.ID,
		CreatedAt:  s.CreatedAt,
		LastActive: s.LastActive,
		Profile:    s.Profile,
	}
}
