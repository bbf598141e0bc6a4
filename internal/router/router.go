// Package router classifies incoming queries and orchestrates the
// specialists that answer them.
//
// A query moves through a fixed sequence: received, classified,
// dispatched, aggregated, responded. Classification is a deterministic
// keyword table. Dispatch runs all selected specialists in parallel and
// waits for every one to finish or time out before aggregating; a failed
// specialist is reported as a degraded domain and never aborts its
// siblings.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/campushq/advisor/internal/domain"
	"github.com/campushq/advisor/internal/session"
)

var (
	// ErrEmptyQuery is returned for a query with no text. It is the only
	// router failure that aborts the whole request.
	ErrEmptyQuery = errors.New("query text is empty")

	// ErrSpecialistTimeout marks a specialist that exceeded its time
	// budget. It surfaces as a degraded domain, never as a request error.
	ErrSpecialistTimeout = errors.New("specialist timed out")

	// ErrNoHandler marks a classified domain with no registered
	// specialist.
	ErrNoHandler = errors.New("no handler registered for domain")
)

// sessionAppendTimeout bounds the history write after a response is
// assembled. The write runs on a detached context so a client disconnect
// after aggregation does not lose the exchange.
const sessionAppendTimeout = 5 * time.Second

// Handler answers queries for one domain. *specialist.Specialist
// satisfies this.
type Handler interface {
	Domain() domain.Domain
	Handle(ctx context.Context, q domain.Query, history []domain.Exchange) (domain.SpecialistResponse, error)
}

// SessionStore is the slice of the session store the router needs.
type SessionStore interface {
	GetOrCreate(ctx context.Context, id string) (*session.Session, error)
	Append(ctx context.Context, id string, ex domain.Exchange) error
}

// Router owns query orchestration. Safe for concurrent use; each query
// is an independent unit of work sharing only the session store and the
// index behind the specialists.
type Router struct {
	handlers          map[domain.Domain]Handler
	sessions          SessionStore
	specialistTimeout time.Duration
	logger            *slog.Logger
	tracer            trace.Tracer
}

// New creates a Router dispatching to handlers. The specialist timeout
// bounds each handler call; zero means 30s.
func New(handlers []Handler, sessions SessionStore, specialistTimeout time.Duration, logger *slog.Logger) *Router {
	if specialistTimeout <= 0 {
		specialistTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	byDomain := make(map[domain.Domain]Handler, len(handlers))
	for _, h := range handlers {
		byDomain[h.Domain()] = h
	}
	return &Router{
		handlers:          byDomain,
		sessions:          sessions,
		specialistTimeout: specialistTimeout,
		logger:            logger,
		tracer:            otel.Tracer("advisor/router"),
	}
}

type outcome struct {
	resp domain.SpecialistResponse
	err  error
}

// Answer runs the full pipeline for q and returns the aggregated
// response. Partial answers are preferred over none: specialist
// failures and timeouts appear in DegradedDomains while the remaining
// domains still contribute. Cancelling ctx abandons outstanding
// specialist calls and skips the session write.
func (r *Router) Answer(ctx context.Context, q domain.Query) (domain.Response, error) {
	ctx, span := r.tracer.Start(ctx, "router.answer")
	defer span.End()

	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return domain.Response{}, ErrEmptyQuery
	}

	sess, history := r.loadSession(ctx, q.SessionID)

	decision := Classify(q)
	span.SetAttributes(attribute.StringSlice("domains", domainNames(decision.Domains)))
	r.logger.Debug("classified query",
		"domains", domainNames(decision.Domains),
		"session", sessionID(sess))

	outcomes := r.dispatch(ctx, decision, q, history)
	resp := r.aggregate(decision, outcomes)
	resp.SessionID = sessionID(sess)

	r.recordExchange(ctx, sess, q, resp)
	return resp, nil
}

// loadSession fetches or creates the session for id. A session store
// failure degrades to stateless answering instead of failing the query.
func (r *Router) loadSession(ctx context.Context, id string) (*session.Session, []domain.Exchange) {
	if r.sessions == nil {
		return nil, nil
	}
	sess, err := r.sessions.GetOrCreate(ctx, id)
	if err != nil {
		r.logger.Warn("session store unavailable, answering statelessly", "error", err)
		return nil, nil
	}
	return sess, sess.History
}

// dispatch runs one goroutine per selected domain and waits for all of
// them. Outcomes are index-aligned with decision.Domains. Specialists
// never see each other's results.
func (r *Router) dispatch(ctx context.Context, decision domain.RoutingDecision, q domain.Query, history []domain.Exchange) []outcome {
	outcomes := make([]outcome, len(decision.Domains))

	var wg sync.WaitGroup
	for i, d := range decision.Domains {
		h, ok := r.handlers[d]
		if !ok {
			outcomes[i].err = fmt.Errorf("%s: %w", d, ErrNoHandler)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()

			hctx, cancel := context.WithTimeout(ctx, r.specialistTimeout)
			defer cancel()

			resp, err := h.Handle(hctx, q, history)
			if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				err = fmt.Errorf("%s after %v: %w", d, r.specialistTimeout, ErrSpecialistTimeout)
			}
			outcomes[i] = outcome{resp: resp, err: err}
		}()
	}
	wg.Wait()

	return outcomes
}

// aggregate concatenates specialist answers in the fixed domain order.
// A single-domain decision returns that specialist's answer verbatim.
func (r *Router) aggregate(decision domain.RoutingDecision, outcomes []outcome) domain.Response {
	var resp domain.Response
	var parts []string

	for i, d := range decision.Domains {
		if err := outcomes[i].err; err != nil {
			r.logger.Warn("specialist degraded", "domain", string(d), "error", err)
			resp.DegradedDomains = append(resp.DegradedDomains, d)
			continue
		}
		resp.DomainsUsed = append(resp.DomainsUsed, d)
		parts = append(parts, outcomes[i].resp.Answer)
	}

	switch {
	case len(decision.Domains) == 1 && len(parts) == 1:
		resp.AnswerText = parts[0]
	case len(parts) > 0:
		var b strings.Builder
		for i, d := range resp.DomainsUsed {
			if i > 0 {
				b.WriteString("\n\n")
			}
			fmt.Fprintf(&b, "%s:\n%s", domainTitle(d), parts[i])
		}
		for _, d := range resp.DegradedDomains {
			fmt.Fprintf(&b, "\n\n(The %s advisor could not respond right now; this answer may be incomplete.)", domainTitle(d))
		}
		resp.AnswerText = b.String()
	default:
		resp.AnswerText = "All advisors are temporarily unavailable. Please try again in a moment."
	}
	return resp
}

// recordExchange appends the completed interaction to the session. A
// cancelled request commits nothing; a completed one writes on a
// detached context so the append survives a late client disconnect.
func (r *Router) recordExchange(ctx context.Context, sess *session.Session, q domain.Query, resp domain.Response) {
	if sess == nil || ctx.Err() != nil {
		return
	}

	appendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sessionAppendTimeout)
	defer cancel()

	ex := domain.Exchange{
		Query:   q.Text,
		Answer:  resp.AnswerText,
		Domains: resp.DomainsUsed,
		AskedAt: time.Now().UTC(),
	}
	if err := r.sessions.Append(appendCtx, sess.ID, ex); err != nil {
		r.logger.Warn("appending session history", "session", sess.ID, "error", err)
	}
}

func sessionID(sess *session.Session) string {
	if sess == nil {
		return ""
	}
	return sess.ID
}

func domainNames(domains []domain.Domain) []string {
	names := make([]string, len(domains))
	for i, d := range domains {
		names[i] = string(d)
	}
	return names
}

func domainTitle(d domain.Domain) string {
	switch d {
	case domain.Admissions:
		return "Admissions"
	case domain.Academics:
		return "Academics"
	case domain.FinancialAid:
		return "Financial aid"
	default:
		return "General"
	}
}
