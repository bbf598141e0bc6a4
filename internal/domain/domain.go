// Package domain defines the shared vocabulary of the advisor engine:
// the specialist domains, the query/response value types, and the
// retrieval result shape every other package agrees on.
//
// Types here are plain values. They carry no behavior beyond validation
// and formatting so that packages can exchange them without importing
// each other.
package domain

import "time"

// Domain identifies one topic-scoped specialist.
type Domain string

const (
	// Admissions covers applications, requirements, enrollment, placement.
	Admissions Domain = "admissions"

	// Academics covers programs, courses, curricula, degrees.
	Academics Domain = "academics"

	// FinancialAid covers costs, tuition, scholarships, payment.
	FinancialAid Domain = "financial-aid"

	// General is the fallback domain selected when no keyword matches.
	General Domain = "general"
)

// AggregationOrder is the fixed order in which specialist answers are
// concatenated when more than one domain fires for a single query.
var AggregationOrder = []Domain{Admissions, Academics, FinancialAid}

// ScopeAll is the retrieval scope that matches every indexed chunk.
const ScopeAll = "all"

// Scope returns the retrieval scope tag for a domain. The general domain
// searches the whole corpus.
func (d Domain) Scope() string {
	if d == General {
		return ScopeAll
	}
	return string(d)
}

// Valid reports whether d is one of the known domains.
func (d Domain) Valid() bool {
	switch d {
	case Admissions, Academics, FinancialAid, General:
		return true
	}
	return false
}

// Query is one incoming student question. Immutable once issued.
type Query struct {
	Text      string
	SessionID string // empty = start a new session
	Topic     string // optional declared topic tag, overrides classification
}

// RetrievalResult is one ranked passage returned by the retriever.
// Rank is 0-based and strictly increasing by descending score; ties are
// broken by chunk ID so the ordering is deterministic.
type RetrievalResult struct {
	ChunkID string
	Text    string
	Score   float32
	Rank    int
}

// RoutingDecision is the typed outcome of classifying one query.
// Domains is never empty: queries matching no rule select General.
// It lives for the duration of one request and is not persisted.
type RoutingDecision struct {
	Query      Query
	Domains    []Domain
	Confidence map[Domain]float64
}

// SpecialistResponse is one specialist's contribution to the final answer.
// Immutable once produced.
type SpecialistResponse struct {
	Domain   Domain
	Answer   string
	Passages []RetrievalResult
}

// Response is what the query entry point returns to the caller.
// DegradedDomains lists domains that were selected but could not be
// served; a partial answer is always preferred over no answer.
type Response struct {
	AnswerText      string
	DomainsUsed     []Domain
	DegradedDomains []Domain
	SessionID       string
}

// Exchange is one query/response pair recorded in session history.
type Exchange struct {
	Query   string
	Answer  string
	Domains []Domain
	AskedAt time.Time
}
