// Package specialist implements the three domain handlers that turn
// retrieved catalog passages into an answer for their slice of a query.
package specialist

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/campushq/advisor/internal/domain"
)

// maxPromptBytes caps the assembled prompt. Passages past the cap are
// dropped whole rather than truncated mid-sentence.
const maxPromptBytes = 12_000

// historyTail is how many recent exchanges are included for context.
const historyTail = 3

// Retriever fetches ranked passages for a scope. *retrieve.Retriever
// satisfies this.
type Retriever interface {
	Retrieve(ctx context.Context, queryText, scope string, k int) ([]domain.RetrievalResult, error)
}

// Completer produces free text from a prompt with supporting passages.
type Completer interface {
	Complete(ctx context.Context, prompt string, passages []domain.RetrievalResult, maxTokens int) (string, error)
}

// Specialist answers queries for a single domain. Safe for concurrent use.
type Specialist struct {
	domain    domain.Domain
	persona   string
	retriever Retriever
	completer Completer
	topK      int
	maxTokens int
	timeout   time.Duration
	logger    *slog.Logger
	tracer    trace.Tracer
}

// Config carries the knobs shared by all three specialists.
type Config struct {
	TopK      int
	MaxTokens int
	// Timeout bounds the completion call. Zero means 25s.
	Timeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.TopK <= 0 {
		c.TopK = 5
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 1024
	}
	if c.Timeout <= 0 {
		c.Timeout = 25 * time.Second
	}
}

// New creates a specialist for d.
func New(d domain.Domain, retriever Retriever, completer Completer, cfg Config, logger *slog.Logger) *Specialist {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Specialist{
		domain:    d,
		persona:   personas[d],
		retriever: retriever,
		completer: completer,
		topK:      cfg.TopK,
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.Timeout,
		logger:    logger.With("specialist", string(d)),
		tracer:    otel.Tracer("advisor/specialist"),
	}
}

// Domain returns the domain this specialist serves.
func (s *Specialist) Domain() domain.Domain { return s.domain }

// Handle answers q for this specialist's domain. When retrieval finds
// nothing the response carries the insufficient-information text and no
// passages; that is a successful outcome, not an error. Errors are
// reserved for embedding unavailability and completion failures, which
// the caller reports as a degraded domain.
func (s *Specialist) Handle(ctx context.Context, q domain.Query, history []domain.Exchange) (domain.SpecialistResponse, error) {
	ctx, span := s.tracer.Start(ctx, "specialist.handle",
		trace.WithAttributes(attribute.String("domain", string(s.domain))))
	defer span.End()

	resp := domain.SpecialistResponse{Domain: s.domain}

	passages, err := s.retriever.Retrieve(ctx, q.Text, s.domain.Scope(), s.topK)
	if err != nil {
		span.RecordError(err)
		return resp, fmt.Errorf("%s retrieval: %w", s.domain, err)
	}

	if len(passages) == 0 {
		resp.Answer = s.insufficientInformation()
		s.logger.Debug("no passages for query, answering with fallback")
		return resp, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	answer, err := s.completer.Complete(ctx, s.buildPrompt(q, history, passages), passages, s.maxTokens)
	if err != nil {
		span.RecordError(err)
		return resp, fmt.Errorf("%s completion: %w", s.domain, err)
	}

	resp.Answer = strings.TrimSpace(answer)
	resp.Passages = passages
	return resp, nil
}

// insufficientInformation is the fixed answer used when the catalog holds
// nothing for this domain and query.
func (s *Specialist) insufficientInformation() string {
	return fmt.Sprintf("I don't have enough information in the college catalog to answer that from the %s side. You may want to contact the %s office directly.",
		domainLabel(s.domain), domainLabel(s.domain))
}

// buildPrompt assembles persona, recent conversation, retrieved passages
// and the query into one bounded prompt.
func (s *Specialist) buildPrompt(q domain.Query, history []domain.Exchange, passages []domain.RetrievalResult) string {
	var b strings.Builder
	b.WriteString(s.persona)
	b.WriteString("\n\nAnswer using only the catalog excerpts below. If they do not cover the question, say so.\n")

	if tail := recentExchanges(history, historyTail); len(tail) > 0 {
		b.WriteString("\nRecent conversation:\n")
		for _, ex := range tail {
			fmt.Fprintf(&b, "Student: %s\nAdvisor: %s\n", ex.Query, ex.Answer)
		}
	}

	b.WriteString("\nCatalog excerpts:\n")
	for _, p := range passages {
		if b.Len()+len(p.Text)+16 > maxPromptBytes {
			break
		}
		fmt.Fprintf(&b, "[%d] %s\n", p.Rank+1, p.Text)
	}

	fmt.Fprintf(&b, "\nStudent question: %s\n", q.Text)
	return b.String()
}

func recentExchanges(history []domain.Exchange, n int) []domain.Exchange {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

func domainLabel(d domain.Domain) string {
	switch d {
	case domain.Admissions:
		return "admissions"
	case domain.Academics:
		return "academic programs"
	case domain.FinancialAid:
		return "financial aid"
	default:
		return "general advising"
	}
}

// personas mirror the tone each office answers in.
var personas = map[domain.Domain]string{
	domain.Admissions: "You are an admissions advisor at a community college. " +
		"You help prospective students with application steps, entrance requirements, deadlines, and enrollment.",
	domain.Academics: "You are an academic advisor at a community college. " +
		"You help students with programs of study, degree and certificate requirements, courses, and transfer planning.",
	domain.FinancialAid: "You are a financial aid advisor at a community college. " +
		"You help students with tuition, fees, scholarships, grants, loans, and payment plans.",
	domain.General: "You are a general student-services advisor at a community college. " +
		"You answer broad questions about the college and point students to the right office.",
}
