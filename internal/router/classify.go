package router

import (
	"slices"
	"strings"

	"github.com/campushq/advisor/internal/domain"
)

// Keyword weights. Money vocabulary outweighs the generic terms so that
// "how much does the welding program cost" lands on financial aid alone,
// while "requirements for the nursing program" still splits across
// admissions and academics.
const (
	weightGeneric = 1
	weightMoney   = 2
)

// keywordRules maps a keyword prefix to the domains it signals. Prefix
// matching folds plurals and inflections ("fees", "applications",
// "paying") into one entry. The table is data, not code; adding a rule
// is a one-line change.
var keywordRules = []struct {
	prefix string
	domain domain.Domain
	weight int
}{
	{"apply", domain.Admissions, weightGeneric},
	{"applic", domain.Admissions, weightGeneric},
	{"admission", domain.Admissions, weightGeneric},
	{"admit", domain.Admissions, weightGeneric},
	{"enroll", domain.Admissions, weightGeneric},
	{"register", domain.Admissions, weightGeneric},
	{"registration", domain.Admissions, weightGeneric},
	{"requirement", domain.Admissions, weightGeneric},
	{"deadline", domain.Admissions, weightGeneric},
	{"transcript", domain.Admissions, weightGeneric},
	{"placement", domain.Admissions, weightGeneric},
	{"orientation", domain.Admissions, weightGeneric},

	{"program", domain.Academics, weightGeneric},
	{"degree", domain.Academics, weightGeneric},
	{"certificate", domain.Academics, weightGeneric},
	{"major", domain.Academics, weightGeneric},
	{"course", domain.Academics, weightGeneric},
	{"class", domain.Academics, weightGeneric},
	{"credit", domain.Academics, weightGeneric},
	{"curriculum", domain.Academics, weightGeneric},
	{"prerequisite", domain.Academics, weightGeneric},
	{"transfer", domain.Academics, weightGeneric},
	{"semester", domain.Academics, weightGeneric},
	{"schedule", domain.Academics, weightGeneric},

	{"cost", domain.FinancialAid, weightMoney},
	{"tuition", domain.FinancialAid, weightMoney},
	{"fee", domain.FinancialAid, weightMoney},
	{"price", domain.FinancialAid, weightMoney},
	{"afford", domain.FinancialAid, weightMoney},
	{"pay", domain.FinancialAid, weightMoney},
	{"expensive", domain.FinancialAid, weightMoney},
	{"money", domain.FinancialAid, weightMoney},
	{"scholarship", domain.FinancialAid, weightMoney},
	{"grant", domain.FinancialAid, weightMoney},
	{"loan", domain.FinancialAid, weightMoney},
	{"fafsa", domain.FinancialAid, weightMoney},
	{"financial", domain.FinancialAid, weightMoney},
}

// topicDomains resolves a declared topic tag to a domain.
var topicDomains = map[string]domain.Domain{
	"admissions":    domain.Admissions,
	"academics":     domain.Academics,
	"financial-aid": domain.FinancialAid,
	"general":       domain.General,
}

// Classify maps a query onto one or more domains. It is fully
// deterministic: a declared topic wins outright; otherwise keyword
// scores are tallied and every domain tied at the top score is
// selected. A query with no keyword hits falls back to the general
// domain. The returned decision always names at least one domain.
func Classify(q domain.Query) domain.RoutingDecision {
	decision := domain.RoutingDecision{
		Query:      q,
		Confidence: make(map[domain.Domain]float64),
	}

	if d, ok := topicDomains[strings.ToLower(strings.TrimSpace(q.Topic))]; ok {
		decision.Domains = []domain.Domain{d}
		decision.Confidence[d] = 1
		return decision
	}

	scores := make(map[domain.Domain]int)
	for _, token := range tokenize(q.Text) {
		for _, rule := range keywordRules {
			if strings.HasPrefix(token, rule.prefix) {
				scores[rule.domain] += rule.weight
			}
		}
	}

	max, total := 0, 0
	for _, score := range scores {
		total += score
		if score > max {
			max = score
		}
	}

	if max == 0 {
		decision.Domains = []domain.Domain{domain.General}
		decision.Confidence[domain.General] = 1
		return decision
	}

	for _, d := range domain.AggregationOrder {
		if scores[d] == max {
			decision.Domains = append(decision.Domains, d)
		}
		if scores[d] > 0 {
			decision.Confidence[d] = float64(scores[d]) / float64(total)
		}
	}
	return decision
}

// tokenize lowercases text and splits it on anything that is not a
// letter or digit.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	return slices.DeleteFunc(fields, func(s string) bool { return len(s) < 2 })
}
