package analyzer

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Simple is a whitespace analyzer that strips any markup from the input
// before tokenizing. It lower-cases terms and assigns consecutive positions.
type Simple struct {
	policy *bluemonday.Policy
}

// NewSimple creates a Simple analyzer.
func NewSimple() *Simple {
	return &Simple{policy: bluemonday.StrictPolicy()}
}

// Analyze implements Analyzer.
func (a *Simple) Analyze(text string, _ Spec) ([]Term, error) {
	fields := strings.Fields(a.policy.Sanitize(text))
	if len(fields) == 0 {
		return nil, nil
	}
	terms := make([]Term, len(fields))
	for i, f := range fields {
		terms[i] = Term{Text: strings.ToLower(f), Position: i}
	}
	return terms, nil
}
