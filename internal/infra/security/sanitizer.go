package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/213020aumc/matcha/internal/core/port"
)

// TextSanitizer strips every HTML element from user supplied free text.
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer builds a sanitizer on bluemonday's strict policy.
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize removes markup and unescapes the entities bluemonday emits, so stored text stays plain.
func (s *TextSanitizer) Sanitize(in string) string {
	if in == "" {
		return in
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(in)))
}

var _ port.TextSanitizer = (*TextSanitizer)(nil)
