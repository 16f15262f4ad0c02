// Package privacy scrubs credentials out of text before it is logged or
// stored in the run ledger.
package privacy

import (
	"regexp"
)

const redactedPlaceholder = "[REDACTED]"

// minSecretLen keeps short values from redacting ordinary words.
const minSecretLen = 4

// QueryCredentials matches credential-bearing query parameters such as the
// YouTube "key=" parameter. The parameter name is kept.
var QueryCredentials = regexp.MustCompile(`(?i)\b((?:api_?key|key|access_token|password)=)[^&\s"']+`)

// Literals builds patterns matching each secret verbatim.
func Literals(secrets []string) []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, 0, len(secrets))
	for _, s := range secrets {
		if len(s) < minSecretLen {
			continue
		}
		patterns = append(patterns, regexp.MustCompile(regexp.QuoteMeta(s)))
	}
	return patterns
}

// Apply replaces all matches of the compiled patterns in text with [REDACTED].
// A first capture group, when present, is preserved.
func Apply(text string, patterns []*regexp.Regexp) string {
	for _, re := range patterns {
		text = re.ReplaceAllString(text, "${1}"+redactedPlaceholder)
	}
	return text
}

// Redactor scrubs a fixed set of secrets, credential query parameters and
// any extra configured patterns.
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor returns a Redactor for the given secret values and extra patterns.
func NewRedactor(secrets []string, extra ...*regexp.Regexp) *Redactor {
	patterns := append(Literals(secrets), QueryCredentials)
	return &Redactor{patterns: append(patterns, extra...)}
}

// String redacts s. A nil Redactor only scrubs query parameters.
func (r *Redactor) String(s string) string {
	if r == nil {
		return Apply(s, []*regexp.Regexp{QueryCredentials})
	}
	return Apply(s, r.patterns)
}

// Error returns the redacted error message, or "" for a nil error.
func (r *Redactor) Error(err error) string {
	if err == nil {
		return ""
	}
	return r.String(err.Error())
}
