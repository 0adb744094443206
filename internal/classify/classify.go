// Package classify turns citizen evidence (free text, a photo or a voice
// note) into the (issue type, severity, department) triple.
//
// Every modality is first reduced to text: photos through a Captioner,
// voice notes through a Transcriber. A single text Provider then classifies
// that evidence text. Providers come in three variants selected at startup:
// keyword rules, exemplar similarity and an LLM. The Pipeline wraps the
// configured provider with a timeout and the keyword fallback, and validates
// every answer against the closed taxonomy. It never returns an error.
package classify

import (
	"context"
	"errors"

	"golang.org/x/text/language"

	"github.com/tbourn/civic-complaints-backend/internal/domain"
)

// ErrNoMatch is returned by a provider that has no confident answer; the
// pipeline treats it like any other provider failure and falls back.
var ErrNoMatch = errors.New("classify: no confident match")

// Result is a classification plus the evidence text it was derived from.
type Result struct {
	IssueType  domain.IssueType `json:"issue_type"`
	Severity   domain.Severity  `json:"severity"`
	Department string           `json:"department"`
	Evidence   string           `json:"evidence"`
	// Provider names the variant that produced the answer.
	Provider string `json:"provider"`
	// Degraded is true when the configured provider failed and the keyword
	// fallback answered, or an upstream value had to be corrected.
	Degraded bool `json:"degraded"`
}

// Provider classifies evidence text.
type Provider interface {
	Name() string
	Classify(ctx context.Context, text string, lang language.Tag) (Result, error)
}

// Unclassified is the worst-case answer: Other / Low / General Administration.
func Unclassified(evidence string) Result {
	return Result{
		IssueType:  domain.IssueTypeOther,
		Severity:   domain.SeverityLow,
		Department: domain.DeptGeneral,
		Evidence:   evidence,
	}
}

// normalize enforces the taxonomy on a provider answer. It reports whether
// anything had to be corrected.
func normalize(r Result) (Result, bool) {
	coerced := false
	if !r.IssueType.IsValid() {
		if t, ok := domain.ParseIssueType(string(r.IssueType)); ok {
			r.IssueType = t
		} else {
			r.IssueType = domain.IssueTypeOther
			coerced = true
		}
	}
	if !r.Severity.IsValid() {
		if s, ok := domain.ParseSeverity(string(r.Severity)); ok {
			r.Severity = s
		} else {
			r.Severity = domain.DefaultSeverity(r.IssueType)
			coerced = true
		}
	}
	want := domain.DepartmentFor(r.IssueType)
	if r.Department != "" && r.Department != want {
		coerced = true
	}
	r.Department = want
	return r, coerced
}
