package classify

import (
	"context"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tbourn/civic-complaints-backend/internal/domain"
)

// Rule maps substrings to an issue type.
type Rule struct {
	IssueType domain.IssueType
	Keywords  []string
}

// DefaultRules are the keyword rules in priority order. They cover English,
// Roman Urdu and Urdu script.
var DefaultRules = []Rule{
	{domain.IssueTypePothole, []string{"pothole", "hole", "crater", "garhha", "گڑھا"}},
	{domain.IssueTypeGarbage, []string{"garbage", "trash", "waste", "kachra", "کچرا", "dump", "litter"}},
	{domain.IssueTypeWaterLeak, []string{"water leak", "pipe", "leak", "pani ka rasao", "پانی", "flood"}},
	{domain.IssueTypeBrokenStreetlight, []string{"light", "lamp", "streetlight", "dark", "روشنی", "lait"}},
	{domain.IssueTypeDamagedRoad, []string{"road damage", "asphalt", "pavement", "broken road"}},
	{domain.IssueTypeIllegalDumping, []string{"illegal dump", "unauthorized"}},
	{domain.IssueTypeSewageOverflow, []string{"sewage", "drain", "overflow", "manhole"}},
}

// Keyword is the deterministic, always-available provider. The longest
// matching keyword wins so that specific phrases ("illegal dump", "manhole")
// beat the generic words they contain ("dump", "hole"); ties go to the
// earlier rule. Severity comes from domain.DefaultSeverity.
type Keyword struct {
	rules []Rule
}

// NewKeyword builds a Keyword provider; nil rules means DefaultRules.
func NewKeyword(rules []Rule) *Keyword {
	if rules == nil {
		rules = DefaultRules
	}
	fold := cases.Fold()
	norm := make([]Rule, 0, len(rules))
	for _, r := range rules {
		kws := make([]string, 0, len(r.Keywords))
		for _, k := range r.Keywords {
			if k = fold.String(strings.TrimSpace(k)); k != "" {
				kws = append(kws, k)
			}
		}
		norm = append(norm, Rule{IssueType: r.IssueType, Keywords: kws})
	}
	return &Keyword{rules: norm}
}

func (k *Keyword) Name() string { return "keyword" }

// Classify never fails; text with no match is Other / Low.
func (k *Keyword) Classify(_ context.Context, text string, _ language.Tag) (Result, error) {
	return k.Match(text), nil
}

// Match runs the rules against text.
func (k *Keyword) Match(text string) Result {
	// Casers are stateful, so each call folds with its own.
	folded := cases.Fold().String(text)
	best, bestLen := domain.IssueTypeOther, 0
	for _, r := range k.rules {
		for _, kw := range r.Keywords {
			if len(kw) > bestLen && strings.Contains(folded, kw) {
				best, bestLen = r.IssueType, len(kw)
			}
		}
	}
	return Result{
		IssueType:  best,
		Severity:   domain.DefaultSeverity(best),
		Department: domain.DepartmentFor(best),
		Evidence:   text,
		Provider:   k.Name(),
	}
}
