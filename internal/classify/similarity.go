package classify

import (
	"context"

	"golang.org/x/text/language"

	"github.com/tbourn/civic-complaints-backend/internal/domain"
	"github.com/tbourn/civic-complaints-backend/internal/search"
)

// DefaultExemplars seed the similarity index when no exemplar file is
// configured.
var DefaultExemplars = []search.Doc{
	{Label: string(domain.IssueTypePothole), Text: "deep pothole in the middle of the road"},
	{Label: string(domain.IssueTypePothole), Text: "large crater hole damaging car tyres"},
	{Label: string(domain.IssueTypePothole), Text: "sarak par bara garhha"},
	{Label: string(domain.IssueTypeGarbage), Text: "garbage pile not collected for days"},
	{Label: string(domain.IssueTypeGarbage), Text: "overflowing trash bin smelling street corner"},
	{Label: string(domain.IssueTypeGarbage), Text: "kachra heap outside houses"},
	{Label: string(domain.IssueTypeWaterLeak), Text: "water pipe leaking on the street"},
	{Label: string(domain.IssueTypeWaterLeak), Text: "burst main flooding road clean water wasted"},
	{Label: string(domain.IssueTypeBrokenStreetlight), Text: "street light not working at night"},
	{Label: string(domain.IssueTypeBrokenStreetlight), Text: "lamp post broken road completely dark"},
	{Label: string(domain.IssueTypeDamagedRoad), Text: "road surface broken cracked asphalt"},
	{Label: string(domain.IssueTypeDamagedRoad), Text: "pavement damaged uneven footpath tiles"},
	{Label: string(domain.IssueTypeIllegalDumping), Text: "construction debris dumped illegally on empty plot"},
	{Label: string(domain.IssueTypeIllegalDumping), Text: "unauthorized dumping of waste by trucks"},
	{Label: string(domain.IssueTypeSewageOverflow), Text: "sewage overflowing from manhole"},
	{Label: string(domain.IssueTypeSewageOverflow), Text: "blocked drain dirty water in street"},
}

// Similarity classifies by nearest labelled exemplar. Answers below
// MinScore return ErrNoMatch so the pipeline falls back to keyword rules.
type Similarity struct {
	Index    search.Index
	MinScore float64
}

// NewSimilarity indexes docs (DefaultExemplars when empty).
func NewSimilarity(docs []search.Doc, minScore float64) *Similarity {
	if len(docs) == 0 {
		docs = DefaultExemplars
	}
	return &Similarity{
		Index:    search.NewIndex(docs, search.WithStopwords(search.DefaultStopwords)),
		MinScore: minScore,
	}
}

func (s *Similarity) Name() string { return "similarity" }

func (s *Similarity) Classify(ctx context.Context, text string, _ language.Tag) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	top := s.Index.TopK(text, 1)
	if len(top) == 0 || top[0].Score < s.MinScore {
		return Result{}, ErrNoMatch
	}
	t, _ := domain.ParseIssueType(top[0].Label)
	return Result{
		IssueType:  t,
		Severity:   domain.DefaultSeverity(t),
		Department: domain.DepartmentFor(t),
		Evidence:   text,
		Provider:   s.Name(),
	}, nil
}
