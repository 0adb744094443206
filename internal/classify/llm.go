package classify

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/language"

	"github.com/tbourn/civic-complaints-backend/internal/domain"
	"github.com/tbourn/civic-complaints-backend/internal/llm"
)

// Completer is the slice of the LLM client used here.
type Completer interface {
	Complete(ctx context.Context, system, user string, temperature float64, maxTokens int) (string, error)
}

const llmSystemPrompt = "You are an AI assistant for a civic complaint system. Reply with JSON only."

// LLM delegates classification to a chat-completion model.
type LLM struct {
	Client Completer
}

// NewLLM wraps an llm.Client (or any Completer).
func NewLLM(c Completer) *LLM { return &LLM{Client: c} }

func (p *LLM) Name() string { return "llm" }

type llmAnswer struct {
	IssueType  string `json:"issue_type"`
	Severity   string `json:"severity"`
	Department string `json:"department"`
}

func (p *LLM) Classify(ctx context.Context, text string, lang language.Tag) (Result, error) {
	if p.Client == nil {
		return Result{}, llm.ErrDisabled
	}
	reply, err := p.Client.Complete(ctx, llmSystemPrompt, buildPrompt(text, lang), 0.1, 200)
	if err != nil {
		return Result{}, err
	}
	ans, err := llm.ParseJSON[llmAnswer](reply)
	if err != nil {
		return Result{}, err
	}
	sev := domain.Severity(ans.Severity)
	if strings.TrimSpace(ans.Severity) == "" {
		sev = domain.SeverityMedium
	}
	return Result{
		IssueType:  domain.IssueType(strings.TrimSpace(ans.IssueType)),
		Severity:   sev,
		Department: strings.TrimSpace(ans.Department),
		Evidence:   text,
		Provider:   p.Name(),
	}, nil
}

func buildPrompt(text string, lang language.Tag) string {
	types := domain.AllIssueTypes()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	var b strings.Builder
	b.WriteString("Classify this civic complaint.\n\n")
	fmt.Fprintf(&b, "Complaint (language %s): %s\n\n", lang.String(), text)
	fmt.Fprintf(&b, "Issue types: %s\n", strings.Join(names, ", "))
	b.WriteString("Severity: High, Medium or Low\n")
	b.WriteString("Departments:\n")
	for _, d := range domain.Departments() {
		ts := domain.IssueTypesFor(d)
		parts := make([]string, len(ts))
		for i, t := range ts {
			parts[i] = string(t)
		}
		fmt.Fprintf(&b, "- %s: %s\n", d, strings.Join(parts, ", "))
	}
	b.WriteString("\nRespond ONLY with JSON: {\"issue_type\": \"...\", \"severity\": \"...\", \"department\": \"...\"}")
	return b.String()
}
