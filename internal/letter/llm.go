package letter

import (
	"context"
	"fmt"

	"golang.org/x/text/language"
)

// Completer is the slice of the LLM client used here.
type Completer interface {
	Complete(ctx context.Context, system, user string, temperature float64, maxTokens int) (string, error)
}

// LLMGenerator writes letters with a chat-completion model.
type LLMGenerator struct {
	Client Completer
}

const (
	systemEnglish = "You write formal complaint letters from citizens to municipal departments. Use respectful, formal English. Be clear, concise and actionable."
	systemUrdu    = "You write formal complaint letters from citizens to municipal departments in proper formal Urdu (اردو) suitable for government correspondence."
)

func (g *LLMGenerator) Generate(ctx context.Context, f Fields, lang language.Tag) (string, error) {
	system := systemEnglish
	if base, _ := lang.Base(); base.String() == "ur" {
		system = systemUrdu
	}
	prompt := fmt.Sprintf(`Write the body of a formal civic complaint letter (200-300 words) in %s.

Issue type: %s
Severity: %s
Location: %s
Department: %s
Reference: %s
Citizen description: %s

Include a subject line, a greeting to the department, the problem and where it is, its impact given the severity, a request for action and a formal closing. Do not include sender name, address or date.`,
		display(lang), f.IssueType, f.Severity, f.Place(), f.Department, f.TrackingID, f.Description)
	return g.Client.Complete(ctx, system, prompt, 0.3, 1000)
}

func display(lang language.Tag) string {
	if base, _ := lang.Base(); base.String() == "ur" {
		return "Urdu"
	}
	return "English"
}
