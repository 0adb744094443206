package classify

import (
	"fmt"
	"strings"

	"github.com/tbourn/civic-complaints-backend/internal/search"
)

// Provider modes accepted by NewProvider.
const (
	ModeKeyword    = "keyword"
	ModeSimilarity = "similarity"
	ModeLLM        = "llm"
)

// NewProvider selects the text provider once at startup.
func NewProvider(mode string, client Completer, exemplars []search.Doc, minScore float64) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ModeKeyword:
		return NewKeyword(nil), nil
	case ModeSimilarity:
		return NewSimilarity(exemplars, minScore), nil
	case ModeLLM:
		if client == nil {
			return nil, fmt.Errorf("classify: mode %q needs an LLM client", mode)
		}
		return NewLLM(client), nil
	default:
		return nil, fmt.Errorf("classify: unknown mode %q", mode)
	}
}
