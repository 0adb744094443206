package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrParseFailed is returned when a reply contains no decodable JSON object.
var ErrParseFailed = errors.New("llm: failed to parse reply")

var jsonFenceRE = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// ParseJSON decodes a JSON object from a model reply. It tries, in order,
// the whole reply, a fenced code block, and the first balanced {...} span
// (models often wrap JSON in prose).
func ParseJSON[T any](content string) (T, error) {
	var result T
	content = strings.TrimSpace(content)

	if err := json.Unmarshal([]byte(content), &result); err == nil {
		return result, nil
	}
	if m := jsonFenceRE.FindStringSubmatch(content); len(m) >= 2 {
		if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), &result); err == nil {
			return result, nil
		}
	}
	if obj := firstObject(content); obj != "" {
		if err := json.Unmarshal([]byte(obj), &result); err == nil {
			return result, nil
		}
	}
	return result, fmt.Errorf("%w: %q", ErrParseFailed, truncate(content, 200))
}

// firstObject returns the first brace-balanced object in s, honoring
// string literals, or "" when none closes.
func firstObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inStr, esc := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		switch {
		case esc:
			esc = false
		case inStr && ch == '\\':
			esc = true
		case ch == '"':
			inStr = !inStr
		case inStr:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
