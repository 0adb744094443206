// Package trackingid generates the public, human-shareable complaint handles
// (e.g. "CIV-04839217"). Generation is advisory-unique only; the record
// store's primary key is the real uniqueness guarantee and callers retry on
// collision.
package trackingid

import (
	"crypto/rand"
	"errors"
	"io"
	"math/big"
	"strings"
)

const (
	DefaultPrefix = "CIV"
	DefaultDigits = 8
)

// Generator produces PREFIX-NNNNNNNN identifiers.
type Generator struct {
	Prefix string
	Digits int
	// Rand is the entropy source; nil means crypto/rand.
	Rand io.Reader
}

// New returns a Generator with the given prefix and digit count, falling back
// to the defaults for empty or non-positive values.
func New(prefix string, digits int) *Generator {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if digits <= 0 {
		digits = DefaultDigits
	}
	return &Generator{Prefix: prefix, Digits: digits}
}

// Next returns a fresh identifier.
func (g *Generator) Next() (string, error) {
	src := g.Rand
	if src == nil {
		src = rand.Reader
	}
	digits := g.Digits
	if digits <= 0 {
		digits = DefaultDigits
	}
	var b strings.Builder
	b.Grow(len(g.Prefix) + 1 + digits)
	b.WriteString(g.Prefix)
	b.WriteByte('-')
	ten := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(src, ten)
		if err != nil {
			return "", errors.Join(errors.New("trackingid: entropy source failed"), err)
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

// Valid reports whether id has the shape PREFIX-DIGITS for this generator.
// It is a cheap pre-check before touching the store.
func (g *Generator) Valid(id string) bool {
	prefix, rest, ok := strings.Cut(id, "-")
	if !ok || prefix != g.Prefix || len(rest) != g.Digits {
		return false
	}
	for i := 0; i < len(rest); i++ {
		if rest[i] < '0' || rest[i] > '9' {
			return false
		}
	}
	return true
}

// LooksValid is a prefix-agnostic shape check: letters, a dash, then digits.
func LooksValid(id string) bool {
	prefix, rest, ok := strings.Cut(strings.TrimSpace(id), "-")
	if !ok || prefix == "" || rest == "" || len(id) > 32 {
		return false
	}
	for _, r := range prefix {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return false
		}
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
