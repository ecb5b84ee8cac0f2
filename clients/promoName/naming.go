package promoname

import (
	"crypto/rand"
	"fmt"
	"strings"
	"unicode"
)

const (
	DefaultPrefix = "promo-"
	SuffixLength  = 8
	MaxTagLength  = 32

	suffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// TagError описывает нарушенное правило формата тега.
type TagError struct {
	Tag     string
	Rule    string
	Invalid []rune
}

func (e *TagError) Error() string {
	if len(e.Invalid) > 0 {
		return fmt.Sprintf("tag %q: %s: %q", e.Tag, e.Rule, string(e.Invalid))
	}
	return fmt.Sprintf("tag %q: %s", e.Tag, e.Rule)
}

const (
	RuleEmpty     = "tag is empty"
	RuleTooLong   = "tag is longer than 32 characters"
	RuleForbidden = "only latin letters, digits, '_' and '-' are allowed"
)

// NormalizeTag trims the input and replaces every whitespace run with a single underscore.
// Nothing else is corrected.
func NormalizeTag(raw string) string {
	return strings.Join(strings.Fields(raw), "_")
}

func ValidateTag(tag string) error {
	if tag == "" {
		return &TagError{Tag: tag, Rule: RuleEmpty}
	}
	var invalid []rune
	seen := make(map[rune]bool)
	for _, r := range tag {
		if isTagRune(r) {
			continue
		}
		if !seen[r] {
			seen[r] = true
			invalid = append(invalid, r)
		}
	}
	if len(invalid) > 0 {
		return &TagError{Tag: tag, Rule: RuleForbidden, Invalid: invalid}
	}
	// only ASCII is left, bytes are characters
	if len(tag) > MaxTagLength {
		return &TagError{Tag: tag, Rule: RuleTooLong}
	}
	return nil
}

func isTagRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '_' || r == '-':
		return true
	}
	return false
}

func isSuffixRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}

// NewSuffix returns SuffixLength random characters from [a-z0-9].
func NewSuffix() string {
	buf := make([]byte, SuffixLength)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(fmt.Sprintf("promoname: read random: %v", err))
	}
	for i, b := range buf {
		buf[i] = suffixAlphabet[int(b)%len(suffixAlphabet)]
	}
	return string(buf)
}

// Encode builds an account username: <prefix><suffix>-<tag>.
func Encode(prefix, tag, suffix string) string {
	return prefix + suffix + "-" + tag
}

// Decode returns the campaign tag embedded in username. ok is false for every username
// that was not produced by Encode with the same prefix.
func Decode(prefix, username string) (tag string, ok bool) {
	if prefix == "" || !strings.HasPrefix(username, prefix) {
		return "", false
	}
	rest := username[len(prefix):]

	// suffix never contains '-', so the first dash separates it from the tag
	suffix, tag, found := strings.Cut(rest, "-")
	if !found || len(suffix) != SuffixLength {
		return "", false
	}
	for _, r := range suffix {
		if !isSuffixRune(r) {
			return "", false
		}
	}
	if ValidateTag(tag) != nil {
		return "", false
	}
	return tag, true
}

// HasSpace reports whether raw contains any whitespace that NormalizeTag would replace.
func HasSpace(raw string) bool {
	return strings.IndexFunc(strings.TrimSpace(raw), unicode.IsSpace) >= 0
}
