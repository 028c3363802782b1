package knol

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/conorfennell/knolstudy/internal/domain"
)

// Normalize concatenates the card's front and back after cleaning each part.
// It trims whitespace, lowercases, and normalizes line endings for each field
// before joining them.
func Normalize(card domain.Card) string {
	normalizePart := func(part string) string {
		p := strings.ToLower(part)
		p = strings.ReplaceAll(p, "\r\n", "\n")
		return strings.TrimSpace(p)
	}

	// Joined with a newline so "ab"+"c" and "a"+"bc" hash differently.
	return normalizePart(card.Front) + "\n" + normalizePart(card.Back)
}

// ID derives a stable card ID from its content: the first 16 hex characters
// of the SHA-256 of the normalized card.
func ID(card domain.Card) string {
	sum := sha256.Sum256([]byte(Normalize(card)))
	return fmt.Sprintf("%x", sum[:8])
}

// NormalizeTag lowercases a tag, trims it, and joins inner whitespace with '-'.
func NormalizeTag(tag string) string {
	return strings.Join(strings.Fields(strings.ToLower(tag)), "-")
}

// NormalizeTags normalizes every tag, dropping empties and duplicates while
// keeping first-seen order.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	var out []string
	for _, t := range tags {
		n := NormalizeTag(t)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
