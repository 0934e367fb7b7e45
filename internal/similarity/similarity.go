// Package similarity scores how alike two argument or evidence
// statements are, feeding the redundancy discount that keeps duplicated
// points from inflating a claim's score.
//
// The Strategy interface keeps the exact method pluggable: the lexical
// strategy is always available and allocation-cheap; the semantic
// strategy layers embedding cosine similarity on top when vectors are
// present.
package similarity

import (
	"math"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Item is one comparable statement. Embedding may be nil when no
// provider is configured; strategies must degrade to text comparison.
type Item struct {
	ID        uuid.UUID
	Text      string
	Embedding []float32
}

// Strategy computes a similarity in [0,1] between two items.
// 1.0 means the items express the same point.
type Strategy interface {
	Similarity(a, b Item) float64
}

var (
	urlPattern        = regexp.MustCompile(`https?://\S+|www\.\S+`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	strippedPattern   = regexp.MustCompile(`[^\w\s.,!?;:'-]`)
)

// Normalize lowercases, strips URLs and exotic characters, and collapses
// whitespace. Two statements that normalize identically are mechanical
// duplicates regardless of strategy.
func Normalize(text string) string {
	text = strings.ToLower(text)
	text = urlPattern.ReplaceAllString(text, "")
	text = strippedPattern.ReplaceAllString(text, "")
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Tokenize splits normalized text into comparison tokens, dropping
// punctuation-only fragments.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(Normalize(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	tokens := fields[:0]
	for _, f := range fields {
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// Cosine returns the cosine similarity of two vectors mapped to [0,1].
// Mismatched or empty vectors score 0 so callers fall back to lexical
// comparison instead of treating garbage as a match.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Map from [-1,1] to [0,1]; opposed vectors are maximally dissimilar.
	return (cos + 1) / 2
}
