package similarity

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(text string, embedding ...float32) Item {
	return Item{ID: uuid.New(), Text: text, Embedding: embedding}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase", "Tax Rates Should Be Reduced", "tax rates should be reduced"},
		{"whitespace", "taxes   should\tbe\nlower", "taxes should be lower"},
		{"url stripped", "see https://example.com/study for details", "see for details"},
		{"exotic chars", "smoking → cancer ★", "smoking cancer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestLexicalMechanicalDuplicate(t *testing.T) {
	lex := NewLexical()
	// Identical after normalization: case and whitespace noise only.
	sim := lex.Similarity(
		item("Tax rates should be reduced"),
		item("tax  rates should be REDUCED"),
	)
	assert.Equal(t, 1.0, sim)
}

func TestLexicalNearDuplicate(t *testing.T) {
	lex := NewLexical()
	sim := lex.Similarity(
		item("smoking causes lung cancer in adults"),
		item("smoking causes lung cancer in most adults"),
	)
	assert.Greater(t, sim, 0.8, "one-word insertion should score high")

	unrelated := lex.Similarity(
		item("smoking causes lung cancer"),
		item("the federal budget deficit grew last year"),
	)
	assert.Less(t, unrelated, 0.4)
}

func TestLexicalSymmetric(t *testing.T) {
	lex := NewLexical()
	a := item("the trial was not randomized")
	b := item("the study lacked randomization")
	assert.InDelta(t, lex.Similarity(a, b), lex.Similarity(b, a), 1e-12)
}

func TestLexicalEmptyText(t *testing.T) {
	lex := NewLexical()
	assert.Zero(t, lex.Similarity(item(""), item("anything")))
}

func TestCosine(t *testing.T) {
	assert.Equal(t, 1.0, Cosine([]float32{1, 0}, []float32{1, 0}))
	assert.Equal(t, 0.0, Cosine([]float32{1, 0}, []float32{-1, 0}), "opposed vectors map to 0")
	assert.InDelta(t, 0.5, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9, "orthogonal vectors map to 0.5")
	assert.Zero(t, Cosine(nil, []float32{1}), "missing vector scores 0")
	assert.Zero(t, Cosine([]float32{1, 2}, []float32{1}), "dimension mismatch scores 0")
}

func TestSemanticBlendsEmbeddings(t *testing.T) {
	sem := NewSemantic()

	// Different wording, identical embeddings: semantic signal dominates.
	a := item("he has a short attention span", 0.5, 0.5)
	b := item("he is easily distracted", 0.5, 0.5)
	simWith := sem.Similarity(a, b)

	lex := NewLexical().Similarity(Item{Text: a.Text}, Item{Text: b.Text})
	assert.Greater(t, simWith, lex, "matching embeddings must raise the score")
	assert.LessOrEqual(t, simWith, 1.0)
}

func TestSemanticFallsBackWithoutEmbeddings(t *testing.T) {
	sem := NewSemantic()
	lex := NewLexical()

	a := item("carbon emissions raise global temperature")
	b := item("carbon emissions raise the global temperature")
	assert.Equal(t, lex.Similarity(a, b), sem.Similarity(a, b))
}

func TestSemanticNeverBelowLexical(t *testing.T) {
	sem := NewSemantic()
	lex := NewLexical()

	// Near-identical text with dissimilar embeddings: lexical wins.
	a := item("the measure passed in 2019", 1, 0)
	b := item("the measure passed in 2019.", 0, 1)
	assert.GreaterOrEqual(t, sem.Similarity(a, b), lex.Similarity(a, b))
}

func TestParseQdrantURL(t *testing.T) {
	host, port, tls, err := parseQdrantURL("https://xyz.cloud.qdrant.io:6333")
	require.NoError(t, err)
	assert.Equal(t, "xyz.cloud.qdrant.io", host)
	assert.Equal(t, 6334, port, "REST port maps to gRPC port")
	assert.True(t, tls)

	host, port, tls, err = parseQdrantURL("http://localhost:6334")
	require.NoError(t, err)
	assert.Equal(t, "localhost", host)
	assert.Equal(t, 6334, port)
	assert.False(t, tls)

	_, _, _, err = parseQdrantURL("::notaurl")
	require.Error(t, err)
}

func TestNoopIndex(t *testing.T) {
	idx := NoopIndex{}
	require.NoError(t, idx.Upsert(t.Context(), []Item{item("x", 1)}))
	neighbors, err := idx.Neighbors(t.Context(), item("x", 1), 10)
	require.NoError(t, err)
	assert.Empty(t, neighbors)
	require.NoError(t, idx.Healthy(t.Context()))
}
