package similarity

// Semantic layers embedding cosine similarity over the lexical strategy.
// When both items carry embeddings the result is the larger of the two
// signals; a thesaurus rewording that fools token overlap still scores
// high on cosine, and near-identical strings still score high even if
// their embeddings drifted. Items without embeddings degrade to lexical.
type Semantic struct {
	lexical *Lexical

	// SemanticShare weights the cosine signal when blending with the
	// keyword signal, matching the original 85/15 split between meaning
	// and surface overlap.
	SemanticShare float64
}

// NewSemantic creates the semantic strategy.
func NewSemantic() *Semantic {
	return &Semantic{lexical: NewLexical(), SemanticShare: 0.85}
}

// Similarity implements Strategy.
func (s *Semantic) Similarity(a, b Item) float64 {
	lex := s.lexical.Similarity(a, b)
	if lex == 1 {
		// Mechanical duplicates need no embedding check.
		return 1
	}
	if len(a.Embedding) == 0 || len(b.Embedding) == 0 {
		return lex
	}

	cos := Cosine(a.Embedding, b.Embedding)
	blended := cos*s.SemanticShare + lex*(1-s.SemanticShare)
	if blended > 1 {
		blended = 1
	}
	if lex > blended {
		return lex
	}
	return blended
}
