package similarity

// Lexical is the embedding-free similarity strategy: the maximum of
// token-set overlap (Jaccard) and a normalized edit-distance ratio.
// Token overlap catches reordered restatements; edit distance catches
// small rewordings that token sets miss. Mechanically equivalent
// statements (identical after normalization) short-circuit to 1.0.
type Lexical struct{}

// NewLexical creates the lexical strategy.
func NewLexical() *Lexical { return &Lexical{} }

// Similarity implements Strategy.
func (l *Lexical) Similarity(a, b Item) float64 {
	na, nb := Normalize(a.Text), Normalize(b.Text)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}

	jaccard := tokenJaccard(Tokenize(a.Text), Tokenize(b.Text))
	edit := editRatio(na, nb)
	if jaccard > edit {
		return jaccard
	}
	return edit
}

func tokenJaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(a))
	for _, t := range a {
		set[t] = struct{}{}
	}
	inter := 0
	seen := make(map[string]struct{}, len(b))
	for _, t := range b {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := set[t]; ok {
			inter++
		}
	}
	union := len(set) + len(seen) - inter
	return float64(inter) / float64(union)
}

// editRatio is 1 - levenshtein/maxLen, computed over runes with a
// two-row matrix.
func editRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 && len(rb) == 0 {
		return 1
	}
	dist := levenshtein(ra, rb)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	return 1 - float64(dist)/float64(maxLen)
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
