// Package retrieval holds helpers shared by the knowledge-base adapters under it.
package retrieval

import (
	"strings"
	"unicode"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "for": {}, "how": {}, "i": {}, "in": {},
	"is": {}, "me": {}, "my": {}, "of": {}, "on": {}, "or": {}, "the": {}, "to": {},
	"what": {}, "with": {},
}

// Tokens lowercases text and splits it into letter and digit runs, dropping stop words.
// Repeats are kept.
func Tokens(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if _, stop := stopWords[f]; !stop {
			out = append(out, f)
		}
	}
	return out
}

// Terms is Tokens without repeats, in order of first appearance.
func Terms(text string) []string {
	tokens := Tokens(text)
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Overlap is the share of query terms found in the document text, in [0,1].
func Overlap(queryTerms []string, document string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	docTerms := Terms(document)
	index := make(map[string]struct{}, len(docTerms))
	for _, t := range docTerms {
		index[t] = struct{}{}
	}
	matched := 0
	for _, t := range queryTerms {
		if _, ok := index[t]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTerms))
}

// BestChunk scores every chunk prefixed with label and returns the highest scoring
// one. Ties keep the earliest chunk. The index is -1 when chunks is empty.
func BestChunk(terms []string, label string, chunks []string) (string, int, float64) {
	best, bestScore := -1, 0.0
	for i, chunk := range chunks {
		score := Overlap(terms, label+" "+chunk)
		if best < 0 || score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return "", -1, 0
	}
	return chunks[best], best, bestScore
}
