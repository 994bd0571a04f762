package qdrant

import (
	"hash/fnv"
	"slices"

	"github.com/kirillkom/kb-source-router/internal/infrastructure/retrieval"
)

// sparseVector is the wire form of a Qdrant sparse query.
type sparseVector struct {
	Indices []uint32  `json:"indices"`
	Values  []float32 `json:"values"`
}

const (
	termSaturation = 1.2
	maxQueryTerms  = 64
)

// encodeSparseQuery weights each distinct query term by tf*(k+1)/(tf+k). Indices are
// FNV-1a hashes of the lowercased term, the scheme the KB indexer uses for documents.
// IDF is applied by the collection.
func encodeSparseQuery(query string) sparseVector {
	counts := make(map[uint32]int)
	for _, token := range retrieval.Tokens(query) {
		counts[termIndex(token)]++
	}
	if len(counts) == 0 {
		return sparseVector{}
	}

	indices := make([]uint32, 0, len(counts))
	for idx := range counts {
		indices = append(indices, idx)
	}
	slices.Sort(indices)
	if len(indices) > maxQueryTerms {
		indices = indices[:maxQueryTerms]
	}

	values := make([]float32, len(indices))
	for i, idx := range indices {
		tf := float64(counts[idx])
		values[i] = float32(tf * (termSaturation + 1) / (tf + termSaturation))
	}
	return sparseVector{Indices: indices, Values: values}
}

// termIndex never returns 0.
func termIndex(term string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(term))
	return max(h.Sum32(), 1)
}
