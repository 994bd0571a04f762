// Package chunking splits long documents into overlapping windows so retrievers can
// score and quote the part of a document that matches a query.
package chunking

import (
	"strings"
	"unicode"
)

const (
	DefaultChunkSize    = 900
	DefaultChunkOverlap = 150
)

type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

// Split returns windows of at most ChunkSize runes overlapping by about Overlap runes.
// Window edges move to the nearest whitespace when one is close, so quoted snippets
// do not start or end mid-word. Blank windows are dropped.
func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	var out []string
	for start := 0; start < n; {
		end := min(start+s.ChunkSize, n)
		if end < n {
			end = snapBack(runes, start, end, s.ChunkSize/4)
		}
		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			out = append(out, chunk)
		}
		if end == n {
			break
		}

		next := end - s.Overlap
		if next <= start {
			next = end
		}
		start = snapStart(runes, next, start, end)
	}
	return out
}

// snapBack moves end left onto whitespace found within reach runes, never past start.
func snapBack(runes []rune, start, end, reach int) int {
	for i := end; i > start && i > end-reach; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return end
}

// snapStart moves a window start that lands mid-word to the next word before limit, or
// else back to the start of the current word while staying after prev.
func snapStart(runes []rune, start, prev, limit int) int {
	if start == 0 || unicode.IsSpace(runes[start-1]) {
		return start
	}
	for i := start; i < limit; i++ {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}
	for i := start - 1; i > prev; i-- {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}
	return start
}
