package ranking

import (
	"path"
	"sort"
	"strings"
	"unicode"

	"github.com/kirillkom/kb-source-router/internal/core/domain"
)

// Resolver maps raw source identifiers (names, paths, URIs) to a known source and its priority.
type Resolver struct {
	DefaultPriority float64
}

// Resolve tries, in order: an exact key match, a case-insensitive key substring match
// against the identifier without its extension, and finally a title-cased fallback name
// at the default priority. Every identifier resolves to something.
func (r Resolver) Resolve(raw string, priorities domain.PriorityMap) (string, float64) {
	if p, ok := priorities[raw]; ok {
		return raw, p
	}

	trimmed := strings.TrimSpace(raw)
	normalized := strings.ToLower(stripExtension(normalizeSeparators(trimmed)))
	if normalized != "" {
		for _, key := range keysLongestFirst(priorities) {
			k := strings.ToLower(strings.TrimSpace(key))
			if k != "" && strings.Contains(normalized, k) {
				return key, priorities[key]
			}
		}
	}

	return fallbackName(trimmed), r.DefaultPriority
}

// normalizeSeparators turns URI and Windows separators into '/' and drops a scheme prefix.
func normalizeSeparators(s string) string {
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	s = strings.ReplaceAll(s, "\\", "/")
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	return s
}

func stripExtension(s string) string {
	ext := path.Ext(s)
	if ext == "" || strings.Contains(ext, "/") {
		return s
	}
	return strings.TrimSuffix(s, ext)
}

func keysLongestFirst(priorities domain.PriorityMap) []string {
	keys := make([]string, 0, len(priorities))
	for k := range priorities {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}

// fallbackName returns the last path segment, without extension, title-cased.
func fallbackName(raw string) string {
	s := strings.TrimRight(normalizeSeparators(raw), "/")
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	s = stripExtension(s)
	if s == "" {
		return "Unknown"
	}
	return titleCase(s)
}

// titleCase upper-cases a letter that follows a non-letter and lower-cases the rest,
// so "random_doc" becomes "Random_Doc".
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		b.WriteRune(r)
		prevLetter = false
	}
	return b.String()
}
