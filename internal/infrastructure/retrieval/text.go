package retrieval

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

const maxSnippetRunes = 400

// ErrUnreadable marks a document whose content cannot be turned into text.
// Retrievers skip such documents instead of failing the whole search.
var ErrUnreadable = errors.New("unreadable document")

// Supported reports whether name has an extension the text extractors understand.
func Supported(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".md", ".txt", ".pdf":
		return true
	default:
		return false
	}
}

// ExtractText returns the plain text of a document. PDFs go through the pdf reader;
// everything else must be valid UTF-8.
func ExtractText(name string, data []byte) (string, error) {
	if !strings.EqualFold(path.Ext(name), ".pdf") {
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: %s is not utf-8 text", ErrUnreadable, name)
		}
		return strings.TrimSpace(string(data)), nil
	}
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w: %w", ErrUnreadable, err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w: %w", ErrUnreadable, err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return buf.String(), nil
}

// Snippet collapses whitespace and truncates long text.
func Snippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= maxSnippetRunes {
		return text
	}
	return string(runes[:maxSnippetRunes]) + "..."
}
