package search

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"loandocs/api/internal/document"
)

const (
	minIndexedChars = 50
	maxIndexedChars = 8000

	maxContextChars = 7000 * 4
	truncationNote  = "\n\n[Note: The context has been truncated due to its size. If important information seems missing, please ask more specific questions.]"
	noMatchesText   = "No relevant loan documents found for this query."
)

// ExtractText returns the searchable text of a record, or "" when the
// content is binary or too short to be worth indexing.
func ExtractText(rec document.Record) string {
	if rec.Content == "" {
		return ""
	}
	mimeType, data, err := document.DecodeDataURL(rec.Content)
	if err != nil {
		return ""
	}

	raw := string(data)
	var text string
	switch {
	case isHTML(mimeType, rec.Filename, raw):
		text = htmlText(raw)
	case strings.HasPrefix(mimeType, "text/"):
		text = collapseSpace(raw)
	default:
		return ""
	}

	if len(text) < minIndexedChars {
		return ""
	}
	return truncate(text, maxIndexedChars)
}

func isHTML(mimeType, filename, raw string) bool {
	if strings.HasPrefix(mimeType, "text/html") || strings.HasSuffix(strings.ToLower(filename), ".html") {
		return true
	}
	trimmed := strings.TrimSpace(raw)
	return strings.HasPrefix(mimeType, "text/") && (strings.HasPrefix(trimmed, "<") || strings.Contains(trimmed, "<html"))
}

// htmlText flattens markup to its visible text, dropping script and style bodies.
func htmlText(src string) string {
	z := html.NewTokenizer(strings.NewReader(src))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return collapseSpace(b.String())
		case html.StartTagToken:
			name, _ := z.TagName()
			if tag := string(name); tag == "script" || tag == "style" {
				skip++
			}
			b.WriteByte(' ')
		case html.EndTagToken:
			name, _ := z.TagName()
			if tag := string(name); (tag == "script" || tag == "style") && skip > 0 {
				skip--
			}
			b.WriteByte(' ')
		case html.SelfClosingTagToken:
			b.WriteByte(' ')
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8Start(s[n]) {
		n--
	}
	return s[:n]
}

func utf8Start(b byte) bool {
	return b&0xC0 != 0x80
}

// BuildContext renders matches as a numbered context block for a prompt.
func BuildContext(hits []Hit) string {
	if len(hits) == 0 {
		return noMatchesText
	}
	parts := make([]string, len(hits))
	for i, h := range hits {
		name := firstNonBlank(h.Filename, "Unknown document")
		typ := firstNonBlank(h.DocType, "Unknown type")
		parts[i] = fmt.Sprintf("[%d] From document %q (%s):\n%s", i+1, name, typ, h.Text)
	}
	out := strings.Join(parts, "\n\n")
	if len(out) > maxContextChars {
		out = truncate(out, maxContextChars) + truncationNote
	}
	return out
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
