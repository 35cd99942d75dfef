package search

import (
	"strings"
	"testing"

	"loandocs/api/internal/document"
)

func htmlRecord(body string) document.Record {
	return document.Record{
		ID:       "doc-1",
		LoanID:   "loan-1",
		Filename: "note.html",
		Content:  document.EncodeDataURL("text/html", []byte(body)),
	}
}

func TestExtractText(t *testing.T) {
	long := strings.Repeat("The borrower promises to pay. ", 5)

	tests := []struct {
		name string
		rec  document.Record
		want string
	}{
		{
			name: "html drops markup and scripts",
			rec:  htmlRecord("<html><head><style>p{}</style><script>var x = 1;</script></head><body><p>" + long + "</p></body></html>"),
			want: strings.TrimSpace(long),
		},
		{
			name: "plain text collapses whitespace",
			rec: document.Record{
				Filename: "notes.txt",
				Content:  document.EncodeDataURL("text/plain", []byte("  "+strings.ReplaceAll(long, " ", "\n  "))),
			},
			want: strings.TrimSpace(long),
		},
		{
			name: "short text is skipped",
			rec:  htmlRecord("<p>too short</p>"),
			want: "",
		},
		{
			name: "binary content is skipped",
			rec: document.Record{
				Filename: "appraisal.pdf",
				Content:  document.EncodeDataURL(document.MimePDF, []byte("%PDF-1.4 "+long)),
			},
			want: "",
		},
		{
			name: "empty content",
			rec:  document.Record{},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractText(tt.rec); got != tt.want {
				t.Fatalf("ExtractText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractTextTruncates(t *testing.T) {
	rec := document.Record{
		Filename: "big.txt",
		Content:  document.EncodeDataURL("text/plain", []byte(strings.Repeat("é", maxIndexedChars))),
	}
	got := ExtractText(rec)
	if len(got) > maxIndexedChars {
		t.Fatalf("expected at most %d bytes, got %d", maxIndexedChars, len(got))
	}
	if !strings.HasPrefix(strings.Repeat("é", maxIndexedChars), got) {
		t.Fatal("truncation split a multi-byte character")
	}
}

func TestBuildContext(t *testing.T) {
	if got := BuildContext(nil); got != noMatchesText {
		t.Fatalf("expected empty marker, got %q", got)
	}

	got := BuildContext([]Hit{
		{Filename: "note.html", DocType: "promissory_note", Text: "pay"},
		{Text: "x"},
	})
	want := "[1] From document \"note.html\" (promissory_note):\npay\n\n[2] From document \"Unknown document\" (Unknown type):\nx"
	if got != want {
		t.Fatalf("BuildContext() = %q, want %q", got, want)
	}

	huge := BuildContext([]Hit{{Filename: "a", DocType: "b", Text: strings.Repeat("x", maxContextChars)}})
	if !strings.HasSuffix(huge, truncationNote) {
		t.Fatal("expected truncation note")
	}
	if len(huge) != maxContextChars+len(truncationNote) {
		t.Fatalf("unexpected truncated length %d", len(huge))
	}
}
