package generate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"loandocs/api/internal/document"
)

type fakeLoans struct {
	loanFn func(ctx context.Context, loanID string) (LoanInfo, error)
}

func (f fakeLoans) Loan(ctx context.Context, loanID string) (LoanInfo, error) {
	return f.loanFn(ctx, loanID)
}

type fakeRenderer struct {
	renderFn func(ctx context.Context, html, title string) ([]byte, string, error)
}

func (f fakeRenderer) Render(ctx context.Context, html, title string) ([]byte, string, error) {
	return f.renderFn(ctx, html, title)
}

func fixedGenerator(loans LoanLookup, renderer Renderer) *TemplateGenerator {
	g := NewTemplateGenerator(loans, renderer)
	g.now = func() time.Time { return time.Date(2024, 3, 2, 15, 0, 0, 0, time.UTC) }
	return g
}

func TestGenerateEveryCatalogType(t *testing.T) {
	g := fixedGenerator(nil, nil)
	for _, entry := range document.Catalog() {
		t.Run(entry.DocType, func(t *testing.T) {
			rec, err := g.Generate(context.Background(), "loan-1", entry.DocType)
			if err != nil {
				t.Fatalf("Generate failed: %v", err)
			}
			if rec.ID == "" || rec.LoanID != "loan-1" || rec.DocType != entry.DocType {
				t.Fatalf("unexpected identity %+v", rec)
			}
			if rec.Category != entry.Category || rec.Status != document.StatusPending {
				t.Fatalf("unexpected category/status %s/%s", rec.Category, rec.Status)
			}
			if rec.FileType != "text/html" || !strings.HasSuffix(rec.Filename, ".html") {
				t.Fatalf("expected html output, got %s %s", rec.FileType, rec.Filename)
			}
			_, data, err := document.DecodeDataURL(rec.Content)
			if err != nil {
				t.Fatalf("decode content: %v", err)
			}
			if !strings.Contains(string(data), strings.ToUpper(entry.Label)) {
				t.Errorf("expected title %q in output", strings.ToUpper(entry.Label))
			}
			if rec.Checksum != document.Checksum(data) || rec.FileSize != int64(len(data)) {
				t.Error("checksum or size does not match payload")
			}
		})
	}
}

func TestGenerateUnknownType(t *testing.T) {
	_, err := fixedGenerator(nil, nil).Generate(context.Background(), "loan-1", "tax_return")
	if !errors.Is(err, document.ErrUnknownDocType) {
		t.Fatalf("expected ErrUnknownDocType, got %v", err)
	}
}

func TestGenerateFillsLoanData(t *testing.T) {
	loans := fakeLoans{loanFn: func(_ context.Context, loanID string) (LoanInfo, error) {
		return LoanInfo{BorrowerName: "Ada <Lovelace>", LoanAmount: 425000.5, InterestRate: 6.25}, nil
	}}
	rec, err := fixedGenerator(loans, nil).Generate(context.Background(), "loan-7", document.TypePromissoryNote)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	_, data, _ := document.DecodeDataURL(rec.Content)
	body := string(data)
	if !strings.Contains(body, "Ada &lt;Lovelace&gt;") {
		t.Error("expected escaped borrower name")
	}
	if !strings.Contains(body, "$425,000.50") {
		t.Error("expected formatted loan amount")
	}
	if !strings.Contains(body, "30 years") {
		t.Error("expected default term")
	}
	if rec.Extra["borrower"] != "Ada <Lovelace>" {
		t.Errorf("unexpected extra %v", rec.Extra)
	}
}

func TestGenerateWithRenderer(t *testing.T) {
	renderer := fakeRenderer{renderFn: func(_ context.Context, html, title string) ([]byte, string, error) {
		return []byte("%PDF-1.7"), "application/pdf", nil
	}}
	rec, err := fixedGenerator(nil, renderer).Generate(context.Background(), "loan-1", document.TypeDeedOfTrust)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if rec.FileType != "application/pdf" || rec.Filename != "deed_of_trust_loan-1.pdf" {
		t.Fatalf("unexpected output %s %s", rec.FileType, rec.Filename)
	}
}

func TestGenerateFallsBackWhenChromeMissing(t *testing.T) {
	renderer := fakeRenderer{renderFn: func(context.Context, string, string) ([]byte, string, error) {
		return nil, "", ErrPDFDependencyMissing
	}}
	rec, err := fixedGenerator(nil, renderer).Generate(context.Background(), "loan-1", document.TypeDeedOfTrust)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if rec.FileType != "text/html" {
		t.Fatalf("expected html fallback, got %s", rec.FileType)
	}

	failing := fakeRenderer{renderFn: func(context.Context, string, string) ([]byte, string, error) {
		return nil, "", errors.New("target crashed")
	}}
	if _, err := fixedGenerator(nil, failing).Generate(context.Background(), "loan-1", document.TypeDeedOfTrust); err == nil {
		t.Fatal("expected render error")
	}
}

func TestFormatMoney(t *testing.T) {
	tests := map[float64]string{
		0:         "$0.00",
		999.999:   "$1,000.00",
		1234567.5: "$1,234,567.50",
	}
	for in, want := range tests {
		if got := formatMoney(in); got != want {
			t.Errorf("formatMoney(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	if got := percentEncodeForDataURL("a b<é"); got != "a%20b%3C%C3%A9" {
		t.Fatalf("unexpected encoding %q", got)
	}
}
