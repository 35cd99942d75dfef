// Package generate synthesizes slot documents from templates.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"loandocs/api/internal/document"
	"loandocs/api/internal/util"
)

// Generator creates the document for a catalog slot.
type Generator interface {
	Generate(ctx context.Context, loanID, docType string) (document.Record, error)
}

// LoanLookup supplies the loan data a template is filled with.
type LoanLookup interface {
	Loan(ctx context.Context, loanID string) (LoanInfo, error)
}

// Renderer turns rendered HTML into the stored payload.
type Renderer interface {
	Render(ctx context.Context, html, title string) (data []byte, mimeType string, err error)
}

// TemplateGenerator renders the built-in templates. Without a LoanLookup it
// fills placeholders; without a Renderer it stores HTML.
type TemplateGenerator struct {
	loans    LoanLookup
	renderer Renderer
	now      func() time.Time
}

func NewTemplateGenerator(loans LoanLookup, renderer Renderer) *TemplateGenerator {
	return &TemplateGenerator{loans: loans, renderer: renderer, now: time.Now}
}

func (g *TemplateGenerator) Generate(ctx context.Context, loanID, docType string) (document.Record, error) {
	entry, ok := document.LookupType(docType)
	if !ok {
		return document.Record{}, fmt.Errorf("%w: %s", document.ErrUnknownDocType, docType)
	}

	now := g.now().UTC()
	loan := placeholderLoan(loanID, now)
	if g.loans != nil {
		info, err := g.loans.Loan(ctx, loanID)
		if err != nil {
			return document.Record{}, fmt.Errorf("load loan %s: %w", loanID, err)
		}
		loan = withDefaults(info, loanID, now)
	}

	html, err := RenderHTML(docType, TemplateData{Title: entry.Label, Loan: loan})
	if err != nil {
		return document.Record{}, fmt.Errorf("render %s: %w", docType, err)
	}

	data, mimeType, ext := []byte(html), "text/html", ".html"
	if g.renderer != nil {
		rendered, renderedType, err := g.renderer.Render(ctx, html, entry.Label)
		switch {
		case err == nil:
			data, mimeType, ext = rendered, renderedType, ".pdf"
		case errors.Is(err, ErrPDFDependencyMissing):
			log.Printf("generate: %v; storing %s as html", err, docType)
		default:
			return document.Record{}, fmt.Errorf("render pdf %s: %w", docType, err)
		}
	}

	return document.Record{
		ID:           util.NewID(""),
		LoanID:       loanID,
		DocType:      docType,
		Category:     entry.Category,
		Filename:     docType + "_" + sanitizeFilename(loanID) + ext,
		FileType:     mimeType,
		FileSize:     int64(len(data)),
		Content:      document.EncodeDataURL(mimeType, data),
		Status:       document.StatusPending,
		DateUploaded: now,
		Checksum:     document.Checksum(data),
		Extra: map[string]string{
			"source":   "generated",
			"template": docType,
			"borrower": loan.BorrowerName,
		},
	}, nil
}

func placeholderLoan(loanID string, now time.Time) LoanInfo {
	return LoanInfo{
		LoanID:          loanID,
		BorrowerName:    "Borrower",
		LenderName:      "Lender",
		LoanTermMonths:  360,
		LoanType:        "conventional",
		PropertyAddress: "Property address on file",
		PropertyType:    "single family",
		CreatedAt:       now,
	}
}

func withDefaults(info LoanInfo, loanID string, now time.Time) LoanInfo {
	def := placeholderLoan(loanID, now)
	if info.LoanID == "" {
		info.LoanID = def.LoanID
	}
	if info.BorrowerName == "" {
		info.BorrowerName = def.BorrowerName
	}
	if info.LenderName == "" {
		info.LenderName = def.LenderName
	}
	if info.LoanTermMonths == 0 {
		info.LoanTermMonths = def.LoanTermMonths
	}
	if info.LoanType == "" {
		info.LoanType = def.LoanType
	}
	if info.PropertyAddress == "" {
		info.PropertyAddress = def.PropertyAddress
	}
	if info.PropertyType == "" {
		info.PropertyType = def.PropertyType
	}
	if info.CreatedAt.IsZero() {
		info.CreatedAt = now
	}
	return info
}
