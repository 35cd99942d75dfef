package search

import (
	"context"
	"errors"

	"loandocs/api/internal/document"
)

var ErrIndexUnavailable = errors.New("search index unavailable")

// IndexRecord is the data we index for a loan document.
type IndexRecord struct {
	ID       string `json:"id"`
	LoanID   string `json:"loanId"`
	DocType  string `json:"docType"`
	Filename string `json:"filename"`
	Text     string `json:"text"`
}

// Hit is a single matching document.
type Hit struct {
	DocumentID string  `json:"documentId"`
	LoanID     string  `json:"loanId"`
	DocType    string  `json:"documentType"`
	Filename   string  `json:"documentName"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

type IndexResult struct {
	IndexedCount int      `json:"indexed"`
	TotalCount   int      `json:"totalDocuments"`
	Skipped      []string `json:"skipped,omitempty"`
}

type QueryResult struct {
	LoanID        string `json:"loanId"`
	Query         string `json:"query"`
	ContextString string `json:"contextString"`
	MatchCount    int    `json:"matchCount"`
	Matches       []Hit  `json:"contexts"`
	Source        string `json:"source"`
}

// Index is a full-text index of loan documents.
type Index interface {
	Healthy() bool
	Upsert(records []IndexRecord) error
	Delete(id string) error
	Search(loanID, text string, limit int) ([]Hit, error)
}

// Source lists the documents of a loan from the local cache.
type Source interface {
	ListByLoan(ctx context.Context, loanID string) ([]document.Record, error)
}

// Fallback answers queries from the local cache while the index is down.
type Fallback interface {
	SearchContent(ctx context.Context, loanID, text string, limit int) ([]document.Record, error)
}
