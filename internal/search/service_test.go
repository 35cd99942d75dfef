package search

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"loandocs/api/internal/document"
)

type fakeIndex struct {
	healthy  bool
	mu       sync.Mutex
	upserted []IndexRecord
	deleted  []string
	searchFn func(loanID, text string, limit int) ([]Hit, error)
	upsertFn func(records []IndexRecord) error
}

func (f *fakeIndex) Healthy() bool { return f.healthy }

func (f *fakeIndex) Upsert(records []IndexRecord) error {
	if f.upsertFn != nil {
		if err := f.upsertFn(records); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, records...)
	return nil
}

func (f *fakeIndex) Delete(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeIndex) Search(loanID, text string, limit int) ([]Hit, error) {
	if f.searchFn != nil {
		return f.searchFn(loanID, text, limit)
	}
	return nil, nil
}

type fakeLocal struct {
	records  []document.Record
	searchFn func(loanID, text string, limit int) ([]document.Record, error)
}

func (f *fakeLocal) ListByLoan(_ context.Context, loanID string) ([]document.Record, error) {
	var out []document.Record
	for _, r := range f.records {
		if r.LoanID == loanID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeLocal) SearchContent(_ context.Context, loanID, text string, limit int) ([]document.Record, error) {
	if f.searchFn != nil {
		return f.searchFn(loanID, text, limit)
	}
	return nil, nil
}

var longBody = strings.Repeat("Deed of trust securing the property at 12 Elm Street. ", 3)

func TestIndexDocuments(t *testing.T) {
	index := &fakeIndex{healthy: true}
	local := &fakeLocal{records: []document.Record{
		{ID: "a", LoanID: "loan-1", DocType: "deed_of_trust", Filename: "deed.html", Content: document.EncodeDataURL("text/html", []byte("<p>"+longBody+"</p>"))},
		{ID: "b", LoanID: "loan-1", DocType: "property_appraisal", Filename: "appraisal.pdf", Content: document.EncodeDataURL(document.MimePDF, []byte("%PDF"))},
		{ID: "c", LoanID: "loan-2", DocType: "deed_of_trust", Filename: "deed.html", Content: document.EncodeDataURL("text/html", []byte(longBody))},
	}}
	svc := NewService(index, local, local)

	res, err := svc.IndexDocuments(context.Background(), "loan-1")
	if err != nil {
		t.Fatalf("IndexDocuments failed: %v", err)
	}
	if res.IndexedCount != 1 || res.TotalCount != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(res.Skipped) != 1 || res.Skipped[0] != "b" {
		t.Fatalf("expected b skipped, got %v", res.Skipped)
	}
	if len(index.upserted) != 1 || index.upserted[0].ID != "a" || index.upserted[0].LoanID != "loan-1" {
		t.Fatalf("unexpected upserts %+v", index.upserted)
	}
}

func TestIndexDocumentsWithoutIndex(t *testing.T) {
	local := &fakeLocal{records: []document.Record{
		{ID: "a", LoanID: "loan-1", Filename: "deed.html", Content: document.EncodeDataURL("text/html", []byte(longBody))},
	}}
	svc := NewService(nil, local, local)

	res, err := svc.IndexDocuments(context.Background(), "loan-1")
	if !errors.Is(err, ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}
	if res.TotalCount != 1 || res.IndexedCount != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestQueryContextUsesIndex(t *testing.T) {
	var gotLimit int
	index := &fakeIndex{healthy: true, searchFn: func(loanID, text string, limit int) ([]Hit, error) {
		gotLimit = limit
		return []Hit{{DocumentID: "a", LoanID: loanID, DocType: "deed_of_trust", Filename: "deed.html", Text: "12 Elm Street"}}, nil
	}}
	svc := NewService(index, &fakeLocal{}, &fakeLocal{})

	res, err := svc.QueryContext(context.Background(), "loan-1", "property address", 0)
	if err != nil {
		t.Fatalf("QueryContext failed: %v", err)
	}
	if gotLimit != defaultTopK {
		t.Errorf("expected default topK %d, got %d", defaultTopK, gotLimit)
	}
	if res.Source != "index" || res.MatchCount != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if !strings.Contains(res.ContextString, "12 Elm Street") {
		t.Errorf("context missing hit text: %q", res.ContextString)
	}
}

func TestQueryContextFallsBackToLocal(t *testing.T) {
	index := &fakeIndex{healthy: true, searchFn: func(string, string, int) ([]Hit, error) {
		return nil, errors.New("connection refused")
	}}
	local := &fakeLocal{searchFn: func(loanID, text string, limit int) ([]document.Record, error) {
		return []document.Record{{ID: "a", LoanID: loanID, DocType: "deed_of_trust", Filename: "deed.html",
			Content: document.EncodeDataURL("text/html", []byte(longBody))}}, nil
	}}
	svc := NewService(index, local, local)

	res, err := svc.QueryContext(context.Background(), "loan-1", "elm", 3)
	if err != nil {
		t.Fatalf("QueryContext failed: %v", err)
	}
	if res.Source != "local" || res.MatchCount != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if !strings.Contains(res.ContextString, "12 Elm Street") {
		t.Errorf("context missing extracted text: %q", res.ContextString)
	}
}

func TestQueryContextNoMatches(t *testing.T) {
	svc := NewService(nil, &fakeLocal{}, &fakeLocal{})
	res, err := svc.QueryContext(context.Background(), "loan-1", "anything", 5)
	if err != nil {
		t.Fatalf("QueryContext failed: %v", err)
	}
	if res.ContextString != noMatchesText || res.MatchCount != 0 || res.Matches == nil {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestAsyncIndexAndDelete(t *testing.T) {
	index := &fakeIndex{healthy: true}
	svc := NewService(index, &fakeLocal{}, &fakeLocal{})

	svc.IndexDocument(document.Record{ID: "a", LoanID: "loan-1", Filename: "deed.html",
		Content: document.EncodeDataURL("text/html", []byte(longBody))})
	svc.IndexDocument(document.Record{ID: "o", LoanID: "", Filename: "deed.html",
		Content: document.EncodeDataURL("text/html", []byte(longBody))})
	svc.DeleteDocument("z")
	svc.Wait()

	if len(index.upserted) != 1 || index.upserted[0].ID != "a" {
		t.Fatalf("expected only a indexed, got %+v", index.upserted)
	}
	if len(index.deleted) != 1 || index.deleted[0] != "z" {
		t.Fatalf("expected z deleted, got %v", index.deleted)
	}
}
