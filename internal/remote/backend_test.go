package remote

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"loandocs/api/internal/document"
)

func sampleRecord(id, loanID, docType string) document.Record {
	return document.Record{
		ID:           id,
		LoanID:       loanID,
		DocType:      docType,
		Category:     document.CategoryLoan,
		Filename:     docType + ".pdf",
		FileType:     document.MimePDF,
		FileSize:     4,
		Content:      document.EncodeDataURL(document.MimePDF, []byte("%PDF")),
		Status:       document.StatusPending,
		DateUploaded: time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC),
		SyncState:    document.SyncPending,
	}
}

// exerciseBackend runs the behaviour every backend must share against an empty store.
func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	if err := b.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	if _, err := b.Get(ctx, "missing"); !errors.Is(err, document.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing id, got %v", err)
	}

	a := sampleRecord("a", "loan-1", document.TypePromissoryNote)
	c := sampleRecord("c", "loan-1", document.TypeDeedOfTrust)
	d := sampleRecord("d", "loan-2", document.TypePropertyAppraisal)
	for _, rec := range []document.Record{a, c, d} {
		if err := b.Put(ctx, rec); err != nil {
			t.Fatalf("Put %s failed: %v", rec.ID, err)
		}
	}

	got, err := b.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.SyncState != "" {
		t.Errorf("sync state must not reach the remote tier, got %q", got.SyncState)
	}
	if got.Content != a.Content || !got.DateUploaded.Equal(a.DateUploaded) {
		t.Errorf("round trip mismatch: %+v", got)
	}

	ids, err := b.ListIDs(ctx, "loan-1")
	if err != nil {
		t.Fatalf("ListIDs failed: %v", err)
	}
	if !reflect.DeepEqual(ids, []string{"a", "c"}) {
		t.Errorf("expected [a c], got %v", ids)
	}

	// Reassigning a record moves it between loans.
	moved := c
	moved.LoanID = "loan-2"
	if err := b.Put(ctx, moved); err != nil {
		t.Fatalf("Put moved failed: %v", err)
	}
	ids, _ = b.ListIDs(ctx, "loan-1")
	if !reflect.DeepEqual(ids, []string{"a"}) {
		t.Errorf("expected [a] after move, got %v", ids)
	}
	recs, err := b.List(ctx, "loan-2")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("expected 2 records on loan-2, got %d", len(recs))
	}

	if err := b.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := b.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete of missing id should succeed, got %v", err)
	}
	ids, _ = b.ListIDs(ctx, "loan-1")
	if len(ids) != 0 {
		t.Errorf("expected empty loan-1, got %v", ids)
	}

	n, err := b.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 cleared, got %d", n)
	}
	ids, _ = b.ListIDs(ctx, "loan-2")
	if len(ids) != 0 {
		t.Errorf("expected empty loan-2 after clear, got %v", ids)
	}
}
