package split

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"loandocs/api/internal/document"
)

func pdfDataURL(body string) string {
	return document.EncodeDataURL(document.MimePDF, []byte(body))
}

func packageRecord() document.Record {
	return document.Record{
		ID:       "pkg-1",
		LoanID:   "loan-1",
		DocType:  document.TypeExecutedPackage,
		Filename: "executed_package.pdf",
		Content:  pdfDataURL("%PDF package"),
	}
}

func newTestServer(t *testing.T, status int, resp any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.DocumentID != "pkg-1" || req.LoanID != "loan-1" {
			t.Errorf("unexpected request %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSplitSuccess(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, response{
		Expected: 2,
		Documents: []splitDocument{
			{Filename: "promissory_note.pdf", DocType: "promissory_note", Content: pdfDataURL("%PDF note")},
			{Filename: "Deed of Trust.pdf", Content: pdfDataURL("%PDF deed")},
		},
	})

	records, err := NewClient(srv.URL, srv.Client()).Split(context.Background(), packageRecord())
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].DocType != document.TypePromissoryNote || records[0].Category != document.CategoryLoan {
		t.Errorf("unexpected first record %+v", records[0])
	}
	if records[1].DocType != document.TypeDeedOfTrust || records[1].Category != document.CategoryLegal {
		t.Errorf("expected classification from filename, got %s/%s", records[1].DocType, records[1].Category)
	}
	for _, r := range records {
		if r.ID == "" || r.ID == "pkg-1" || r.LoanID != "loan-1" || r.Status != document.StatusPending {
			t.Errorf("unexpected record identity %+v", r)
		}
	}
}

func TestSplitPartial(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, response{
		Expected: 4,
		Documents: []splitDocument{
			{Filename: "promissory_note.pdf", DocType: "promissory_note", Content: pdfDataURL("%PDF note")},
			{Filename: "broken.pdf", Content: "data:application/pdf;base64,!!!"},
		},
	})

	records, err := NewClient(srv.URL, srv.Client()).Split(context.Background(), packageRecord())
	var partial *PartialError
	if !errors.As(err, &partial) {
		t.Fatalf("expected PartialError, got %v", err)
	}
	if partial.Expected != 4 || partial.Got != 1 {
		t.Errorf("unexpected partial %+v", partial)
	}
	if len(records) != 1 {
		t.Errorf("expected the good record to be kept, got %d", len(records))
	}
}

func TestSplitServerError(t *testing.T) {
	srv := newTestServer(t, http.StatusBadGateway, response{
		Expected:  3,
		Documents: []splitDocument{{Filename: "promissory_note.pdf", DocType: "promissory_note", Content: pdfDataURL("%PDF")}},
		Error:     "page 2 unreadable",
	})

	records, err := NewClient(srv.URL, srv.Client()).Split(context.Background(), packageRecord())
	var partial *PartialError
	if !errors.As(err, &partial) {
		t.Fatalf("expected PartialError, got %v", err)
	}
	if partial.Err == nil || len(records) != 1 {
		t.Errorf("unexpected result %v %d", partial, len(records))
	}
}

func TestSplitNotConfigured(t *testing.T) {
	_, err := NewClient("", nil).Split(context.Background(), packageRecord())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
