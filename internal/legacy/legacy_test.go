package legacy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loandocs/api/internal/document"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGet(t *testing.T) {
	s := newTestStore(t)
	rec := document.Record{
		ID:           "doc-1",
		LoanID:       "loan-1",
		DocType:      document.TypeDeedOfTrust,
		Category:     document.CategoryLegal,
		DateUploaded: time.Date(2023, 8, 1, 0, 0, 0, 0, time.UTC),
		SyncState:    document.SyncSynced,
	}
	require.NoError(t, s.Put(rec))

	got, err := s.Get("doc-1")
	require.NoError(t, err)
	assert.Equal(t, "loan-1", got.LoanID)
	assert.Empty(t, got.SyncState)

	_, err = s.Get("missing")
	assert.ErrorIs(t, err, document.ErrNotFound)
}

func TestReadAllReportsUndecodableEntries(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Put(document.Record{ID: "a", LoanID: "loan-1", DocType: document.TypePromissoryNote}))
	require.NoError(t, s.PutRaw("b", []byte(`{"loanId":"loan-2","docType":"deed_of_trust"}`)))
	require.NoError(t, s.PutRaw("c", []byte(`not json`)))

	items, err := s.ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, "a", items[0].Record.ID)
	assert.NoError(t, items[0].Err)
	assert.Equal(t, "b", items[1].Record.ID, "missing id falls back to the key")
	assert.Equal(t, "loan-2", items[1].Record.LoanID)
	assert.Error(t, items[2].Err)
}
