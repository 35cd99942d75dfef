// Package remote provides the durable remote tier for loan documents. Every
// backend stores the same JSON document shape and can list ids per loan.
package remote

import (
	"context"
	"sort"

	"loandocs/api/internal/document"
)

// Backend is a durable store of document records. Delete of a missing id is
// not an error. Get of a missing id returns document.ErrNotFound.
type Backend interface {
	Name() string
	Put(ctx context.Context, rec document.Record) error
	Get(ctx context.Context, id string) (document.Record, error)
	Delete(ctx context.Context, id string) error
	ListIDs(ctx context.Context, loanID string) ([]string, error)
	List(ctx context.Context, loanID string) ([]document.Record, error)
	Clear(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

// Mode reports whether the service is backed by a remote store.
type Mode string

const (
	ModeRemote        Mode = "remote"
	ModeLocalFallback Mode = "local-fallback"
)

func sortedIDs(ids []string) []string {
	sort.Strings(ids)
	return ids
}
