package remote

import (
	"context"

	"loandocs/api/internal/document"
)

// Disabled is the local-fallback backend: every call fails with
// document.ErrRemoteUnreachable so callers keep working from the local cache.
type Disabled struct {
	Reason string
}

func (Disabled) Name() string { return "none" }

func (Disabled) Put(context.Context, document.Record) error { return document.ErrRemoteUnreachable }

func (Disabled) Get(context.Context, string) (document.Record, error) {
	return document.Record{}, document.ErrRemoteUnreachable
}

func (Disabled) Delete(context.Context, string) error { return document.ErrRemoteUnreachable }

func (Disabled) ListIDs(context.Context, string) ([]string, error) {
	return nil, document.ErrRemoteUnreachable
}

func (Disabled) List(context.Context, string) ([]document.Record, error) {
	return nil, document.ErrRemoteUnreachable
}

func (Disabled) Clear(context.Context) (int, error) { return 0, document.ErrRemoteUnreachable }

func (Disabled) Ping(context.Context) error { return document.ErrRemoteUnreachable }

func (Disabled) Close() error { return nil }
