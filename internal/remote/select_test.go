package remote

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"loandocs/api/internal/config"
	"loandocs/api/internal/document"
)

func TestSelectRedis(t *testing.T) {
	s := miniredis.RunT(t)
	backend, mode := Select(context.Background(), config.Config{RemoteBackend: "redis", RedisURL: "redis://" + s.Addr()})
	defer backend.Close()

	if mode != ModeRemote {
		t.Fatalf("expected remote mode, got %s", mode)
	}
	if backend.Name() != "redis" {
		t.Fatalf("expected redis backend, got %s", backend.Name())
	}
}

func TestSelectFallsBackWhenUnreachable(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
	}{
		{name: "disabled", cfg: config.Config{RemoteBackend: "none"}},
		{name: "unknown", cfg: config.Config{RemoteBackend: "dynamo"}},
		{name: "bad redis url", cfg: config.Config{RemoteBackend: "redis", RedisURL: "://nope"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend, mode := Select(context.Background(), tt.cfg)
			if mode != ModeLocalFallback {
				t.Fatalf("expected local-fallback, got %s", mode)
			}
			if _, err := backend.ListIDs(context.Background(), "loan-1"); !errors.Is(err, document.ErrRemoteUnreachable) {
				t.Fatalf("expected ErrRemoteUnreachable, got %v", err)
			}
		})
	}
}
