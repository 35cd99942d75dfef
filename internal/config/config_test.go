package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"REMOTE_BACKEND", "RECONCILE_INTERVAL_SECONDS", "LOCAL_QUOTA_BYTES", "MINIO_USE_SSL"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.RemoteBackend != "redis" {
		t.Fatalf("expected redis backend by default, got %q", cfg.RemoteBackend)
	}
	if cfg.ReconcileInterval != 10*time.Second {
		t.Fatalf("expected 10s reconcile interval, got %s", cfg.ReconcileInterval)
	}
	if cfg.LocalQuotaBytes != 0 {
		t.Fatalf("expected unlimited quota, got %d", cfg.LocalQuotaBytes)
	}
	if cfg.MinioUseSSL {
		t.Fatal("expected MINIO_USE_SSL=false by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("REMOTE_BACKEND", "Postgres")
	t.Setenv("RECONCILE_INTERVAL_SECONDS", "3")
	t.Setenv("LOCAL_QUOTA_BYTES", "1048576")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("ORPHAN_BATCH_WINDOW_SECONDS", "not-a-number")

	cfg := Load()
	if cfg.RemoteBackend != "postgres" {
		t.Fatalf("expected lowercased backend, got %q", cfg.RemoteBackend)
	}
	if cfg.ReconcileInterval != 3*time.Second {
		t.Fatalf("expected 3s, got %s", cfg.ReconcileInterval)
	}
	if cfg.LocalQuotaBytes != 1<<20 {
		t.Fatalf("expected 1MiB quota, got %d", cfg.LocalQuotaBytes)
	}
	if !cfg.MinioUseSSL {
		t.Fatal("expected MINIO_USE_SSL=true")
	}
	if cfg.OrphanBatchWindow != 300*time.Second {
		t.Fatalf("expected fallback window on bad input, got %s", cfg.OrphanBatchWindow)
	}
}
