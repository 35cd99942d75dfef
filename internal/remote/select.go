package remote

import (
	"context"
	"fmt"
	"log"
	"time"

	"loandocs/api/internal/config"
)

// Select builds the configured backend. A backend that cannot be reached at
// startup degrades to Disabled in local-fallback mode rather than failing.
func Select(ctx context.Context, cfg config.Config) (Backend, Mode) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	backend, err := open(ctx, cfg)
	if err != nil {
		log.Printf("remote: %v; running in %s mode", err, ModeLocalFallback)
		return Disabled{Reason: err.Error()}, ModeLocalFallback
	}
	log.Printf("remote: using %s backend", backend.Name())
	return backend, ModeRemote
}

func open(ctx context.Context, cfg config.Config) (Backend, error) {
	switch cfg.RemoteBackend {
	case "redis":
		return NewRedis(cfg.RedisURL)
	case "postgres":
		return OpenPostgres(ctx, cfg.DatabaseURL)
	case "minio":
		return NewMinIO(ctx, MinIOConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
	case "", "none":
		return nil, fmt.Errorf("remote backend disabled")
	default:
		return nil, fmt.Errorf("unknown remote backend %q", cfg.RemoteBackend)
	}
}
