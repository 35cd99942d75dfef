package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"loandocs/api/internal/document"
)

const (
	minioDocPrefix  = "docs/"
	minioLoanPrefix = "by-loan/"
)

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinIO stores records as docs/<id>.json objects. Loan membership is kept as
// empty marker objects under by-loan/<loanId>/<id> so listing a loan is a
// prefix scan.
type MinIO struct {
	client *minio.Client
	bucket string
}

func NewMinIO(ctx context.Context, cfg MinIOConfig) (*MinIO, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &MinIO{client: client, bucket: cfg.Bucket}, nil
}

func (s *MinIO) Name() string { return "minio" }

func docObject(id string) string { return minioDocPrefix + id + ".json" }

func loanMarker(loanID, id string) string { return minioLoanPrefix + loanID + "/" + id }

func (s *MinIO) Put(ctx context.Context, rec document.Record) error {
	data, err := json.Marshal(rec.ForRemote())
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	previous, err := s.Get(ctx, rec.ID)
	if err != nil && !errors.Is(err, document.ErrNotFound) {
		return err
	}

	_, err = s.client.PutObject(ctx, s.bucket, docObject(rec.ID), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("save document %s: %w", rec.ID, err)
	}

	if previous.ID != "" && previous.LoanID != rec.LoanID && !previous.IsOrphaned() {
		if err := s.client.RemoveObject(ctx, s.bucket, loanMarker(previous.LoanID, rec.ID), minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("remove loan marker %s: %w", rec.ID, err)
		}
	}
	if !rec.IsOrphaned() {
		_, err = s.client.PutObject(ctx, s.bucket, loanMarker(rec.LoanID, rec.ID), bytes.NewReader(nil), 0,
			minio.PutObjectOptions{})
		if err != nil {
			return fmt.Errorf("save loan marker %s: %w", rec.ID, err)
		}
	}
	return nil
}

func (s *MinIO) Get(ctx context.Context, id string) (document.Record, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, docObject(id), minio.GetObjectOptions{})
	if err != nil {
		return document.Record{}, mapMinIOError(id, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return document.Record{}, mapMinIOError(id, err)
	}
	var rec document.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return document.Record{}, fmt.Errorf("unmarshal document %s: %w", id, err)
	}
	return rec, nil
}

func (s *MinIO) Delete(ctx context.Context, id string) error {
	rec, err := s.Get(ctx, id)
	if err != nil && !errors.Is(err, document.ErrNotFound) {
		return err
	}
	if rec.ID != "" && !rec.IsOrphaned() {
		if err := s.client.RemoveObject(ctx, s.bucket, loanMarker(rec.LoanID, id), minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("remove loan marker %s: %w", id, err)
		}
	}
	if err := s.client.RemoveObject(ctx, s.bucket, docObject(id), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	return nil
}

func (s *MinIO) ListIDs(ctx context.Context, loanID string) ([]string, error) {
	prefix := minioLoanPrefix + loanID + "/"
	ids := []string{}
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list loan documents %s: %w", loanID, obj.Err)
		}
		ids = append(ids, strings.TrimPrefix(obj.Key, prefix))
	}
	return sortedIDs(ids), nil
}

func (s *MinIO) List(ctx context.Context, loanID string) ([]document.Record, error) {
	ids, err := s.ListIDs(ctx, loanID)
	if err != nil {
		return nil, err
	}
	out := make([]document.Record, 0, len(ids))
	for _, id := range ids {
		rec, err := s.Get(ctx, id)
		if errors.Is(err, document.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *MinIO) Clear(ctx context.Context) (int, error) {
	cleared := 0
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return cleared, fmt.Errorf("list objects: %w", obj.Err)
		}
		if !strings.HasPrefix(obj.Key, minioDocPrefix) && !strings.HasPrefix(obj.Key, minioLoanPrefix) {
			continue
		}
		if err := s.client.RemoveObject(ctx, s.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return cleared, fmt.Errorf("remove %s: %w", obj.Key, err)
		}
		if strings.HasPrefix(obj.Key, minioDocPrefix) {
			cleared++
		}
	}
	return cleared, nil
}

func (s *MinIO) Ping(ctx context.Context) error {
	if _, err := s.client.BucketExists(ctx, s.bucket); err != nil {
		return fmt.Errorf("ping minio: %w", err)
	}
	return nil
}

func (s *MinIO) Close() error { return nil }

func mapMinIOError(id string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return document.ErrNotFound
	}
	return fmt.Errorf("get document %s: %w", id, err)
}
