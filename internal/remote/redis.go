package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"loandocs/api/internal/document"
)

const (
	redisDocPrefix  = "doc:"
	redisDocList    = "document_list"
	redisLoanPrefix = "docs_by_loan:"
)

// Redis keeps each record as JSON under doc:<id>, with a global id set and
// one id set per loan.
type Redis struct {
	client *redis.Client
}

func NewRedis(redisURL string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Redis{client: client}, nil
}

func NewRedisWithClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (s *Redis) Name() string { return "redis" }

func docKey(id string) string { return redisDocPrefix + id }

func loanKey(loanID string) string { return redisLoanPrefix + loanID }

func (s *Redis) Put(ctx context.Context, rec document.Record) error {
	data, err := json.Marshal(rec.ForRemote())
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	previous, err := s.Get(ctx, rec.ID)
	if err != nil && !errors.Is(err, document.ErrNotFound) {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, docKey(rec.ID), data, 0)
	pipe.SAdd(ctx, redisDocList, rec.ID)
	if previous.ID != "" && previous.LoanID != rec.LoanID && !previous.IsOrphaned() {
		pipe.SRem(ctx, loanKey(previous.LoanID), rec.ID)
	}
	if !rec.IsOrphaned() {
		pipe.SAdd(ctx, loanKey(rec.LoanID), rec.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save document %s: %w", rec.ID, err)
	}
	return nil
}

func (s *Redis) Get(ctx context.Context, id string) (document.Record, error) {
	raw, err := s.client.Get(ctx, docKey(id)).Result()
	if err == redis.Nil {
		return document.Record{}, document.ErrNotFound
	}
	if err != nil {
		return document.Record{}, fmt.Errorf("get document %s: %w", id, err)
	}

	var rec document.Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return document.Record{}, fmt.Errorf("unmarshal document %s: %w", id, err)
	}
	return rec, nil
}

func (s *Redis) Delete(ctx context.Context, id string) error {
	rec, err := s.Get(ctx, id)
	if err != nil && !errors.Is(err, document.ErrNotFound) {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, docKey(id))
	pipe.SRem(ctx, redisDocList, id)
	if rec.ID != "" && !rec.IsOrphaned() {
		pipe.SRem(ctx, loanKey(rec.LoanID), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	return nil
}

func (s *Redis) ListIDs(ctx context.Context, loanID string) ([]string, error) {
	ids, err := s.client.SMembers(ctx, loanKey(loanID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list loan documents %s: %w", loanID, err)
	}
	return sortedIDs(ids), nil
}

// List skips set members whose document key has gone.
func (s *Redis) List(ctx context.Context, loanID string) ([]document.Record, error) {
	ids, err := s.ListIDs(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = docKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load loan documents %s: %w", loanID, err)
	}

	out := make([]document.Record, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var rec document.Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal document %s: %w", ids[i], err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Redis) Clear(ctx context.Context) (int, error) {
	ids, err := s.client.SMembers(ctx, redisDocList).Result()
	if err != nil {
		return 0, fmt.Errorf("list documents: %w", err)
	}

	keys := []string{redisDocList}
	for _, id := range ids {
		keys = append(keys, docKey(id))
	}

	var cursor uint64
	for {
		batch, next, err := s.client.Scan(ctx, cursor, redisLoanPrefix+"*", 100).Result()
		if err != nil {
			return 0, fmt.Errorf("scan loan sets: %w", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return 0, fmt.Errorf("clear documents: %w", err)
	}
	return len(ids), nil
}

func (s *Redis) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Redis) Close() error {
	return s.client.Close()
}
