package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"loandocs/api/internal/document"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS remote_documents (
	id TEXT PRIMARY KEY,
	loan_id TEXT NOT NULL DEFAULT '',
	payload JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_remote_documents_loan ON remote_documents(loan_id);
`

// Postgres stores each record as a JSONB payload keyed by id.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects, pings and makes sure the documents table exists.
func OpenPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(20)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := NewPostgres(db)
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Name() string { return "postgres" }

func (s *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("ensure remote_documents: %w", err)
	}
	return nil
}

func (s *Postgres) Put(ctx context.Context, rec document.Record) error {
	payload, err := json.Marshal(rec.ForRemote())
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO remote_documents (id, loan_id, payload, updated_at)
		VALUES ($1, $2, $3::jsonb, now())
		ON CONFLICT (id) DO UPDATE
		SET loan_id = EXCLUDED.loan_id, payload = EXCLUDED.payload, updated_at = now()
	`, rec.ID, rec.LoanID, string(payload))
	if err != nil {
		return fmt.Errorf("save document %s: %w", rec.ID, err)
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, id string) (document.Record, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM remote_documents WHERE id = $1`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return document.Record{}, document.ErrNotFound
	}
	if err != nil {
		return document.Record{}, fmt.Errorf("get document %s: %w", id, err)
	}
	var rec document.Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return document.Record{}, fmt.Errorf("unmarshal document %s: %w", id, err)
	}
	return rec, nil
}

func (s *Postgres) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM remote_documents WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	return nil
}

func (s *Postgres) ListIDs(ctx context.Context, loanID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM remote_documents WHERE loan_id = $1 ORDER BY id`, loanID)
	if err != nil {
		return nil, fmt.Errorf("list loan documents %s: %w", loanID, err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan document id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Postgres) List(ctx context.Context, loanID string) ([]document.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM remote_documents WHERE loan_id = $1 ORDER BY id`, loanID)
	if err != nil {
		return nil, fmt.Errorf("load loan documents %s: %w", loanID, err)
	}
	defer rows.Close()

	var out []document.Record
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		var rec document.Record
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, fmt.Errorf("unmarshal document: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Postgres) Clear(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM remote_documents`)
	if err != nil {
		return 0, fmt.Errorf("clear documents: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear documents: %w", err)
	}
	return int(n), nil
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Postgres) Close() error {
	return s.db.Close()
}
