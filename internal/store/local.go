package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ncruces/go-sqlite3"

	"loandocs/api/internal/document"
)

const documentColumns = `id, loan_id, doc_type, category, filename, file_type, file_size, content,
	status, date_uploaded, assigned_to, notes, checksum, extra, sync_state`

// orphanFilter mirrors document.IsUnassignedLoanID for SQL filters.
const orphanFilter = `TRIM(loan_id) IN ('', 'unassigned', 'undefined', 'null')`

// Local is the fast local cache. It is the source of truth for what the
// user sees; the remote tier converges to it.
type Local struct {
	db         *sql.DB
	quotaBytes int64
}

type Tombstone struct {
	ID        string
	LoanID    string
	DeletedAt time.Time
}

func NewLocal(db *sql.DB, quotaBytes int64) *Local {
	return &Local{db: db, quotaBytes: quotaBytes}
}

func (s *Local) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Local) Close() error {
	return s.db.Close()
}

// Insert stores a new record, enforcing the content quota.
func (s *Local) Insert(ctx context.Context, rec document.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.checkQuota(ctx, tx, int64(len(rec.Content))); err != nil {
		return err
	}
	if err := insertRecord(ctx, tx, rec); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapWriteError(fmt.Errorf("commit insert: %w", err))
	}
	return nil
}

// InsertIfAbsent inserts rec unless a record with the same ID exists.
// It reports whether a row was written.
func (s *Local) InsertIfAbsent(ctx context.Context, rec document.Record) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin insert tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE id = ?`, rec.ID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check document %s: %w", rec.ID, err)
	}
	if exists > 0 {
		return false, nil
	}
	if err := s.checkQuota(ctx, tx, int64(len(rec.Content))); err != nil {
		return false, err
	}

	res, err := tx.ExecContext(ctx, `INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`, recordArgs(rec)...)
	if err != nil {
		return false, mapWriteError(fmt.Errorf("insert document %s: %w", rec.ID, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert document %s: %w", rec.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return false, mapWriteError(fmt.Errorf("commit insert: %w", err))
	}
	return n > 0, nil
}

func (s *Local) Get(ctx context.Context, id string) (document.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return document.Record{}, document.ErrNotFound
	}
	if err != nil {
		return document.Record{}, fmt.Errorf("get document %s: %w", id, err)
	}
	return rec, nil
}

// ListByLoan returns every record of a loan, oldest first.
func (s *Local) ListByLoan(ctx context.Context, loanID string) ([]document.Record, error) {
	return s.query(ctx, `SELECT `+documentColumns+` FROM documents
		WHERE loan_id = ? ORDER BY date_uploaded ASC, id ASC`, loanID)
}

func (s *Local) ListByLoanAndType(ctx context.Context, loanID, docType string) ([]document.Record, error) {
	return s.query(ctx, `SELECT `+documentColumns+` FROM documents
		WHERE loan_id = ? AND doc_type = ? ORDER BY date_uploaded ASC, id ASC`, loanID, docType)
}

func (s *Local) ListOrphaned(ctx context.Context) ([]document.Record, error) {
	return s.query(ctx, `SELECT `+documentColumns+` FROM documents
		WHERE `+orphanFilter+` ORDER BY date_uploaded ASC, id ASC`)
}

// ListPage returns up to limit records ordered by id, starting after cursor.
// The returned cursor is empty on the last page.
func (s *Local) ListPage(ctx context.Context, limit int, cursor string) ([]document.Record, string, error) {
	if limit <= 0 {
		limit = 50
	}
	records, err := s.query(ctx, `SELECT `+documentColumns+` FROM documents
		WHERE id > ? ORDER BY id ASC LIMIT ?`, cursor, limit+1)
	if err != nil {
		return nil, "", err
	}
	next := ""
	if len(records) > limit {
		records = records[:limit]
		next = records[limit-1].ID
	}
	return records, next, nil
}

// LoanIDs lists every loan that owns at least one non-orphaned record.
func (s *Local) LoanIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT loan_id FROM documents
		WHERE NOT (`+orphanFilter+`) ORDER BY loan_id`)
	if err != nil {
		return nil, fmt.Errorf("list loan ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan loan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Local) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

// UsageBytes is the total size of stored content, which is what the quota bounds.
func (s *Local) UsageBytes(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(LENGTH(content)), 0) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sum document sizes: %w", err)
	}
	return n, nil
}

// Update rewrites the mutable fields of an existing record and marks it unsynced.
func (s *Local) Update(ctx context.Context, rec document.Record) error {
	extra, err := encodeExtra(rec.Extra)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE documents
		SET loan_id = ?, status = ?, assigned_to = ?, notes = ?, extra = ?, sync_state = ?, sync_gen = sync_gen + 1
		WHERE id = ?`,
		rec.LoanID, string(rec.Status), rec.AssignedTo, rec.Notes, extra, string(document.SyncUnsynced), rec.ID)
	if err != nil {
		return mapWriteError(fmt.Errorf("update document %s: %w", rec.ID, err))
	}
	return requireAffected(res, rec.ID)
}

// AssignLoan moves the given records to loanID in one transaction.
func (s *Local) AssignLoan(ctx context.Context, ids []string, loanID string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin assign tx: %w", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `UPDATE documents SET loan_id = ?, sync_state = ?, sync_gen = sync_gen + 1 WHERE id = ?`,
			loanID, string(document.SyncUnsynced), id); err != nil {
			return mapWriteError(fmt.Errorf("assign document %s: %w", id, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit assign: %w", err)
	}
	return nil
}

// MarkPending moves a record to pending and returns the sync generation the
// push now in flight owns.
func (s *Local) MarkPending(ctx context.Context, id string) (int64, error) {
	var gen int64
	err := s.db.QueryRowContext(ctx, `UPDATE documents SET sync_state = ?, sync_gen = sync_gen + 1
		WHERE id = ? RETURNING sync_gen`, string(document.SyncPending), id).Scan(&gen)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, document.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("mark %s pending: %w", id, err)
	}
	return gen, nil
}

// SettleSync ends the push that owns gen. It reports false when the record
// changed or another push started since, leaving the newer state alone.
func (s *Local) SettleSync(ctx context.Context, id string, gen int64, to document.SyncState) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE documents SET sync_state = ?
		WHERE id = ? AND sync_state = ? AND sync_gen = ?`,
		string(to), id, string(document.SyncPending), gen)
	if err != nil {
		return false, fmt.Errorf("settle sync %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("settle sync %s: %w", id, err)
	}
	return n > 0, nil
}

// InvalidateSync marks a record unsynced and fences off every push in flight.
func (s *Local) InvalidateSync(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE documents SET sync_state = ?, sync_gen = sync_gen + 1 WHERE id = ?`,
		string(document.SyncUnsynced), id)
	if err != nil {
		return fmt.Errorf("invalidate sync %s: %w", id, err)
	}
	return nil
}

// Delete removes a record and returns what was removed.
func (s *Local) Delete(ctx context.Context, id string) (document.Record, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return document.Record{}, err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return document.Record{}, fmt.Errorf("delete document %s: %w", id, err)
	}
	if err := requireAffected(res, id); err != nil {
		return document.Record{}, err
	}
	return rec, nil
}

// Clear removes every record and tombstone, returning the removed record ids.
func (s *Local) Clear(ctx context.Context) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin clear tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM documents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan document id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("list documents: %w", err)
	}
	rows.Close()

	if _, err := tx.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return nil, fmt.Errorf("clear documents: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tombstones`); err != nil {
		return nil, fmt.Errorf("clear tombstones: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit clear: %w", err)
	}
	return ids, nil
}

// SearchContent is the fallback text search used while the index is down.
func (s *Local) SearchContent(ctx context.Context, loanID, text string, limit int) ([]document.Record, error) {
	if limit <= 0 {
		limit = 5
	}
	pattern := "%" + escapeLike(strings.ToLower(strings.TrimSpace(text))) + "%"
	return s.query(ctx, `SELECT `+documentColumns+` FROM documents
		WHERE loan_id = ?
		  AND (LOWER(filename) LIKE ? ESCAPE '\' OR LOWER(doc_type) LIKE ? ESCAPE '\' OR LOWER(content) LIKE ? ESCAPE '\')
		ORDER BY date_uploaded DESC, id DESC
		LIMIT ?`, loanID, pattern, pattern, pattern, limit)
}

func (s *Local) AddTombstone(ctx context.Context, id, loanID string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO tombstones (id, loan_id, deleted_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET loan_id = excluded.loan_id`, id, loanID, time.Now().UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("add tombstone %s: %w", id, err)
	}
	return nil
}

func (s *Local) RemoveTombstone(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tombstones WHERE id = ?`, id); err != nil {
		return fmt.Errorf("remove tombstone %s: %w", id, err)
	}
	return nil
}

// Tombstones lists pending remote deletes for a loan, or for every loan when loanID is empty.
func (s *Local) Tombstones(ctx context.Context, loanID string) ([]Tombstone, error) {
	query := `SELECT id, loan_id, deleted_at FROM tombstones`
	var args []any
	if loanID != "" {
		query += ` WHERE loan_id = ?`
		args = append(args, loanID)
	}
	query += ` ORDER BY deleted_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tombstones: %w", err)
	}
	defer rows.Close()

	var out []Tombstone
	for rows.Next() {
		var t Tombstone
		var deletedAt int64
		if err := rows.Scan(&t.ID, &t.LoanID, &deletedAt); err != nil {
			return nil, fmt.Errorf("scan tombstone: %w", err)
		}
		t.DeletedAt = time.Unix(0, deletedAt).UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetMeta returns the stored value for key, or ok=false when unset.
func (s *Local) GetMeta(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get meta %s: %w", key, err)
	}
	return value, true, nil
}

func (s *Local) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set meta %s: %w", key, err)
	}
	return nil
}

// CheckQuota reports ErrStorageQuotaExceeded when adding delta bytes of
// content would overflow the quota. delta is negative for a shrinking replacement.
func (s *Local) CheckQuota(ctx context.Context, delta int64) error {
	return s.checkQuota(ctx, s.db, delta)
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Local) checkQuota(ctx context.Context, q rowQuerier, incoming int64) error {
	if s.quotaBytes <= 0 {
		return nil
	}
	var used int64
	if err := q.QueryRowContext(ctx, `SELECT COALESCE(SUM(LENGTH(content)), 0) FROM documents`).Scan(&used); err != nil {
		return fmt.Errorf("sum document sizes: %w", err)
	}
	if used+incoming > s.quotaBytes {
		return fmt.Errorf("%w: %d of %d bytes used, %d requested", document.ErrStorageQuotaExceeded, used, s.quotaBytes, incoming)
	}
	return nil
}

func (s *Local) query(ctx context.Context, query string, args ...any) ([]document.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var out []document.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (document.Record, error) {
	var (
		rec                         document.Record
		category, status, syncState string
		extra                       string
		dateUploaded                int64
	)
	err := row.Scan(&rec.ID, &rec.LoanID, &rec.DocType, &category, &rec.Filename, &rec.FileType,
		&rec.FileSize, &rec.Content, &status, &dateUploaded, &rec.AssignedTo, &rec.Notes,
		&rec.Checksum, &extra, &syncState)
	if err != nil {
		return document.Record{}, err
	}
	rec.Category = document.Category(category)
	rec.Status = document.Status(status)
	rec.SyncState = document.SyncState(syncState)
	rec.DateUploaded = time.Unix(0, dateUploaded).UTC()
	if extra != "" && extra != "{}" {
		if err := json.Unmarshal([]byte(extra), &rec.Extra); err != nil {
			return document.Record{}, fmt.Errorf("decode extra for %s: %w", rec.ID, err)
		}
	}
	return rec, nil
}

func insertRecord(ctx context.Context, tx *sql.Tx, rec document.Record) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, recordArgs(rec)...)
	if err != nil {
		return mapWriteError(fmt.Errorf("insert document %s: %w", rec.ID, err))
	}
	return nil
}

func recordArgs(rec document.Record) []any {
	extra, err := encodeExtra(rec.Extra)
	if err != nil {
		extra = "{}"
	}
	state := rec.SyncState
	if state == "" {
		state = document.SyncUnsynced
	}
	status := rec.Status
	if status == "" {
		status = document.StatusPending
	}
	return []any{
		rec.ID, rec.LoanID, rec.DocType, string(rec.Category), rec.Filename, rec.FileType,
		rec.FileSize, rec.Content, string(status), rec.DateUploaded.UTC().UnixNano(),
		rec.AssignedTo, rec.Notes, rec.Checksum, extra, string(state),
	}
}

func encodeExtra(extra map[string]string) (string, error) {
	if len(extra) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(extra)
	if err != nil {
		return "", fmt.Errorf("encode extra: %w", err)
	}
	return string(b), nil
}

func requireAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for %s: %w", id, err)
	}
	if n == 0 {
		return document.ErrNotFound
	}
	return nil
}

// mapWriteError turns a full database into the quota error callers already handle.
func mapWriteError(err error) error {
	if errors.Is(err, sqlite3.FULL) {
		return fmt.Errorf("%w: %v", document.ErrStorageQuotaExceeded, err)
	}
	return err
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
