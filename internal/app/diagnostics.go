package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"loandocs/api/internal/document"
	"loandocs/api/internal/remote"
)

type DiagnosticsReport struct {
	LoanID            string      `json:"loanId"`
	StorageMode       remote.Mode `json:"storageMode"`
	RemoteBackend     string      `json:"remoteBackend"`
	DocumentCount     int         `json:"documentCount"`
	LocalBytes        int64       `json:"localBytes"`
	SyncStatus        *SyncStatus `json:"syncStatus,omitempty"`
	SyncError         string      `json:"syncError,omitempty"`
	UnassociatedCount int         `json:"unassociatedCount"`
	PendingTombstones int         `json:"pendingTombstones"`
	IndexHealthy      bool        `json:"indexHealthy"`
	LegacyMigrated    bool        `json:"legacyMigrated"`
	LegacyMigratedAt  *time.Time  `json:"legacyMigratedAt,omitempty"`
}

type ClearResult struct {
	LocalRemoved  int    `json:"localRemoved"`
	RemoteRemoved int    `json:"remoteRemoved"`
	RemoteError   string `json:"remoteError,omitempty"`
}

type ReconcileResult struct {
	LoanID            string            `json:"loanId"`
	Removed           []document.Record `json:"removed"`
	TombstonesCleared int               `json:"tombstonesCleared"`
	TombstonesPending int               `json:"tombstonesPending"`
}

// RepairOrphaned assigns loanID to the most recent batch of orphaned
// documents: every orphan uploaded within the batch window of the newest one.
func (s *Service) RepairOrphaned(ctx context.Context, loanID string) ([]document.Record, error) {
	loanID = strings.TrimSpace(loanID)
	if document.IsUnassignedLoanID(loanID) {
		return nil, validationError("loanId is required")
	}

	orphans, err := s.local.ListOrphaned(ctx)
	if err != nil {
		return nil, fmt.Errorf("list orphans: %w", err)
	}
	batch := latestBatch(orphans, s.cfg.OrphanBatchWindow)
	if len(batch) == 0 {
		return []document.Record{}, nil
	}

	ids := make([]string, 0, len(batch))
	for _, rec := range batch {
		ids = append(ids, rec.ID)
	}
	if err := s.local.AssignLoan(ctx, ids, loanID); err != nil {
		return nil, fmt.Errorf("assign orphans to %s: %w", loanID, err)
	}

	repaired := make([]document.Record, 0, len(batch))
	for _, rec := range batch {
		rec.LoanID = loanID
		rec.SyncState = document.SyncUnsynced
		s.schedulePush(rec)
		s.search.IndexDocument(rec)
		repaired = append(repaired, rec.Summary())
	}
	log.Printf("repair: assigned %d orphaned documents to loan %s", len(repaired), loanID)
	return repaired, nil
}

func latestBatch(orphans []document.Record, window time.Duration) []document.Record {
	if len(orphans) == 0 || window <= 0 {
		return orphans
	}
	newest := orphans[0].DateUploaded
	for _, rec := range orphans[1:] {
		if rec.DateUploaded.After(newest) {
			newest = rec.DateUploaded
		}
	}
	cutoff := newest.Add(-window)
	var out []document.Record
	for _, rec := range orphans {
		if !rec.DateUploaded.Before(cutoff) {
			out = append(out, rec)
		}
	}
	return out
}

// Diagnostics gathers counts and sync state for operators. It never writes;
// an unreachable remote store is reported in SyncError rather than failing.
func (s *Service) Diagnostics(ctx context.Context, loanID string) (DiagnosticsReport, error) {
	report := DiagnosticsReport{
		LoanID:        loanID,
		StorageMode:   s.mode,
		RemoteBackend: s.remote.Name(),
		IndexHealthy:  s.search.Healthy(),
	}

	var err error
	if report.DocumentCount, err = s.local.Count(ctx); err != nil {
		return report, fmt.Errorf("count documents: %w", err)
	}
	if report.LocalBytes, err = s.local.UsageBytes(ctx); err != nil {
		return report, fmt.Errorf("measure local usage: %w", err)
	}
	orphans, err := s.local.ListOrphaned(ctx)
	if err != nil {
		return report, fmt.Errorf("list orphans: %w", err)
	}
	report.UnassociatedCount = len(orphans)
	stones, err := s.local.Tombstones(ctx, "")
	if err != nil {
		return report, fmt.Errorf("list tombstones: %w", err)
	}
	report.PendingTombstones = len(stones)

	if at, ok := s.legacyMigratedAt(ctx); ok {
		report.LegacyMigrated = true
		if !at.IsZero() {
			report.LegacyMigratedAt = &at
		}
	}

	if !document.IsUnassignedLoanID(loanID) {
		status, err := s.ComputeDrift(ctx, loanID)
		if err != nil {
			report.SyncError = err.Error()
		} else {
			report.SyncStatus = &status
		}
	}
	return report, nil
}

// ClearAllDocuments wipes the local store and, when reachable, the remote store.
func (s *Service) ClearAllDocuments(ctx context.Context) (ClearResult, error) {
	ids, err := s.local.Clear(ctx)
	if err != nil {
		return ClearResult{}, fmt.Errorf("clear local store: %w", err)
	}
	result := ClearResult{LocalRemoved: len(ids)}
	for _, id := range ids {
		s.search.DeleteDocument(id)
	}

	if s.mode != remote.ModeRemote {
		result.RemoteError = document.ErrRemoteUnreachable.Error()
		return result, nil
	}
	n, err := s.remote.Clear(ctx)
	if err != nil {
		log.Printf("remote: clear: %v", err)
		result.RemoteError = err.Error()
		return result, nil
	}
	result.RemoteRemoved = n
	log.Printf("storage: cleared local=%d remote=%d", result.LocalRemoved, result.RemoteRemoved)
	return result, nil
}

// Reconcile restores the slot invariant for a loan and retries remote deletes
// that previously failed. It is safe to call on any schedule.
func (s *Service) Reconcile(ctx context.Context, loanID string) (ReconcileResult, error) {
	result := ReconcileResult{LoanID: loanID, Removed: []document.Record{}}

	dedup, err := s.Deduplicate(ctx, loanID)
	if err != nil {
		return result, err
	}
	result.Removed = dedup.Removed

	cleared, pending, err := s.retryTombstones(ctx, loanID)
	if err != nil {
		return result, err
	}
	result.TombstonesCleared = cleared
	result.TombstonesPending = pending
	return result, nil
}

// retryTombstones re-issues remote deletes for tombstoned ids. An empty
// loanID retries every tombstone.
func (s *Service) retryTombstones(ctx context.Context, loanID string) (cleared, pending int, err error) {
	stones, err := s.local.Tombstones(ctx, loanID)
	if err != nil {
		return 0, 0, fmt.Errorf("list tombstones: %w", err)
	}
	if s.mode != remote.ModeRemote {
		return 0, len(stones), nil
	}
	for _, stone := range stones {
		if err := s.remote.Delete(ctx, stone.ID); err != nil {
			if !errors.Is(err, document.ErrRemoteUnreachable) {
				log.Printf("reconcile: delete %s: %v", stone.ID, err)
			}
			pending++
			continue
		}
		if err := s.local.RemoveTombstone(ctx, stone.ID); err != nil {
			log.Printf("reconcile: clear tombstone %s: %v", stone.ID, err)
			pending++
			continue
		}
		cleared++
	}
	return cleared, pending, nil
}
