package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"time"

	"loandocs/api/internal/document"
)

const legacyMigrationKey = "legacy_migration_done"

type SyncStatus struct {
	LoanID           string   `json:"loanId"`
	LocalCount       int      `json:"localCount"`
	RemoteCount      int      `json:"remoteCount"`
	MissingOnRemote  []string `json:"missingOnRemote"`
	ExtraOnRemote    []string `json:"extraOnRemote"`
	InSyncPercentage float64  `json:"inSyncPercentage"`
}

type PushFailure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// PushResult counts a pass of PushLocalToRemote. Errors covers records the
// remote store still lacks; RepushErrors covers local changes to records the
// remote store already holds.
type PushResult struct {
	LoanID       string        `json:"loanId"`
	Migrated     int           `json:"migrated"`
	Errors       []PushFailure `json:"errors"`
	RepushErrors []PushFailure `json:"repushErrors"`
}

// MigrationResult counts a legacy migration. Quarantined entries could not
// be decoded; they are reported but do not block the completion marker.
type MigrationResult struct {
	Migrated    int      `json:"migrated"`
	Skipped     int      `json:"skipped"`
	Errors      []string `json:"errors"`
	Quarantined []string `json:"quarantined"`
	AlreadyDone bool     `json:"alreadyDone"`
}

// ComputeDrift compares the local and remote id sets of a loan. It never writes.
func (s *Service) ComputeDrift(ctx context.Context, loanID string) (SyncStatus, error) {
	local, err := s.local.ListByLoan(ctx, loanID)
	if err != nil {
		return SyncStatus{}, fmt.Errorf("list local %s: %w", loanID, err)
	}
	remoteIDs, err := s.remote.ListIDs(ctx, loanID)
	if err != nil {
		return SyncStatus{}, fmt.Errorf("%w: list remote %s: %v", document.ErrRemoteUnreachable, loanID, err)
	}

	localIDs := make([]string, 0, len(local))
	for _, rec := range local {
		localIDs = append(localIDs, rec.ID)
	}
	return driftBetween(loanID, localIDs, remoteIDs), nil
}

func driftBetween(loanID string, localIDs, remoteIDs []string) SyncStatus {
	localSet := make(map[string]struct{}, len(localIDs))
	for _, id := range localIDs {
		localSet[id] = struct{}{}
	}
	remoteSet := make(map[string]struct{}, len(remoteIDs))
	for _, id := range remoteIDs {
		remoteSet[id] = struct{}{}
	}

	status := SyncStatus{
		LoanID:          loanID,
		LocalCount:      len(localSet),
		RemoteCount:     len(remoteSet),
		MissingOnRemote: []string{},
		ExtraOnRemote:   []string{},
	}
	shared := 0
	for id := range localSet {
		if _, ok := remoteSet[id]; ok {
			shared++
		} else {
			status.MissingOnRemote = append(status.MissingOnRemote, id)
		}
	}
	for id := range remoteSet {
		if _, ok := localSet[id]; !ok {
			status.ExtraOnRemote = append(status.ExtraOnRemote, id)
		}
	}
	sort.Strings(status.MissingOnRemote)
	sort.Strings(status.ExtraOnRemote)

	union := len(localSet) + len(status.ExtraOnRemote)
	if union == 0 {
		status.InSyncPercentage = 100
	} else {
		status.InSyncPercentage = float64(shared*100) / float64(union)
	}
	return status
}

// PushLocalToRemote writes every local record of a loan that the remote store
// lacks, plus records with local changes not yet pushed. Failures are collected
// per record; only an unreadable remote id list aborts the pass.
func (s *Service) PushLocalToRemote(ctx context.Context, loanID string) (PushResult, error) {
	result := PushResult{LoanID: loanID, Errors: []PushFailure{}, RepushErrors: []PushFailure{}}

	remoteIDs, err := s.remote.ListIDs(ctx, loanID)
	if err != nil {
		return result, fmt.Errorf("%w: list remote %s: %v", document.ErrRemoteUnreachable, loanID, err)
	}
	onRemote := make(map[string]struct{}, len(remoteIDs))
	for _, id := range remoteIDs {
		onRemote[id] = struct{}{}
	}

	local, err := s.local.ListByLoan(ctx, loanID)
	if err != nil {
		return result, fmt.Errorf("list local %s: %w", loanID, err)
	}
	for _, rec := range local {
		_, present := onRemote[rec.ID]
		if present && rec.SyncState == document.SyncSynced {
			continue
		}
		gen, err := s.local.MarkPending(ctx, rec.ID)
		if errors.Is(err, document.ErrNotFound) {
			continue
		}
		if err == nil {
			err = s.push(ctx, rec.ID, gen)
		}
		if err != nil {
			log.Printf("sync: push %s: %v", rec.ID, err)
			failure := PushFailure{ID: rec.ID, Error: err.Error()}
			if present {
				result.RepushErrors = append(result.RepushErrors, failure)
			} else {
				result.Errors = append(result.Errors, failure)
			}
			continue
		}
		result.Migrated++
	}
	return result, nil
}

// MigrateFromLegacyStore copies records from the legacy key-value store into
// the local store once. The id is the dedup key, so re-running after a
// partial failure only picks up what is missing.
func (s *Service) MigrateFromLegacyStore(ctx context.Context) (MigrationResult, error) {
	result := MigrationResult{Errors: []string{}, Quarantined: []string{}}
	if _, done, err := s.local.GetMeta(ctx, legacyMigrationKey); err != nil {
		return result, fmt.Errorf("read migration marker: %w", err)
	} else if done {
		result.AlreadyDone = true
		return result, nil
	}
	if s.legacy == nil {
		return result, nil
	}

	items, err := s.legacy.ReadAll(ctx)
	if err != nil {
		return result, fmt.Errorf("read legacy store: %w", err)
	}
	for _, item := range items {
		if item.Err != nil {
			log.Printf("migrate: quarantined legacy entry %s: %v", item.Key, item.Err)
			result.Quarantined = append(result.Quarantined, fmt.Sprintf("%s: %v", item.Key, item.Err))
			continue
		}
		rec := item.Record
		rec.SyncState = document.SyncUnsynced
		if rec.DateUploaded.IsZero() {
			rec.DateUploaded = s.now().UTC()
		}
		if rec.Status == "" {
			rec.Status = document.StatusPending
		}
		if rec.Category == "" {
			rec.Category = document.CategoryMisc
			if entry, ok := document.LookupType(rec.DocType); ok {
				rec.Category = entry.Category
			}
		}

		inserted, err := s.local.InsertIfAbsent(ctx, rec)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", rec.ID, err))
			continue
		}
		if !inserted {
			result.Skipped++
			continue
		}
		result.Migrated++
		s.schedulePush(rec)
		s.search.IndexDocument(rec)
	}

	if len(result.Errors) == 0 {
		stamp := strconv.FormatInt(s.now().UTC().Unix(), 10)
		if err := s.local.SetMeta(ctx, legacyMigrationKey, stamp); err != nil {
			return result, fmt.Errorf("write migration marker: %w", err)
		}
	}
	log.Printf("migrate: legacy store migrated=%d skipped=%d quarantined=%d errors=%d",
		result.Migrated, result.Skipped, len(result.Quarantined), len(result.Errors))
	return result, nil
}

func (s *Service) legacyMigratedAt(ctx context.Context) (time.Time, bool) {
	v, ok, err := s.local.GetMeta(ctx, legacyMigrationKey)
	if err != nil || !ok {
		return time.Time{}, false
	}
	secs, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, true
	}
	return time.Unix(secs, 0).UTC(), true
}
