package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"loandocs/api/internal/document"
)

type DedupResult struct {
	LoanID  string            `json:"loanId"`
	Removed []document.Record `json:"removed"`
}

// Deduplicate keeps only the newest record of every doc type for a loan.
// It works from a single snapshot, so records written after the snapshot are
// left alone, and running it again on a clean loan removes nothing.
func (s *Service) Deduplicate(ctx context.Context, loanID string) (DedupResult, error) {
	result := DedupResult{LoanID: loanID, Removed: []document.Record{}}
	if document.IsUnassignedLoanID(loanID) {
		return result, nil
	}

	snapshot, err := s.local.ListByLoan(ctx, loanID)
	if err != nil {
		return result, fmt.Errorf("list loan %s: %w", loanID, err)
	}

	for docType, group := range document.GroupByType(snapshot) {
		if len(group) < 2 {
			continue
		}
		for _, stale := range group[1:] {
			if _, err := s.local.Delete(ctx, stale.ID); err != nil {
				if errors.Is(err, document.ErrNotFound) {
					continue
				}
				return result, fmt.Errorf("delete duplicate %s: %w", stale.ID, err)
			}
			log.Printf("dedupe: loan %s %s removed %s (kept %s)", loanID, docType, stale.ID, group[0].ID)
			s.scheduleRemoteDelete(stale)
			s.search.DeleteDocument(stale.ID)
			result.Removed = append(result.Removed, stale.Summary())
		}
	}
	return result, nil
}
