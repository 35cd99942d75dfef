package search

import (
	"context"
	"fmt"
	"log"
	"sync"

	"loandocs/api/internal/document"
)

const defaultTopK = 5

// Service is the facade that tries the index first and falls back to the local cache.
type Service struct {
	index    Index
	source   Source
	fallback Fallback
	wg       sync.WaitGroup
}

// NewService creates a search service. index may be nil if Meilisearch is not configured.
func NewService(index Index, source Source, fallback Fallback) *Service {
	return &Service{index: index, source: source, fallback: fallback}
}

func (s *Service) Healthy() bool {
	return s.index != nil && s.index.Healthy()
}

// IndexDocuments pushes every indexable document of a loan to the index.
func (s *Service) IndexDocuments(ctx context.Context, loanID string) (IndexResult, error) {
	records, err := s.source.ListByLoan(ctx, loanID)
	if err != nil {
		return IndexResult{}, fmt.Errorf("list loan documents: %w", err)
	}

	result := IndexResult{TotalCount: len(records)}
	batch := make([]IndexRecord, 0, len(records))
	for _, rec := range records {
		entry, ok := toIndexRecord(rec)
		if !ok {
			result.Skipped = append(result.Skipped, rec.ID)
			continue
		}
		batch = append(batch, entry)
	}

	if len(batch) == 0 {
		return result, nil
	}
	if !s.Healthy() {
		return result, ErrIndexUnavailable
	}
	if err := s.index.Upsert(batch); err != nil {
		return result, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	result.IndexedCount = len(batch)
	return result, nil
}

// QueryContext finds the best matching documents of a loan and renders them
// as a context block. topK <= 0 means the default of 5.
func (s *Service) QueryContext(ctx context.Context, loanID, text string, topK int) (QueryResult, error) {
	if topK <= 0 {
		topK = defaultTopK
	}

	result := QueryResult{LoanID: loanID, Query: text}
	var hits []Hit
	if s.Healthy() {
		found, err := s.index.Search(loanID, text, topK)
		if err == nil {
			hits = found
			result.Source = "index"
		} else {
			log.Printf("search: meilisearch error, falling back to local cache: %v", err)
		}
	}

	if result.Source == "" {
		records, err := s.fallback.SearchContent(ctx, loanID, text, topK)
		if err != nil {
			return QueryResult{}, fmt.Errorf("search local cache: %w", err)
		}
		for _, rec := range records {
			hits = append(hits, Hit{
				DocumentID: rec.ID,
				LoanID:     rec.LoanID,
				DocType:    rec.DocType,
				Filename:   rec.Filename,
				Text:       ExtractText(rec),
			})
		}
		result.Source = "local"
	}

	if hits == nil {
		hits = []Hit{}
	}
	result.Matches = hits
	result.MatchCount = len(hits)
	result.ContextString = BuildContext(hits)
	return result, nil
}

// IndexDocument indexes one record (fire-and-forget).
func (s *Service) IndexDocument(rec document.Record) {
	if !s.Healthy() {
		return
	}
	entry, ok := toIndexRecord(rec)
	if !ok {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.index.Upsert([]IndexRecord{entry}); err != nil {
			log.Printf("search: index document %s: %v", rec.ID, err)
		}
	}()
}

// DeleteDocument removes a record from the index (fire-and-forget).
func (s *Service) DeleteDocument(id string) {
	if !s.Healthy() {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.index.Delete(id); err != nil {
			log.Printf("search: delete document %s: %v", id, err)
		}
	}()
}

// Wait blocks until queued index updates have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func toIndexRecord(rec document.Record) (IndexRecord, bool) {
	if rec.IsOrphaned() {
		return IndexRecord{}, false
	}
	text := ExtractText(rec)
	if text == "" {
		return IndexRecord{}, false
	}
	return IndexRecord{
		ID:       rec.ID,
		LoanID:   rec.LoanID,
		DocType:  rec.DocType,
		Filename: rec.Filename,
		Text:     text,
	}, true
}
