package search

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxLoanDocuments = "loan_documents"

// Meili implements Index via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the index.
// An unreachable server is not an error: the health loop picks it up later.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxLoanDocuments,
		PrimaryKey: "id",
	}); err != nil {
		log.Printf("search: create index %s (may already exist): %v", idxLoanDocuments, err)
	}

	index := m.client.Index(idxLoanDocuments)
	filterable := []interface{}{"loanId", "docType"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("search: update filterable attrs for %s: %v", idxLoanDocuments, err)
	}
	searchable := []string{"text", "filename", "docType"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("search: update searchable attrs for %s: %v", idxLoanDocuments, err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search returns the best matches within one loan.
func (m *Meili) Search(loanID, text string, limit int) ([]Hit, error) {
	if !m.healthy.Load() {
		return nil, fmt.Errorf("meilisearch unhealthy")
	}
	if limit <= 0 {
		limit = 5
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{{
			IndexUID:         idxLoanDocuments,
			Query:            text,
			Limit:            int64(limit),
			Filter:           fmt.Sprintf("loanId = %q", loanID),
			ShowRankingScore: true,
		}},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch search: %w", err)
	}

	var hits []Hit
	for _, sr := range resp.Results {
		for _, hit := range sr.Hits {
			hits = append(hits, hitToResult(hit))
		}
	}
	return hits, nil
}

func hitToResult(hit meili.Hit) Hit {
	return Hit{
		DocumentID: decodeString(hit, "id"),
		LoanID:     decodeString(hit, "loanId"),
		DocType:    decodeString(hit, "docType"),
		Filename:   decodeString(hit, "filename"),
		Text:       decodeString(hit, "text"),
		Score:      decodeFloat(hit, "_rankingScore"),
	}
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return ""
}

func decodeFloat(hit meili.Hit, key string) float64 {
	raw, ok := hit[key]
	if !ok {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	return 0
}

// Upsert adds or replaces documents in the index.
func (m *Meili) Upsert(records []IndexRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxLoanDocuments).AddDocuments(records, nil)
	return err
}

// Delete removes a document from the index.
func (m *Meili) Delete(id string) error {
	_, err := m.client.Index(idxLoanDocuments).DeleteDocument(id, nil)
	return err
}
