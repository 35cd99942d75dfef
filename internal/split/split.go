// Package split calls the external service that breaks an executed loan
// package into its individual documents.
package split

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"loandocs/api/internal/document"
	"loandocs/api/internal/util"
)

var ErrUnavailable = errors.New("split service not configured")

// Splitter breaks a package record into individual document records.
type Splitter interface {
	Split(ctx context.Context, pkg document.Record) ([]document.Record, error)
}

// PartialError reports a split that produced fewer documents than the
// package contains. The records that were produced are still returned.
type PartialError struct {
	Expected int
	Got      int
	Err      error
}

func (e *PartialError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("partial split: %d of %d documents: %v", e.Got, e.Expected, e.Err)
	}
	return fmt.Sprintf("partial split: %d of %d documents", e.Got, e.Expected)
}

func (e *PartialError) Unwrap() error { return e.Err }

type request struct {
	DocumentID string `json:"documentId"`
	LoanID     string `json:"loanId"`
	Filename   string `json:"filename"`
	Content    string `json:"content"`
}

type response struct {
	Expected  int             `json:"expected"`
	Documents []splitDocument `json:"documents"`
	Error     string          `json:"error,omitempty"`
}

type splitDocument struct {
	Filename string `json:"filename"`
	DocType  string `json:"docType"`
	Category string `json:"category"`
	Content  string `json:"content"`
}

// Client posts the package to SPLIT_SERVICE_URL and converts the answer into records.
type Client struct {
	url  string
	http *http.Client
	now  func() time.Time
}

func NewClient(url string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{url: strings.TrimSpace(url), http: httpClient, now: time.Now}
}

func (c *Client) Split(ctx context.Context, pkg document.Record) ([]document.Record, error) {
	if c.url == "" {
		return nil, ErrUnavailable
	}

	body, err := json.Marshal(request{
		DocumentID: pkg.ID,
		LoanID:     pkg.LoanID,
		Filename:   pkg.Filename,
		Content:    pkg.Content,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal split request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build split request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call split service: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 256<<20))
	if err != nil {
		return nil, fmt.Errorf("read split response: %w", err)
	}

	var out response
	if err := json.Unmarshal(raw, &out); err != nil {
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("split service returned %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("decode split response: %w", err)
	}

	now := c.now().UTC()
	records := make([]document.Record, 0, len(out.Documents))
	var bad []string
	for _, d := range out.Documents {
		rec, err := c.toRecord(pkg.LoanID, d, now)
		if err != nil {
			bad = append(bad, err.Error())
			continue
		}
		records = append(records, rec)
	}

	var cause error
	switch {
	case resp.StatusCode >= 300 && out.Error != "":
		cause = fmt.Errorf("split service returned %d: %s", resp.StatusCode, out.Error)
	case resp.StatusCode >= 300:
		cause = fmt.Errorf("split service returned %d", resp.StatusCode)
	case len(bad) > 0:
		cause = errors.New(strings.Join(bad, "; "))
	}

	expected := out.Expected
	if expected < len(out.Documents) {
		expected = len(out.Documents)
	}
	if cause != nil || len(records) < expected {
		return records, &PartialError{Expected: expected, Got: len(records), Err: cause}
	}
	return records, nil
}

func (c *Client) toRecord(loanID string, d splitDocument, now time.Time) (document.Record, error) {
	mimeType, data, err := document.DecodeDataURL(d.Content)
	if err != nil {
		return document.Record{}, fmt.Errorf("%s: %w", d.Filename, err)
	}

	docType, category := d.DocType, document.Category(d.Category)
	if docType == "" || docType == document.TypeAuto {
		docType, category = document.Classify(d.Filename)
	}
	if entry, ok := document.LookupType(docType); ok {
		category = entry.Category
	}
	if !document.ValidCategory(category) {
		category = document.CategoryMisc
	}

	return document.Record{
		ID:           util.NewID(""),
		LoanID:       loanID,
		DocType:      docType,
		Category:     category,
		Filename:     d.Filename,
		FileType:     mimeType,
		FileSize:     int64(len(data)),
		Content:      document.EncodeDataURL(mimeType, data),
		Status:       document.StatusPending,
		DateUploaded: now,
		Checksum:     document.Checksum(data),
		Extra:        map[string]string{"source": "split"},
	}, nil
}
