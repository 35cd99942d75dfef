// Package document defines loan document records, the required-document
// catalog and the pure slot resolution rules shared by every storage tier.
package document

import (
	"strings"
	"time"
)

type Category string

const (
	CategoryLoan      Category = "loan"
	CategoryLegal     Category = "legal"
	CategoryFinancial Category = "financial"
	CategoryMisc      Category = "misc"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// SyncState tracks whether the local copy of a record has reached the remote store.
type SyncState string

const (
	SyncUnsynced SyncState = "unsynced"
	SyncPending  SyncState = "pending"
	SyncSynced   SyncState = "synced"
)

// Record is a single loan document. The ID never changes once assigned;
// replacing a slot's document means inserting a new record and deleting the old one.
type Record struct {
	ID           string            `json:"id"`
	LoanID       string            `json:"loanId"`
	DocType      string            `json:"docType"`
	Category     Category          `json:"category"`
	Filename     string            `json:"filename"`
	FileType     string            `json:"fileType"`
	FileSize     int64             `json:"fileSize"`
	Content      string            `json:"content"`
	Status       Status            `json:"status"`
	DateUploaded time.Time         `json:"dateUploaded"`
	AssignedTo   string            `json:"assignedTo,omitempty"`
	Notes        string            `json:"notes,omitempty"`
	Checksum     string            `json:"checksum,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
	SyncState    SyncState         `json:"syncState,omitempty"`
}

// IsOrphaned reports whether the record has no usable loan association.
func (r Record) IsOrphaned() bool {
	return IsUnassignedLoanID(r.LoanID)
}

// ForRemote returns a copy suitable for the remote tier. Sync state is local-only.
func (r Record) ForRemote() Record {
	out := r
	out.SyncState = ""
	if r.Extra != nil {
		out.Extra = make(map[string]string, len(r.Extra))
		for k, v := range r.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// Summary drops the content payload for list responses.
func (r Record) Summary() Record {
	out := r
	out.Content = ""
	return out
}

func IsUnassignedLoanID(loanID string) bool {
	switch strings.TrimSpace(loanID) {
	case "", "unassigned", "undefined", "null":
		return true
	}
	return false
}

// Newer reports whether a should be preferred over b as the current record of a slot.
// Ties on DateUploaded are broken by the greater ID so the choice is deterministic.
func Newer(a, b Record) bool {
	if !a.DateUploaded.Equal(b.DateUploaded) {
		return a.DateUploaded.After(b.DateUploaded)
	}
	return a.ID > b.ID
}
