package document

import "sort"

// Slot is one entry of the required-document catalog together with the
// current record for it, if any.
type Slot struct {
	CatalogEntry
	Record *Record `json:"record,omitempty"`
}

// ResolveSlot returns the current record of docType for loanID: the newest
// matching record. Orphaned records never match.
func ResolveSlot(records []Record, loanID, docType string) (Record, bool) {
	var (
		best  Record
		found bool
	)
	if IsUnassignedLoanID(loanID) {
		return Record{}, false
	}
	for _, rec := range records {
		if rec.LoanID != loanID || rec.DocType != docType {
			continue
		}
		if !found || Newer(rec, best) {
			best = rec
			found = true
		}
	}
	return best, found
}

// BuildSlotView resolves every catalog entry for a loan.
func BuildSlotView(records []Record, loanID string) []Slot {
	slots := make([]Slot, 0, len(catalog))
	for _, entry := range catalog {
		slot := Slot{CatalogEntry: entry}
		if rec, ok := ResolveSlot(records, loanID, entry.DocType); ok {
			rec := rec
			slot.Record = &rec
		}
		slots = append(slots, slot)
	}
	return slots
}

// CurrentRecords returns one record per doc type for the loan, sorted by doc type.
func CurrentRecords(records []Record, loanID string) []Record {
	byType := make(map[string]Record)
	for _, rec := range records {
		if rec.LoanID != loanID || IsUnassignedLoanID(loanID) {
			continue
		}
		if existing, ok := byType[rec.DocType]; !ok || Newer(rec, existing) {
			byType[rec.DocType] = rec
		}
	}
	out := make([]Record, 0, len(byType))
	for _, rec := range byType {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocType < out[j].DocType })
	return out
}

// GroupByType partitions records by doc type; each group is sorted newest first.
func GroupByType(records []Record) map[string][]Record {
	groups := make(map[string][]Record)
	for _, rec := range records {
		groups[rec.DocType] = append(groups[rec.DocType], rec)
	}
	for docType := range groups {
		group := groups[docType]
		sort.SliceStable(group, func(i, j int) bool { return Newer(group[i], group[j]) })
	}
	return groups
}

// FindOrphaned returns records with an empty or placeholder loan id.
func FindOrphaned(records []Record) []Record {
	var out []Record
	for _, rec := range records {
		if rec.IsOrphaned() {
			out = append(out, rec)
		}
	}
	return out
}
