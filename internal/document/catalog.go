package document

import (
	"path/filepath"
	"strings"
)

const (
	TypeExecutedPackage   = "executed_package"
	TypePromissoryNote    = "promissory_note"
	TypeDeedOfTrust       = "deed_of_trust"
	TypeClosingDisclosure = "closing_disclosure"
	TypePropertyAppraisal = "property_appraisal"

	// TypeAuto asks the upload path to classify the document from its filename.
	TypeAuto = "auto"
)

type CatalogEntry struct {
	DocType  string   `json:"docType"`
	Label    string   `json:"label"`
	Category Category `json:"category"`
}

var catalog = []CatalogEntry{
	{DocType: TypeExecutedPackage, Label: "Executed Package", Category: CategoryLoan},
	{DocType: TypePromissoryNote, Label: "Promissory Note", Category: CategoryLoan},
	{DocType: TypeDeedOfTrust, Label: "Deed of Trust", Category: CategoryLegal},
	{DocType: TypeClosingDisclosure, Label: "Closing Disclosure", Category: CategoryFinancial},
	{DocType: TypePropertyAppraisal, Label: "Property Appraisal", Category: CategoryFinancial},
}

// Catalog returns the required document types in display order.
func Catalog() []CatalogEntry {
	out := make([]CatalogEntry, len(catalog))
	copy(out, catalog)
	return out
}

func LookupType(docType string) (CatalogEntry, bool) {
	for _, entry := range catalog {
		if entry.DocType == docType {
			return entry, true
		}
	}
	return CatalogEntry{}, false
}

func IsCatalogType(docType string) bool {
	_, ok := LookupType(docType)
	return ok
}

func ValidCategory(c Category) bool {
	switch c {
	case CategoryLoan, CategoryLegal, CategoryFinancial, CategoryMisc:
		return true
	}
	return false
}

func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// SlugFromFilename derives a free-form doc type from an uploaded filename:
// "Bank Statement (May).pdf" becomes "bank_statement_may".
func SlugFromFilename(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(base) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	slug := strings.Trim(b.String(), "_")
	if slug == "" || slug == "." {
		return "general_document"
	}
	return slug
}

// Classify guesses a doc type and category from a filename using keyword rules.
func Classify(filename string) (string, Category) {
	name := strings.ToLower(filepath.Base(filename))
	switch {
	case strings.Contains(name, "executed") || strings.Contains(name, "package"):
		return TypeExecutedPackage, CategoryLoan
	case strings.Contains(name, "note") || strings.Contains(name, "promissory"):
		return TypePromissoryNote, CategoryLoan
	case strings.Contains(name, "deed") || strings.Contains(name, "trust"):
		return TypeDeedOfTrust, CategoryLegal
	case strings.Contains(name, "disclosure") || strings.Contains(name, "closing"):
		return TypeClosingDisclosure, CategoryFinancial
	case strings.Contains(name, "appraisal"):
		return TypePropertyAppraisal, CategoryFinancial
	case strings.Contains(name, "income") || strings.Contains(name, "statement"):
		return "income_verification", CategoryFinancial
	case strings.Contains(name, "insurance"):
		return "insurance_policy", CategoryLegal
	}
	return "general_document", CategoryMisc
}
