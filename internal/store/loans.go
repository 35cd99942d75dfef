package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"loandocs/api/internal/document"
)

// Loan is the profile generated documents are filled from.
type Loan struct {
	LoanID          string    `json:"loanId"`
	BorrowerName    string    `json:"borrowerName"`
	LenderName      string    `json:"lenderName"`
	LoanAmount      float64   `json:"loanAmount"`
	InterestRate    float64   `json:"interestRate"`
	LoanTermMonths  int       `json:"loanTermMonths"`
	LoanType        string    `json:"loanType"`
	PropertyAddress string    `json:"propertyAddress"`
	PropertyType    string    `json:"propertyType"`
	CreatedAt       time.Time `json:"createdAt"`
}

// PutLoan creates or replaces a loan profile. CreatedAt is kept from the
// first write.
func (s *Local) PutLoan(ctx context.Context, loan Loan) error {
	if strings.TrimSpace(loan.LoanID) == "" {
		return fmt.Errorf("put loan: empty id")
	}
	if loan.CreatedAt.IsZero() {
		loan.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO loans (id, borrower_name, lender_name, loan_amount,
			interest_rate, loan_term_months, loan_type, property_address, property_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			borrower_name = excluded.borrower_name,
			lender_name = excluded.lender_name,
			loan_amount = excluded.loan_amount,
			interest_rate = excluded.interest_rate,
			loan_term_months = excluded.loan_term_months,
			loan_type = excluded.loan_type,
			property_address = excluded.property_address,
			property_type = excluded.property_type`,
		loan.LoanID, loan.BorrowerName, loan.LenderName, loan.LoanAmount, loan.InterestRate,
		loan.LoanTermMonths, loan.LoanType, loan.PropertyAddress, loan.PropertyType,
		loan.CreatedAt.UTC().UnixNano())
	if err != nil {
		return mapWriteError(fmt.Errorf("put loan %s: %w", loan.LoanID, err))
	}
	return nil
}

func (s *Local) Loan(ctx context.Context, loanID string) (Loan, error) {
	var (
		loan      Loan
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, borrower_name, lender_name, loan_amount, interest_rate,
			loan_term_months, loan_type, property_address, property_type, created_at
		FROM loans WHERE id = ?`, loanID).Scan(&loan.LoanID, &loan.BorrowerName, &loan.LenderName,
		&loan.LoanAmount, &loan.InterestRate, &loan.LoanTermMonths, &loan.LoanType,
		&loan.PropertyAddress, &loan.PropertyType, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Loan{}, document.ErrNotFound
	}
	if err != nil {
		return Loan{}, fmt.Errorf("get loan %s: %w", loanID, err)
	}
	loan.CreatedAt = time.Unix(0, createdAt).UTC()
	return loan, nil
}
