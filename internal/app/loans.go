package app

import (
	"context"
	"errors"
	"strings"

	"loandocs/api/internal/document"
	"loandocs/api/internal/generate"
	"loandocs/api/internal/store"
)

type loanSource interface {
	Loan(ctx context.Context, loanID string) (store.Loan, error)
}

// loanLookup feeds stored loan profiles to the template generator. A loan
// without a profile renders with placeholders.
type loanLookup struct {
	loans loanSource
}

// NewLoanLookup adapts the local store's loan profiles for document generation.
func NewLoanLookup(local *store.Local) generate.LoanLookup {
	return loanLookup{loans: local}
}

func (l loanLookup) Loan(ctx context.Context, loanID string) (generate.LoanInfo, error) {
	loan, err := l.loans.Loan(ctx, loanID)
	if errors.Is(err, document.ErrNotFound) {
		return generate.LoanInfo{LoanID: loanID}, nil
	}
	if err != nil {
		return generate.LoanInfo{}, err
	}
	return generate.LoanInfo{
		LoanID:          loan.LoanID,
		BorrowerName:    loan.BorrowerName,
		LenderName:      loan.LenderName,
		LoanAmount:      loan.LoanAmount,
		InterestRate:    loan.InterestRate,
		LoanTermMonths:  loan.LoanTermMonths,
		LoanType:        loan.LoanType,
		PropertyAddress: loan.PropertyAddress,
		PropertyType:    loan.PropertyType,
		CreatedAt:       loan.CreatedAt,
	}, nil
}

func (s *Service) LoanProfile(ctx context.Context, loanID string) (store.Loan, error) {
	return s.local.Loan(ctx, strings.TrimSpace(loanID))
}

// SaveLoanProfile stores the profile used when generating the loan's documents.
func (s *Service) SaveLoanProfile(ctx context.Context, loan store.Loan) (store.Loan, error) {
	loan.LoanID = strings.TrimSpace(loan.LoanID)
	if document.IsUnassignedLoanID(loan.LoanID) {
		return store.Loan{}, validationError("loanId is required")
	}
	if loan.LoanAmount < 0 || loan.InterestRate < 0 || loan.LoanTermMonths < 0 {
		return store.Loan{}, validationError("loan amount, rate and term must not be negative")
	}
	loan.BorrowerName = strings.TrimSpace(loan.BorrowerName)
	loan.LenderName = strings.TrimSpace(loan.LenderName)
	loan.PropertyAddress = strings.TrimSpace(loan.PropertyAddress)
	if err := s.local.PutLoan(ctx, loan); err != nil {
		return store.Loan{}, err
	}
	return s.local.Loan(ctx, loan.LoanID)
}
