// internal/circulation/service.go
package circulation

import (
	"context"

	"bookledger/internal/domain"
)

// Service defines the interface for the loan manager.
type Service interface {
	Lend(ctx context.Context, req LendRequest) (Receipt, error)
	Return(ctx context.Context, loanID int64) (Receipt, error)
	ListActive(ctx context.Context) ([]domain.Loan, error)
	GetLoan(ctx context.Context, loanID int64) (domain.Loan, error)
}
