// internal/circulation/domain.go
package circulation

import (
	"context"
	"time"

	"bookledger/internal/domain"
)

// Routing keys of the loan notifications.
const (
	RoutingLoanLent     = "loan.lent"
	RoutingLoanReturned = "loan.returned"
)

// LendRequest is the input of Lend.
type LendRequest struct {
	PersonID int64 `json:"person_id"`
	BookID   int64 `json:"book_id"`
	Quantity int   `json:"quantity"`
}

// Receipt describes a committed lend or return.
type Receipt struct {
	Loan     domain.Loan `json:"loan"`
	BookName string      `json:"book_name"`
	Borrower string      `json:"borrower"`
	DueIn    string      `json:"due_in,omitempty"`
	Message  string      `json:"message"`
}

// LoanEvent is the notification published after a lend or return commits.
type LoanEvent struct {
	LoanID     int64      `json:"loan_id"`
	BookID     int64      `json:"book_id"`
	PersonID   int64      `json:"person_id"`
	Quantity   int        `json:"quantity"`
	DueDate    time.Time  `json:"due_date"`
	ReturnedAt *time.Time `json:"returned_at,omitempty"`
}

// Notifier publishes loan notifications to interested parties.
type Notifier interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}
