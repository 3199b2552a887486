// internal/store/store.go
package store

import (
	"context"

	"bookledger/internal/domain"
)

// BookQuery narrows a book listing. Zero values mean "any".
type BookQuery struct {
	PublisherID int64
	// InStock selects quantity > 0 when true and quantity == 0 when false.
	InStock *bool
	Limit   int
}

// LoanQuery narrows a loan listing. Zero values mean "any".
type LoanQuery struct {
	BookID   int64
	PersonID int64
	Status   domain.LoanStatus
	Limit    int
}

// Reader is the read side of a transaction. Single-record lookups return
// found=false with a nil error when the record is absent.
type Reader interface {
	Book(ctx context.Context, id int64) (domain.Book, bool, error)
	Books(ctx context.Context, q BookQuery) ([]domain.Book, error)
	BookIDs(ctx context.Context, q BookQuery) ([]int64, error)

	Stock(ctx context.Context, id int64) (domain.Stock, bool, error)

	Loan(ctx context.Context, id int64) (domain.Loan, bool, error)
	Loans(ctx context.Context, q LoanQuery) ([]domain.Loan, error)

	Person(ctx context.Context, id int64) (domain.Person, bool, error)
	PersonByDigest(ctx context.Context, digest string) (domain.Person, bool, error)
	People(ctx context.Context, limit int) ([]domain.Person, error)

	Publisher(ctx context.Context, id int64) (domain.Publisher, bool, error)
	Status(ctx context.Context, id domain.StatusID) (domain.BookStatus, bool, error)

	Events(ctx context.Context, aggregateType string, aggregateID int64) ([]domain.Event, error)
}

// Tx is a read-write transaction. Writes become visible only when the
// function passed to Store.Update returns nil.
type Tx interface {
	Reader

	InsertBook(ctx context.Context, b *domain.Book) error
	UpdateBook(ctx context.Context, b domain.Book) error
	DeleteBook(ctx context.Context, id int64) error

	PutStock(ctx context.Context, s domain.Stock) error

	InsertLoan(ctx context.Context, l *domain.Loan) error
	UpdateLoan(ctx context.Context, l domain.Loan) error

	InsertPerson(ctx context.Context, p *domain.Person) error
	DeletePerson(ctx context.Context, id int64) error

	InsertPublisher(ctx context.Context, p *domain.Publisher) error

	// AppendEvent assigns the next version of the event's aggregate.
	AppendEvent(ctx context.Context, e *domain.Event) error
}

// Store is the durable record store the core reads and writes through.
type Store interface {
	// View runs fn against a consistent read-only snapshot.
	View(ctx context.Context, fn func(Reader) error) error
	// Update runs fn in a transaction and commits every write it made, or
	// none of them when fn or the commit fails.
	Update(ctx context.Context, fn func(Tx) error) error
	Close() error
}

// DefaultStatuses is the status reference data every store is seeded with.
var DefaultStatuses = []domain.BookStatus{
	{ID: domain.StatusAvailable, Description: "Available"},
	{ID: domain.StatusReserved, Description: "Reserved"},
	{ID: domain.StatusUnavailable, Description: "Unavailable"},
}
