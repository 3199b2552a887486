// internal/domain/domain.go
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// StockID is the identifier of the single aggregate stock record.
const StockID int64 = 1

// MaxQuantity bounds book quantities and the stock total. Both are stored
// in 32-bit integer columns.
const MaxQuantity = 2147483647

// StatusID identifies a book status.
type StatusID int64

const (
	StatusAvailable   StatusID = 1
	StatusReserved    StatusID = 2
	StatusUnavailable StatusID = 3
)

// LoanStatus is the lifecycle state of a loan.
type LoanStatus int

const (
	LoanReturned LoanStatus = 1
	LoanActive   LoanStatus = 2
)

func (s LoanStatus) String() string {
	switch s {
	case LoanReturned:
		return "returned"
	case LoanActive:
		return "active"
	default:
		return "unknown"
	}
}

// Book is a catalog entry together with its on-hand quantity.
type Book struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	PublisherID int64     `json:"publisher_id" db:"publisher_id"`
	StatusID    StatusID  `json:"status_id" db:"status_id"`
	Quantity    int       `json:"quantity" db:"quantity"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Stock holds the total on-hand quantity across all books.
type Stock struct {
	ID        int64     `json:"id" db:"id"`
	Total     int       `json:"total" db:"total"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Loan links a book to the person borrowing some of its copies.
type Loan struct {
	ID           int64      `json:"id" db:"id"`
	BookID       int64      `json:"book_id" db:"book_id"`
	PersonID     int64      `json:"person_id" db:"person_id"`
	Status       LoanStatus `json:"status" db:"status"`
	Quantity     int        `json:"quantity" db:"quantity"`
	DueDate      time.Time  `json:"due_date" db:"due_date"`
	ReturnedDate *time.Time `json:"returned_date,omitempty" db:"returned_date"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

// Active reports whether the loan still holds copies of its book.
func (l Loan) Active() bool { return l.Status == LoanActive }

// Person is a registered patron.
type Person struct {
	ID               int64     `json:"id" db:"id"`
	FirstName        string    `json:"first_name" db:"first_name"`
	LastName         string    `json:"last_name" db:"last_name"`
	NationalIDDigest string    `json:"-" db:"national_id_digest"`
	NationalIDSuffix string    `json:"national_id_suffix" db:"national_id_suffix"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// FullName joins first and last name.
func (p Person) FullName() string {
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// Publisher is reference data for books.
type Publisher struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// BookStatus is reference data for Book.StatusID.
type BookStatus struct {
	ID          StatusID `json:"id" db:"id"`
	Description string   `json:"description" db:"description"`
}

// Event is an entry of the append-only journal.
type Event struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	AggregateType string          `json:"aggregate_type" db:"aggregate_type"`
	AggregateID   int64           `json:"aggregate_id" db:"aggregate_id"`
	EventType     string          `json:"event_type" db:"event_type"`
	EventData     json.RawMessage `json:"event_data" db:"event_data"`
	Version       int             `json:"version" db:"version"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}
