package journal

import "time"

// Event types.
const (
	BookRegistered          = "BookRegistered"
	BookQuantityAdjusted    = "BookQuantityAdjusted"
	BookPublisherReassigned = "BookPublisherReassigned"
	BookRemoved             = "BookRemoved"
	BookLent                = "BookLent"
	BookReturned            = "BookReturned"
	PersonRegistered        = "PersonRegistered"
	PersonRemoved           = "PersonRemoved"
)

type BookRegisteredEvent struct {
	Name        string `json:"name"`
	PublisherID int64  `json:"publisher_id"`
	StatusID    int64  `json:"status_id"`
	Quantity    int    `json:"quantity"`
}

type BookQuantityAdjustedEvent struct {
	Before int `json:"before"`
	After  int `json:"after"`
}

type BookPublisherReassignedEvent struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

type BookRemovedEvent struct {
	Quantity int `json:"quantity"`
}

// BookLentEvent is journaled on both the book and the loan aggregate.
type BookLentEvent struct {
	LoanID   int64     `json:"loan_id"`
	BookID   int64     `json:"book_id"`
	PersonID int64     `json:"person_id"`
	Quantity int       `json:"quantity"`
	DueDate  time.Time `json:"due_date"`
}

type BookReturnedEvent struct {
	LoanID       int64     `json:"loan_id"`
	BookID       int64     `json:"book_id"`
	PersonID     int64     `json:"person_id"`
	Quantity     int       `json:"quantity"`
	ReturnedDate time.Time `json:"returned_date"`
}

type PersonRegisteredEvent struct {
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	NationalIDSuffix string `json:"national_id_suffix"`
}

type PersonRemovedEvent struct{}
