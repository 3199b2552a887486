package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-memdb"

	"bookledger/internal/domain"
	"bookledger/internal/store"
)

// tx adapts a memdb transaction to store.Tx. Records are stored as pointers
// and never mutated in place; updates insert a fresh copy.
type tx struct {
	txn    *memdb.Txn
	now    func() time.Time
	writes int
}

func (t *tx) first(table string, id any) (any, error) {
	raw, err := t.txn.First(table, "id", id)
	if err != nil {
		return nil, domain.Storage(fmt.Sprintf("reading %s", table), err)
	}
	return raw, nil
}

func (t *tx) nextID(table string) (int64, error) {
	raw, err := t.txn.First(tableSeq, "id", table)
	if err != nil {
		return 0, domain.Storage("reading sequence", err)
	}
	next := int64(1)
	if raw != nil {
		next = raw.(*sequence).Value + 1
	}
	if err := t.txn.Insert(tableSeq, &sequence{Name: table, Value: next}); err != nil {
		return 0, domain.Storage("advancing sequence", err)
	}
	return next, nil
}

func limit[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}

// -- Books --

func (t *tx) Book(ctx context.Context, id int64) (domain.Book, bool, error) {
	raw, err := t.first(tableBook, id)
	if err != nil || raw == nil {
		return domain.Book{}, false, err
	}
	return *raw.(*domain.Book), true, nil
}

func (t *tx) Books(ctx context.Context, q store.BookQuery) ([]domain.Book, error) {
	var (
		it  memdb.ResultIterator
		err error
	)
	if q.PublisherID != 0 {
		it, err = t.txn.Get(tableBook, "publisher", q.PublisherID)
	} else {
		it, err = t.txn.Get(tableBook, "id")
	}
	if err != nil {
		return nil, domain.Storage("listing books", err)
	}

	books := []domain.Book{}
	for raw := it.Next(); raw != nil; raw = it.Next() {
		b := *raw.(*domain.Book)
		if q.InStock != nil && (b.Quantity > 0) != *q.InStock {
			continue
		}
		books = append(books, b)
	}
	sort.Slice(books, func(i, j int) bool { return books[i].ID < books[j].ID })
	return limit(books, q.Limit), nil
}

func (t *tx) BookIDs(ctx context.Context, q store.BookQuery) ([]int64, error) {
	books, err := t.Books(ctx, q)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(books))
	for _, b := range books {
		ids = append(ids, b.ID)
	}
	return ids, nil
}

func (t *tx) InsertBook(ctx context.Context, b *domain.Book) error {
	id, err := t.nextID(tableBook)
	if err != nil {
		return err
	}
	now := t.now()
	b.ID, b.CreatedAt, b.UpdatedAt = id, now, now
	rec := *b
	if err := t.txn.Insert(tableBook, &rec); err != nil {
		return domain.Storage("storing book", err)
	}
	t.writes++
	return nil
}

func (t *tx) UpdateBook(ctx context.Context, b domain.Book) error {
	raw, err := t.first(tableBook, b.ID)
	if err != nil {
		return err
	}
	if raw == nil {
		return domain.NotFound("book %d not found", b.ID)
	}
	b.CreatedAt = raw.(*domain.Book).CreatedAt
	b.UpdatedAt = t.now()
	if err := t.txn.Insert(tableBook, &b); err != nil {
		return domain.Storage("updating book", err)
	}
	t.writes++
	return nil
}

func (t *tx) DeleteBook(ctx context.Context, id int64) error {
	raw, err := t.first(tableBook, id)
	if err != nil {
		return err
	}
	if raw == nil {
		return domain.NotFound("book %d not found", id)
	}
	if err := t.txn.Delete(tableBook, raw); err != nil {
		return domain.Storage("deleting book", err)
	}
	t.writes++
	return nil
}

// -- Stock --

func (t *tx) Stock(ctx context.Context, id int64) (domain.Stock, bool, error) {
	raw, err := t.first(tableStock, id)
	if err != nil || raw == nil {
		return domain.Stock{}, false, err
	}
	return *raw.(*domain.Stock), true, nil
}

func (t *tx) PutStock(ctx context.Context, s domain.Stock) error {
	s.UpdatedAt = t.now()
	if err := t.txn.Insert(tableStock, &s); err != nil {
		return domain.Storage("storing stock", err)
	}
	t.writes++
	return nil
}

// -- Loans --

func (t *tx) Loan(ctx context.Context, id int64) (domain.Loan, bool, error) {
	raw, err := t.first(tableLoan, id)
	if err != nil || raw == nil {
		return domain.Loan{}, false, err
	}
	return *raw.(*domain.Loan), true, nil
}

func (t *tx) Loans(ctx context.Context, q store.LoanQuery) ([]domain.Loan, error) {
	var (
		it  memdb.ResultIterator
		err error
	)
	switch {
	case q.BookID != 0:
		it, err = t.txn.Get(tableLoan, "book", q.BookID)
	case q.PersonID != 0:
		it, err = t.txn.Get(tableLoan, "person", q.PersonID)
	default:
		it, err = t.txn.Get(tableLoan, "id")
	}
	if err != nil {
		return nil, domain.Storage("listing loans", err)
	}

	loans := []domain.Loan{}
	for raw := it.Next(); raw != nil; raw = it.Next() {
		l := *raw.(*domain.Loan)
		if q.BookID != 0 && l.BookID != q.BookID {
			continue
		}
		if q.PersonID != 0 && l.PersonID != q.PersonID {
			continue
		}
		if q.Status != 0 && l.Status != q.Status {
			continue
		}
		loans = append(loans, l)
	}
	sort.Slice(loans, func(i, j int) bool { return loans[i].ID < loans[j].ID })
	return limit(loans, q.Limit), nil
}

func (t *tx) InsertLoan(ctx context.Context, l *domain.Loan) error {
	id, err := t.nextID(tableLoan)
	if err != nil {
		return err
	}
	l.ID, l.CreatedAt = id, t.now()
	rec := *l
	if err := t.txn.Insert(tableLoan, &rec); err != nil {
		return domain.Storage("storing loan", err)
	}
	t.writes++
	return nil
}

func (t *tx) UpdateLoan(ctx context.Context, l domain.Loan) error {
	raw, err := t.first(tableLoan, l.ID)
	if err != nil {
		return err
	}
	if raw == nil {
		return domain.NotFound("loan %d not found", l.ID)
	}
	l.CreatedAt = raw.(*domain.Loan).CreatedAt
	if err := t.txn.Insert(tableLoan, &l); err != nil {
		return domain.Storage("updating loan", err)
	}
	t.writes++
	return nil
}

// -- People --

func (t *tx) Person(ctx context.Context, id int64) (domain.Person, bool, error) {
	raw, err := t.first(tablePerson, id)
	if err != nil || raw == nil {
		return domain.Person{}, false, err
	}
	return *raw.(*domain.Person), true, nil
}

func (t *tx) PersonByDigest(ctx context.Context, digest string) (domain.Person, bool, error) {
	raw, err := t.txn.First(tablePerson, "digest", digest)
	if err != nil {
		return domain.Person{}, false, domain.Storage("reading person", err)
	}
	if raw == nil {
		return domain.Person{}, false, nil
	}
	return *raw.(*domain.Person), true, nil
}

func (t *tx) People(ctx context.Context, n int) ([]domain.Person, error) {
	it, err := t.txn.Get(tablePerson, "id")
	if err != nil {
		return nil, domain.Storage("listing people", err)
	}
	people := []domain.Person{}
	for raw := it.Next(); raw != nil; raw = it.Next() {
		people = append(people, *raw.(*domain.Person))
	}
	sort.Slice(people, func(i, j int) bool { return people[i].ID < people[j].ID })
	return limit(people, n), nil
}

func (t *tx) InsertPerson(ctx context.Context, p *domain.Person) error {
	id, err := t.nextID(tablePerson)
	if err != nil {
		return err
	}
	p.ID, p.CreatedAt = id, t.now()
	rec := *p
	if err := t.txn.Insert(tablePerson, &rec); err != nil {
		return domain.Storage("storing person", err)
	}
	t.writes++
	return nil
}

func (t *tx) DeletePerson(ctx context.Context, id int64) error {
	raw, err := t.first(tablePerson, id)
	if err != nil {
		return err
	}
	if raw == nil {
		return domain.NotFound("person %d not found", id)
	}
	if err := t.txn.Delete(tablePerson, raw); err != nil {
		return domain.Storage("deleting person", err)
	}
	t.writes++
	return nil
}

// -- Reference data --

func (t *tx) Publisher(ctx context.Context, id int64) (domain.Publisher, bool, error) {
	raw, err := t.first(tablePublisher, id)
	if err != nil || raw == nil {
		return domain.Publisher{}, false, err
	}
	return *raw.(*domain.Publisher), true, nil
}

func (t *tx) InsertPublisher(ctx context.Context, p *domain.Publisher) error {
	id, err := t.nextID(tablePublisher)
	if err != nil {
		return err
	}
	p.ID = id
	rec := *p
	if err := t.txn.Insert(tablePublisher, &rec); err != nil {
		return domain.Storage("storing publisher", err)
	}
	t.writes++
	return nil
}

func (t *tx) Status(ctx context.Context, id domain.StatusID) (domain.BookStatus, bool, error) {
	raw, err := t.first(tableStatus, id)
	if err != nil || raw == nil {
		return domain.BookStatus{}, false, err
	}
	return *raw.(*domain.BookStatus), true, nil
}

// -- Journal --

func (t *tx) Events(ctx context.Context, aggregateType string, aggregateID int64) ([]domain.Event, error) {
	it, err := t.txn.Get(tableEvent, "aggregate", aggregateType, aggregateID)
	if err != nil {
		return nil, domain.Storage("loading events", err)
	}
	events := []domain.Event{}
	for raw := it.Next(); raw != nil; raw = it.Next() {
		events = append(events, *raw.(*domain.Event))
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Version < events[j].Version })
	return events, nil
}

func (t *tx) AppendEvent(ctx context.Context, e *domain.Event) error {
	history, err := t.Events(ctx, e.AggregateType, e.AggregateID)
	if err != nil {
		return err
	}
	e.Version = len(history) + 1
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.CreatedAt = t.now()
	rec := *e
	if err := t.txn.Insert(tableEvent, &rec); err != nil {
		return domain.Storage("appending event", err)
	}
	t.writes++
	return nil
}
