package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"bookledger/internal/domain"
	"bookledger/internal/store"
)

var dialect = goqu.Dialect("postgres")

var (
	bookColumns = []any{"id", "name", "description", "publisher_id", "status_id", "quantity", "created_at", "updated_at"}
	loanColumns = []any{"id", "book_id", "person_id", "status", "quantity", "due_date", "returned_date", "created_at"}
)

// tx adapts a sqlx transaction to store.Tx. Inside Update, single-row reads
// of books, loans and stock take a row lock so that the value validated is
// the value overwritten. Callers lock a book before the stock record.
type tx struct {
	tx        *sqlx.Tx
	forUpdate bool
}

func (t *tx) lock(query string) string {
	if t.forUpdate {
		return query + " FOR UPDATE"
	}
	return query
}

// get runs a single-row query. found is false when no row matched.
func (t *tx) get(ctx context.Context, dest any, op, query string, args ...any) (bool, error) {
	err := t.tx.GetContext(ctx, dest, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, domain.Storage(op, err)
	}
	return true, nil
}

func (t *tx) selectDataset(ctx context.Context, dest any, op string, ds *goqu.SelectDataset) error {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return domain.Storage(op, fmt.Errorf("building query: %w", err))
	}
	if err := t.tx.SelectContext(ctx, dest, query, args...); err != nil {
		return domain.Storage(op, err)
	}
	return nil
}

func (t *tx) exec(ctx context.Context, op, query string, args ...any) (int64, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, domain.Storage(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, domain.Storage(op, err)
	}
	return n, nil
}

// -- Books --

func (t *tx) Book(ctx context.Context, id int64) (domain.Book, bool, error) {
	var b domain.Book
	found, err := t.get(ctx, &b, "reading book", t.lock(`
		SELECT id, name, description, publisher_id, status_id, quantity, created_at, updated_at
		FROM books
		WHERE id = $1`), id)
	return b, found, err
}

func bookDataset(q store.BookQuery) *goqu.SelectDataset {
	ds := dialect.From("books").Order(goqu.I("id").Asc())
	if q.PublisherID != 0 {
		ds = ds.Where(goqu.C("publisher_id").Eq(q.PublisherID))
	}
	if q.InStock != nil {
		if *q.InStock {
			ds = ds.Where(goqu.C("quantity").Gt(0))
		} else {
			ds = ds.Where(goqu.C("quantity").Eq(0))
		}
	}
	if q.Limit > 0 {
		ds = ds.Limit(uint(q.Limit))
	}
	return ds
}

func (t *tx) Books(ctx context.Context, q store.BookQuery) ([]domain.Book, error) {
	books := []domain.Book{}
	if err := t.selectDataset(ctx, &books, "listing books", bookDataset(q).Select(bookColumns...)); err != nil {
		return nil, err
	}
	return books, nil
}

func (t *tx) BookIDs(ctx context.Context, q store.BookQuery) ([]int64, error) {
	ids := []int64{}
	if err := t.selectDataset(ctx, &ids, "listing book ids", bookDataset(q).Select("id")); err != nil {
		return nil, err
	}
	return ids, nil
}

func (t *tx) InsertBook(ctx context.Context, b *domain.Book) error {
	row := t.tx.QueryRowxContext(ctx, `
		INSERT INTO books (name, description, publisher_id, status_id, quantity)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		b.Name, b.Description, b.PublisherID, b.StatusID, b.Quantity)
	if err := row.Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return domain.Storage("storing book", err)
	}
	return nil
}

func (t *tx) UpdateBook(ctx context.Context, b domain.Book) error {
	n, err := t.exec(ctx, "updating book", `
		UPDATE books
		SET name = $2, description = $3, publisher_id = $4, status_id = $5, quantity = $6, updated_at = NOW()
		WHERE id = $1`,
		b.ID, b.Name, b.Description, b.PublisherID, b.StatusID, b.Quantity)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NotFound("book %d not found", b.ID)
	}
	return nil
}

func (t *tx) DeleteBook(ctx context.Context, id int64) error {
	n, err := t.exec(ctx, "deleting book", `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NotFound("book %d not found", id)
	}
	return nil
}

// -- Stock --

func (t *tx) Stock(ctx context.Context, id int64) (domain.Stock, bool, error) {
	var s domain.Stock
	found, err := t.get(ctx, &s, "reading stock", t.lock(`
		SELECT id, total, updated_at FROM stock WHERE id = $1`), id)
	return s, found, err
}

func (t *tx) PutStock(ctx context.Context, s domain.Stock) error {
	_, err := t.exec(ctx, "storing stock", `
		INSERT INTO stock (id, total, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET total = EXCLUDED.total, updated_at = EXCLUDED.updated_at`,
		s.ID, s.Total)
	return err
}

// -- Loans --

func (t *tx) Loan(ctx context.Context, id int64) (domain.Loan, bool, error) {
	var l domain.Loan
	found, err := t.get(ctx, &l, "reading loan", t.lock(`
		SELECT id, book_id, person_id, status, quantity, due_date, returned_date, created_at
		FROM loans
		WHERE id = $1`), id)
	return l, found, err
}

func (t *tx) Loans(ctx context.Context, q store.LoanQuery) ([]domain.Loan, error) {
	ds := dialect.From("loans").Select(loanColumns...).Order(goqu.I("id").Asc())
	if q.BookID != 0 {
		ds = ds.Where(goqu.C("book_id").Eq(q.BookID))
	}
	if q.PersonID != 0 {
		ds = ds.Where(goqu.C("person_id").Eq(q.PersonID))
	}
	if q.Status != 0 {
		ds = ds.Where(goqu.C("status").Eq(int(q.Status)))
	}
	if q.Limit > 0 {
		ds = ds.Limit(uint(q.Limit))
	}

	loans := []domain.Loan{}
	if err := t.selectDataset(ctx, &loans, "listing loans", ds); err != nil {
		return nil, err
	}
	return loans, nil
}

func (t *tx) InsertLoan(ctx context.Context, l *domain.Loan) error {
	row := t.tx.QueryRowxContext(ctx, `
		INSERT INTO loans (book_id, person_id, status, quantity, due_date, returned_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		l.BookID, l.PersonID, int(l.Status), l.Quantity, l.DueDate, l.ReturnedDate)
	if err := row.Scan(&l.ID, &l.CreatedAt); err != nil {
		return domain.Storage("storing loan", err)
	}
	return nil
}

func (t *tx) UpdateLoan(ctx context.Context, l domain.Loan) error {
	n, err := t.exec(ctx, "updating loan", `
		UPDATE loans
		SET status = $2, quantity = $3, due_date = $4, returned_date = $5
		WHERE id = $1`,
		l.ID, int(l.Status), l.Quantity, l.DueDate, l.ReturnedDate)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NotFound("loan %d not found", l.ID)
	}
	return nil
}

// -- People --

const personColumns = `id, first_name, last_name, national_id_digest, national_id_suffix, created_at`

func (t *tx) Person(ctx context.Context, id int64) (domain.Person, bool, error) {
	var p domain.Person
	found, err := t.get(ctx, &p, "reading person", `
		SELECT `+personColumns+` FROM people WHERE id = $1`, id)
	return p, found, err
}

func (t *tx) PersonByDigest(ctx context.Context, digest string) (domain.Person, bool, error) {
	var p domain.Person
	found, err := t.get(ctx, &p, "reading person", `
		SELECT `+personColumns+` FROM people WHERE national_id_digest = $1`, digest)
	return p, found, err
}

func (t *tx) People(ctx context.Context, limit int) ([]domain.Person, error) {
	ds := dialect.From("people").
		Select(goqu.L(personColumns)).
		Order(goqu.I("id").Asc())
	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}
	people := []domain.Person{}
	if err := t.selectDataset(ctx, &people, "listing people", ds); err != nil {
		return nil, err
	}
	return people, nil
}

func (t *tx) InsertPerson(ctx context.Context, p *domain.Person) error {
	row := t.tx.QueryRowxContext(ctx, `
		INSERT INTO people (first_name, last_name, national_id_digest, national_id_suffix)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		p.FirstName, p.LastName, p.NationalIDDigest, p.NationalIDSuffix)
	if err := row.Scan(&p.ID, &p.CreatedAt); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return domain.Conflict("national id is already registered")
		}
		return domain.Storage("storing person", err)
	}
	return nil
}

func (t *tx) DeletePerson(ctx context.Context, id int64) error {
	n, err := t.exec(ctx, "deleting person", `DELETE FROM people WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NotFound("person %d not found", id)
	}
	return nil
}

// -- Reference data --

func (t *tx) Publisher(ctx context.Context, id int64) (domain.Publisher, bool, error) {
	var p domain.Publisher
	found, err := t.get(ctx, &p, "reading publisher", `SELECT id, name FROM publishers WHERE id = $1`, id)
	return p, found, err
}

func (t *tx) InsertPublisher(ctx context.Context, p *domain.Publisher) error {
	row := t.tx.QueryRowxContext(ctx, `INSERT INTO publishers (name) VALUES ($1) RETURNING id`, p.Name)
	if err := row.Scan(&p.ID); err != nil {
		return domain.Storage("storing publisher", err)
	}
	return nil
}

func (t *tx) Status(ctx context.Context, id domain.StatusID) (domain.BookStatus, bool, error) {
	var st domain.BookStatus
	found, err := t.get(ctx, &st, "reading status", `SELECT id, description FROM book_statuses WHERE id = $1`, id)
	return st, found, err
}

// -- Journal --

func (t *tx) Events(ctx context.Context, aggregateType string, aggregateID int64) ([]domain.Event, error) {
	events := []domain.Event{}
	err := t.tx.SelectContext(ctx, &events, `
		SELECT id, aggregate_type, aggregate_id, event_type, event_data, version, created_at
		FROM events
		WHERE aggregate_type = $1 AND aggregate_id = $2
		ORDER BY version ASC`, aggregateType, aggregateID)
	if err != nil {
		return nil, domain.Storage("loading events", err)
	}
	return events, nil
}

func (t *tx) AppendEvent(ctx context.Context, e *domain.Event) error {
	var current int
	err := t.tx.QueryRowxContext(ctx, `
		SELECT COALESCE(MAX(version), 0)
		FROM events
		WHERE aggregate_type = $1 AND aggregate_id = $2`, e.AggregateType, e.AggregateID).Scan(&current)
	if err != nil {
		return domain.Storage("query current version", err)
	}

	e.Version = current + 1
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	row := t.tx.QueryRowxContext(ctx, `
		INSERT INTO events (id, aggregate_type, aggregate_id, event_type, event_data, version)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		e.ID, e.AggregateType, e.AggregateID, e.EventType, []byte(e.EventData), e.Version)
	if err := row.Scan(&e.CreatedAt); err != nil {
		return domain.Storage("appending event", err)
	}
	return nil
}
