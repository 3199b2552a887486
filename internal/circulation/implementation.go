// internal/circulation/implementation.go
package circulation

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"bookledger/internal/domain"
	"bookledger/internal/journal"
	"bookledger/internal/ledger"
	"bookledger/internal/store"
)

const (
	defaultLoanPeriodMonths = 1
	defaultNotifyTimeout    = 5 * time.Second
)

// DefaultBlockedPersons are the people no book may be lent to.
var DefaultBlockedPersons = []int64{2}

// Option configures the loan manager.
type Option func(*service)

// WithBlockedPersons replaces the set of people no book may be lent to.
func WithBlockedPersons(ids ...int64) Option {
	return func(s *service) {
		s.blocked = make(map[int64]struct{}, len(ids))
		for _, id := range ids {
			s.blocked[id] = struct{}{}
		}
	}
}

// WithLoanPeriod sets how many months after lending a loan falls due.
func WithLoanPeriod(months int) Option {
	return func(s *service) {
		if months > 0 {
			s.loanMonths = months
		}
	}
}

// WithNotifier publishes lend and return notifications after commit.
func WithNotifier(n Notifier, timeout time.Duration) Option {
	return func(s *service) {
		s.notifier = n
		if timeout > 0 {
			s.notifyTimeout = timeout
		}
	}
}

// WithClock overrides the time source for due and return dates.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// service implements the Service interface.
type service struct {
	store         store.Store
	notifier      Notifier
	notifyTimeout time.Duration
	blocked       map[int64]struct{}
	loanMonths    int
	now           func() time.Time
	tracer        trace.Tracer
	loans         metric.Int64Counter
}

// NewService creates a new loan manager.
func NewService(s store.Store, opts ...Option) (Service, error) {
	loans, err := otel.Meter("bookledger/circulation").Int64Counter("circulation.loans",
		metric.WithDescription("Committed lends and returns"))
	if err != nil {
		return nil, fmt.Errorf("failed to create loan counter: %w", err)
	}

	svc := &service{
		store:         s,
		notifyTimeout: defaultNotifyTimeout,
		loanMonths:    defaultLoanPeriodMonths,
		now:           func() time.Time { return time.Now().UTC() },
		tracer:        otel.Tracer("bookledger/circulation"),
		loans:         loans,
	}
	WithBlockedPersons(DefaultBlockedPersons...)(svc)
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Lend creates an active loan and takes the lent copies off the shelf. The
// loan, the book quantity, the stock total and the journal entries commit
// together.
func (s *service) Lend(ctx context.Context, req LendRequest) (Receipt, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.lend",
		trace.WithAttributes(
			attribute.Int64("person.id", req.PersonID),
			attribute.Int64("book.id", req.BookID),
			attribute.Int("quantity", req.Quantity),
		),
	)
	defer span.End()

	if _, blocked := s.blocked[req.PersonID]; blocked {
		return Receipt{}, domain.Forbidden("person %d may not borrow books", req.PersonID)
	}

	var receipt Receipt
	err := s.store.Update(ctx, func(tx store.Tx) error {
		person, found, err := tx.Person(ctx, req.PersonID)
		if err != nil {
			return err
		}
		if !found {
			return domain.NotFound("person %d not found", req.PersonID)
		}
		book, found, err := tx.Book(ctx, req.BookID)
		if err != nil {
			return err
		}
		if !found {
			return domain.NotFound("book %d not found", req.BookID)
		}

		switch {
		case req.Quantity < 1:
			return domain.InvalidArgument("quantity must be at least 1")
		case book.Quantity <= 0:
			return domain.InvalidArgument("book %q has no copies on hand", book.Name)
		case req.Quantity > book.Quantity:
			return domain.InvalidArgument("book %q has only %d copies on hand, %d requested",
				book.Name, book.Quantity, req.Quantity)
		case book.StatusID == domain.StatusUnavailable:
			return domain.Conflict("book %q is unavailable", book.Name)
		}

		now := s.now()
		loan := domain.Loan{
			BookID:   book.ID,
			PersonID: person.ID,
			Status:   domain.LoanActive,
			Quantity: req.Quantity,
			DueDate:  now.AddDate(0, s.loanMonths, 0),
		}
		if err := tx.InsertLoan(ctx, &loan); err != nil {
			return err
		}

		before := book.Quantity
		book.Quantity -= req.Quantity
		if err := tx.UpdateBook(ctx, book); err != nil {
			return err
		}
		if err := ledger.Shift(ctx, tx, before, book.Quantity); err != nil {
			return err
		}

		ev := journal.BookLentEvent{
			LoanID:   loan.ID,
			BookID:   book.ID,
			PersonID: person.ID,
			Quantity: loan.Quantity,
			DueDate:  loan.DueDate,
		}
		if _, err := journal.Record(ctx, tx, journal.AggregateLoan, loan.ID, journal.BookLent, ev); err != nil {
			return err
		}
		if _, err := journal.Record(ctx, tx, journal.AggregateBook, book.ID, journal.BookLent, ev); err != nil {
			return err
		}

		dueIn := humanize.RelTime(loan.DueDate, now, "ago", "from now")
		receipt = Receipt{
			Loan:     loan,
			BookName: book.Name,
			Borrower: person.FullName(),
			DueIn:    dueIn,
			Message: fmt.Sprintf("book %q lent to %s, due %s (%s)",
				book.Name, person.FullName(), loan.DueDate.Format("2 January 2006"), dueIn),
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return Receipt{}, err
	}

	span.SetAttributes(attribute.Int64("loan.id", receipt.Loan.ID))
	s.loans.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", "lend")))
	log.Info().
		Int64("loan_id", receipt.Loan.ID).
		Int64("book_id", receipt.Loan.BookID).
		Int64("person_id", receipt.Loan.PersonID).
		Int("quantity", receipt.Loan.Quantity).
		Msg("book lent")
	s.notify(ctx, RoutingLoanLent, receipt.Loan)
	return receipt, nil
}

// Return closes an active loan and puts its copies back on the shelf.
func (s *service) Return(ctx context.Context, loanID int64) (Receipt, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.return", trace.WithAttributes(attribute.Int64("loan.id", loanID)))
	defer span.End()

	var receipt Receipt
	err := s.store.Update(ctx, func(tx store.Tx) error {
		loan, found, err := tx.Loan(ctx, loanID)
		if err != nil {
			return err
		}
		if !found {
			return domain.NotFound("loan %d not found", loanID)
		}
		if !loan.Active() {
			return domain.Conflict("loan %d is already %s", loanID, loan.Status)
		}
		book, found, err := tx.Book(ctx, loan.BookID)
		if err != nil {
			return err
		}
		if !found {
			return domain.Conflict("book %d of loan %d no longer exists", loan.BookID, loanID)
		}

		if book.Quantity > domain.MaxQuantity-loan.Quantity {
			return domain.Conflict("returning loan %d would raise book %q above %d copies", loanID, book.Name, domain.MaxQuantity)
		}

		returned := s.now()
		loan.Status = domain.LoanReturned
		loan.ReturnedDate = &returned
		if err := tx.UpdateLoan(ctx, loan); err != nil {
			return err
		}

		before := book.Quantity
		book.Quantity += loan.Quantity
		if err := tx.UpdateBook(ctx, book); err != nil {
			return err
		}
		if err := ledger.Shift(ctx, tx, before, book.Quantity); err != nil {
			return err
		}

		ev := journal.BookReturnedEvent{
			LoanID:       loan.ID,
			BookID:       book.ID,
			PersonID:     loan.PersonID,
			Quantity:     loan.Quantity,
			ReturnedDate: returned,
		}
		if _, err := journal.Record(ctx, tx, journal.AggregateLoan, loan.ID, journal.BookReturned, ev); err != nil {
			return err
		}
		if _, err := journal.Record(ctx, tx, journal.AggregateBook, book.ID, journal.BookReturned, ev); err != nil {
			return err
		}

		borrower := fmt.Sprintf("person %d", loan.PersonID)
		if p, found, err := tx.Person(ctx, loan.PersonID); err != nil {
			return err
		} else if found {
			borrower = p.FullName()
		}
		receipt = Receipt{
			Loan:     loan,
			BookName: book.Name,
			Borrower: borrower,
			Message:  fmt.Sprintf("book %q returned by %s", book.Name, borrower),
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return Receipt{}, err
	}

	s.loans.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", "return")))
	log.Info().
		Int64("loan_id", loanID).
		Int64("book_id", receipt.Loan.BookID).
		Int("quantity", receipt.Loan.Quantity).
		Msg("book returned")
	s.notify(ctx, RoutingLoanReturned, receipt.Loan)
	return receipt, nil
}

// notify runs after commit. A failed publish is logged and never undoes the
// committed loan.
func (s *service) notify(ctx context.Context, routingKey string, loan domain.Loan) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()

	ev := LoanEvent{
		LoanID:     loan.ID,
		BookID:     loan.BookID,
		PersonID:   loan.PersonID,
		Quantity:   loan.Quantity,
		DueDate:    loan.DueDate,
		ReturnedAt: loan.ReturnedDate,
	}
	if err := s.notifier.Publish(ctx, routingKey, ev); err != nil {
		log.Warn().Err(err).Str("routing_key", routingKey).Int64("loan_id", loan.ID).Msg("loan notification failed")
	}
}

// ListActive returns every loan that still holds copies.
func (s *service) ListActive(ctx context.Context) ([]domain.Loan, error) {
	var loans []domain.Loan
	err := s.store.View(ctx, func(r store.Reader) error {
		var err error
		loans, err = r.Loans(ctx, store.LoanQuery{Status: domain.LoanActive})
		return err
	})
	return loans, err
}

// GetLoan retrieves a loan by its ID.
func (s *service) GetLoan(ctx context.Context, loanID int64) (domain.Loan, error) {
	var loan domain.Loan
	err := s.store.View(ctx, func(r store.Reader) error {
		l, found, err := r.Loan(ctx, loanID)
		if err != nil {
			return err
		}
		if !found {
			return domain.NotFound("loan %d not found", loanID)
		}
		loan = l
		return nil
	})
	return loan, err
}
