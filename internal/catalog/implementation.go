// internal/catalog/implementation.go
package catalog

import (
	"context"
	"fmt"

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

// service implements the Service interface.
type service struct {
	store   store.Store
	tracer  trace.Tracer
	changes metric.Int64Counter
}

// NewService creates a new catalog service instance.
func NewService(s store.Store) (Service, error) {
	changes, err := otel.Meter("bookledger/catalog").Int64Counter("catalog.book.changes",
		metric.WithDescription("Committed book mutations by operation"))
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog counter: %w", err)
	}
	return &service{
		store:   s,
		tracer:  otel.Tracer("bookledger/catalog"),
		changes: changes,
	}, nil
}

func (s *service) committed(ctx context.Context, op string, book domain.Book) {
	s.changes.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op)))
	log.Info().
		Str("operation", op).
		Int64("book_id", book.ID).
		Int("quantity", book.Quantity).
		Msg("book committed")
}

// RegisterBook stores a new book and adds its quantity to the stock total.
func (s *service) RegisterBook(ctx context.Context, in NewBook) (domain.Book, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.register",
		trace.WithAttributes(attribute.Int64("publisher.id", in.PublisherID)))
	defer span.End()

	if in.StatusID == 0 {
		in.StatusID = domain.StatusAvailable
	}

	var book domain.Book
	err := s.store.Update(ctx, func(tx store.Tx) error {
		if _, found, err := tx.Publisher(ctx, in.PublisherID); err != nil {
			return err
		} else if !found {
			return domain.NotFound("publisher %d not found", in.PublisherID)
		}
		if _, found, err := tx.Status(ctx, in.StatusID); err != nil {
			return err
		} else if !found {
			return domain.NotFound("status %d not found", in.StatusID)
		}
		if err := domain.Validate(in); err != nil {
			return err
		}

		book = domain.Book{
			Name:        in.Name,
			Description: in.Description,
			PublisherID: in.PublisherID,
			StatusID:    in.StatusID,
			Quantity:    in.Quantity,
		}
		if err := tx.InsertBook(ctx, &book); err != nil {
			return err
		}
		if err := ledger.Shift(ctx, tx, 0, book.Quantity); err != nil {
			return err
		}
		_, err := journal.Record(ctx, tx, journal.AggregateBook, book.ID, journal.BookRegistered, journal.BookRegisteredEvent{
			Name:        book.Name,
			PublisherID: book.PublisherID,
			StatusID:    int64(book.StatusID),
			Quantity:    book.Quantity,
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		return domain.Book{}, err
	}

	span.SetAttributes(attribute.Int64("book.id", book.ID))
	s.committed(ctx, "register", book)
	return book, nil
}

// ReassignPublisher points a book at another publisher.
func (s *service) ReassignPublisher(ctx context.Context, bookID, publisherID int64) (domain.Book, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.reassign_publisher",
		trace.WithAttributes(attribute.Int64("book.id", bookID), attribute.Int64("publisher.id", publisherID)))
	defer span.End()

	var book domain.Book
	err := s.store.Update(ctx, func(tx store.Tx) error {
		b, found, err := tx.Book(ctx, bookID)
		if err != nil {
			return err
		}
		if !found {
			return domain.NotFound("book %d not found", bookID)
		}
		if _, found, err := tx.Publisher(ctx, publisherID); err != nil {
			return err
		} else if !found {
			return domain.NotFound("publisher %d not found", publisherID)
		}

		book, err = reassign(ctx, tx, b, publisherID)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return domain.Book{}, err
	}

	s.committed(ctx, "reassign_publisher", book)
	return book, nil
}

func reassign(ctx context.Context, tx store.Tx, b domain.Book, publisherID int64) (domain.Book, error) {
	from := b.PublisherID
	b.PublisherID = publisherID
	if err := tx.UpdateBook(ctx, b); err != nil {
		return domain.Book{}, err
	}
	_, err := journal.Record(ctx, tx, journal.AggregateBook, b.ID, journal.BookPublisherReassigned,
		journal.BookPublisherReassignedEvent{From: from, To: publisherID})
	return b, err
}

// BulkReassignPublisher moves every book of oldPublisherID to newPublisherID.
// Matching ids are read once; each book is then rewritten in its own
// transaction, so the loop ends after at most len(ids) commits.
func (s *service) BulkReassignPublisher(ctx context.Context, oldPublisherID, newPublisherID int64) (BulkResult, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.bulk_reassign_publisher",
		trace.WithAttributes(attribute.Int64("publisher.old", oldPublisherID), attribute.Int64("publisher.new", newPublisherID)))
	defer span.End()

	if oldPublisherID == newPublisherID {
		return BulkResult{Message: fmt.Sprintf("books of publisher %d already belong to it", oldPublisherID)}, nil
	}

	var ids []int64
	err := s.store.View(ctx, func(r store.Reader) error {
		var err error
		ids, err = r.BookIDs(ctx, store.BookQuery{PublisherID: oldPublisherID})
		if err != nil || len(ids) == 0 {
			return err
		}
		if _, found, err := r.Publisher(ctx, newPublisherID); err != nil {
			return err
		} else if !found {
			return domain.NotFound("publisher %d not found", newPublisherID)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return BulkResult{}, err
	}

	updated := 0
	for _, id := range ids {
		moved := false
		err := s.store.Update(ctx, func(tx store.Tx) error {
			b, found, err := tx.Book(ctx, id)
			if err != nil {
				return err
			}
			// Deleted or reassigned since the id query.
			if !found || b.PublisherID != oldPublisherID {
				return nil
			}
			if _, err := reassign(ctx, tx, b, newPublisherID); err != nil {
				return err
			}
			moved = true
			return nil
		})
		if err != nil {
			span.RecordError(err)
			return BulkResult{Updated: updated, Message: bulkMessage(oldPublisherID, updated)}, err
		}
		if moved {
			updated++
		}
	}

	span.SetAttributes(attribute.Int("books.updated", updated))
	if updated > 0 {
		s.changes.Add(ctx, int64(updated), metric.WithAttributes(attribute.String("operation", "bulk_reassign_publisher")))
		log.Info().
			Int64("publisher_old", oldPublisherID).
			Int64("publisher_new", newPublisherID).
			Int("updated", updated).
			Msg("books reassigned")
	}
	return BulkResult{Updated: updated, Message: bulkMessage(oldPublisherID, updated)}, nil
}

func bulkMessage(publisherID int64, n int) string {
	switch n {
	case 0:
		return fmt.Sprintf("no book is associated with publisher %d", publisherID)
	case 1:
		return "1 book updated successfully"
	default:
		return fmt.Sprintf("%d books updated successfully", n)
	}
}

// AdjustQuantity sets a book's on-hand quantity and shifts the stock total
// by the difference.
func (s *service) AdjustQuantity(ctx context.Context, bookID int64, quantity int) (domain.Book, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.adjust_quantity",
		trace.WithAttributes(attribute.Int64("book.id", bookID), attribute.Int("quantity", quantity)))
	defer span.End()

	var book domain.Book
	err := s.store.Update(ctx, func(tx store.Tx) error {
		b, found, err := tx.Book(ctx, bookID)
		if err != nil {
			return err
		}
		if !found {
			return domain.NotFound("book %d not found", bookID)
		}
		if quantity < 0 {
			return domain.InvalidArgument("quantity must be greater than or equal to 0")
		}
		if quantity > domain.MaxQuantity {
			return domain.InvalidArgument("quantity must be less than or equal to %d", domain.MaxQuantity)
		}

		before := b.Quantity
		b.Quantity = quantity
		if err := tx.UpdateBook(ctx, b); err != nil {
			return err
		}
		if err := ledger.Shift(ctx, tx, before, quantity); err != nil {
			return err
		}
		book = b
		_, err = journal.Record(ctx, tx, journal.AggregateBook, b.ID, journal.BookQuantityAdjusted,
			journal.BookQuantityAdjustedEvent{Before: before, After: quantity})
		return err
	})
	if err != nil {
		span.RecordError(err)
		return domain.Book{}, err
	}

	s.committed(ctx, "adjust_quantity", book)
	return book, nil
}

// DeleteBook removes a book that no active loan references and takes its
// quantity out of the stock total.
func (s *service) DeleteBook(ctx context.Context, bookID int64) error {
	ctx, span := s.tracer.Start(ctx, "catalog.delete", trace.WithAttributes(attribute.Int64("book.id", bookID)))
	defer span.End()

	var book domain.Book
	err := s.store.Update(ctx, func(tx store.Tx) error {
		b, found, err := tx.Book(ctx, bookID)
		if err != nil {
			return err
		}
		if !found {
			return domain.NotFound("book %d not found", bookID)
		}

		active, err := tx.Loans(ctx, store.LoanQuery{BookID: bookID, Status: domain.LoanActive, Limit: 1})
		if err != nil {
			return err
		}
		if len(active) > 0 {
			return activeLoanConflict(ctx, tx, b, active[0])
		}

		if err := tx.DeleteBook(ctx, bookID); err != nil {
			return err
		}
		if err := ledger.Shift(ctx, tx, b.Quantity, 0); err != nil {
			return err
		}
		book = b
		_, err = journal.Record(ctx, tx, journal.AggregateBook, b.ID, journal.BookRemoved,
			journal.BookRemovedEvent{Quantity: b.Quantity})
		return err
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	s.committed(ctx, "delete", book)
	return nil
}

func activeLoanConflict(ctx context.Context, r store.Reader, b domain.Book, loan domain.Loan) error {
	borrower := fmt.Sprintf("person %d", loan.PersonID)
	p, found, err := r.Person(ctx, loan.PersonID)
	if err != nil {
		return err
	}
	if found {
		borrower = p.FullName()
	}
	return domain.Conflict("book %q cannot be deleted: %s holds active loan %d; return it first",
		b.Name, borrower, loan.ID)
}

// GetBook retrieves a book by its ID.
func (s *service) GetBook(ctx context.Context, bookID int64) (domain.Book, error) {
	var book domain.Book
	err := s.store.View(ctx, func(r store.Reader) error {
		b, found, err := r.Book(ctx, bookID)
		if err != nil {
			return err
		}
		if !found {
			return domain.NotFound("book %d not found", bookID)
		}
		book = b
		return nil
	})
	return book, err
}

// ListBooks returns up to limit books ordered by id.
func (s *service) ListBooks(ctx context.Context, limit int) ([]domain.Book, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	return s.list(ctx, store.BookQuery{Limit: limit})
}

// ListAvailable returns books with copies on hand.
func (s *service) ListAvailable(ctx context.Context) ([]domain.Book, error) {
	inStock := true
	return s.list(ctx, store.BookQuery{InStock: &inStock})
}

// ListUnavailable returns books whose quantity is zero.
func (s *service) ListUnavailable(ctx context.Context) ([]domain.Book, error) {
	inStock := false
	return s.list(ctx, store.BookQuery{InStock: &inStock})
}

func (s *service) list(ctx context.Context, q store.BookQuery) ([]domain.Book, error) {
	var books []domain.Book
	err := s.store.View(ctx, func(r store.Reader) error {
		var err error
		books, err = r.Books(ctx, q)
		return err
	})
	return books, err
}

// History returns the journal of a book, including books since deleted.
func (s *service) History(ctx context.Context, bookID int64) ([]domain.Event, error) {
	var events []domain.Event
	err := s.store.View(ctx, func(r store.Reader) error {
		var err error
		events, err = journal.History(ctx, r, journal.AggregateBook, bookID)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return domain.NotFound("book %d not found", bookID)
		}
		return nil
	})
	return events, err
}

// AddPublisher registers publisher reference data.
func (s *service) AddPublisher(ctx context.Context, in NewPublisher) (domain.Publisher, error) {
	if err := domain.Validate(in); err != nil {
		return domain.Publisher{}, err
	}
	p := domain.Publisher{Name: in.Name}
	if err := s.store.Update(ctx, func(tx store.Tx) error {
		return tx.InsertPublisher(ctx, &p)
	}); err != nil {
		return domain.Publisher{}, err
	}
	log.Info().Int64("publisher_id", p.ID).Str("name", p.Name).Msg("publisher added")
	return p, nil
}

// Stock returns the stock record and audits it against the books.
func (s *service) Stock(ctx context.Context) (StockReport, error) {
	var st domain.Stock
	err := s.store.View(ctx, func(r store.Reader) error {
		var (
			found bool
			err   error
		)
		st, found, err = r.Stock(ctx, domain.StockID)
		if err != nil {
			return err
		}
		if !found {
			return domain.NotFound("stock record not found")
		}
		return nil
	})
	if err != nil {
		return StockReport{}, err
	}

	rep, err := ledger.Audit(ctx, s.store)
	if err != nil {
		return StockReport{}, err
	}
	if !rep.Consistent() {
		log.Error().Int("total", rep.Total).Int("sum", rep.Sum).Msg("stock total drifted from book quantities")
	}
	return StockReport{Stock: st, Audit: rep}, nil
}
