// internal/ledger/ledger.go
package ledger

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"bookledger/internal/domain"
	"bookledger/internal/store"
)

var tracer = otel.Tracer("bookledger/ledger")

// Shift moves the aggregate stock total by after-before inside tx. It must be
// called in the same transaction as the book write that changed the quantity.
func Shift(ctx context.Context, tx store.Tx, before, after int) error {
	if before == after {
		return nil
	}
	s, found, err := tx.Stock(ctx, domain.StockID)
	if err != nil {
		return err
	}
	if !found {
		return domain.Storage("shifting stock", errors.New("stock record is missing"))
	}

	total := int64(s.Total) - int64(before) + int64(after)
	if total > domain.MaxQuantity {
		return domain.Conflict("stock total would exceed %d copies (total %d, before %d, after %d)",
			domain.MaxQuantity, s.Total, before, after)
	}
	if total < 0 {
		return domain.Storage("shifting stock",
			fmt.Errorf("total would become %d (total %d, before %d, after %d)", total, s.Total, before, after))
	}
	s.Total = int(total)
	return tx.PutStock(ctx, s)
}

// Report compares the stock record with the sum of every book quantity.
type Report struct {
	Total int `json:"total"`
	Sum   int `json:"sum"`
	Books int `json:"books"`
	Drift int `json:"drift"`
}

// Consistent reports whether the stock total matches the book quantities.
func (r Report) Consistent() bool { return r.Drift == 0 }

// Audit reads the stock record and every book from one snapshot.
func Audit(ctx context.Context, s store.Store) (Report, error) {
	ctx, span := tracer.Start(ctx, "ledger.audit")
	defer span.End()

	var rep Report
	err := s.View(ctx, func(r store.Reader) error {
		stock, found, err := r.Stock(ctx, domain.StockID)
		if err != nil {
			return err
		}
		if !found {
			return domain.Storage("auditing stock", errors.New("stock record is missing"))
		}
		books, err := r.Books(ctx, store.BookQuery{})
		if err != nil {
			return err
		}

		rep.Total = stock.Total
		rep.Books = len(books)
		for _, b := range books {
			rep.Sum += b.Quantity
		}
		rep.Drift = rep.Total - rep.Sum
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return Report{}, err
	}

	span.SetAttributes(
		attribute.Int("stock.total", rep.Total),
		attribute.Int("books.sum", rep.Sum),
		attribute.Bool("consistent", rep.Consistent()),
	)
	if !rep.Consistent() {
		span.AddEvent("ledger.drift", trace.WithAttributes(attribute.Int("drift", rep.Drift)))
	}
	return rep, nil
}
