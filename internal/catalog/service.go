// internal/catalog/service.go
package catalog

import (
	"context"

	"bookledger/internal/domain"
)

// Service defines the interface for the book catalog.
type Service interface {
	RegisterBook(ctx context.Context, in NewBook) (domain.Book, error)
	ReassignPublisher(ctx context.Context, bookID, publisherID int64) (domain.Book, error)
	BulkReassignPublisher(ctx context.Context, oldPublisherID, newPublisherID int64) (BulkResult, error)
	AdjustQuantity(ctx context.Context, bookID int64, quantity int) (domain.Book, error)
	DeleteBook(ctx context.Context, bookID int64) error

	GetBook(ctx context.Context, bookID int64) (domain.Book, error)
	ListBooks(ctx context.Context, limit int) ([]domain.Book, error)
	ListAvailable(ctx context.Context) ([]domain.Book, error)
	ListUnavailable(ctx context.Context) ([]domain.Book, error)
	History(ctx context.Context, bookID int64) ([]domain.Event, error)

	AddPublisher(ctx context.Context, in NewPublisher) (domain.Publisher, error)
	Stock(ctx context.Context) (StockReport, error)
}
