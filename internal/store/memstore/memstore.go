// internal/store/memstore/memstore.go
package memstore

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-memdb"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"bookledger/internal/domain"
	"bookledger/internal/store"
)

const (
	tableBook      = "book"
	tableStock     = "stock"
	tableLoan      = "loan"
	tablePerson    = "person"
	tablePublisher = "publisher"
	tableStatus    = "status"
	tableEvent     = "event"
	tableSeq       = "seq"
)

// sequence is the last identifier handed out for a table.
type sequence struct {
	Name  string
	Value int64
}

func schema() *memdb.DBSchema {
	idIndex := func(field string) *memdb.IndexSchema {
		return &memdb.IndexSchema{Name: "id", Unique: true, Indexer: &memdb.IntFieldIndex{Field: field}}
	}
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableBook: {
				Name: tableBook,
				Indexes: map[string]*memdb.IndexSchema{
					"id":        idIndex("ID"),
					"publisher": {Name: "publisher", Indexer: &memdb.IntFieldIndex{Field: "PublisherID"}},
				},
			},
			tableStock: {
				Name:    tableStock,
				Indexes: map[string]*memdb.IndexSchema{"id": idIndex("ID")},
			},
			tableLoan: {
				Name: tableLoan,
				Indexes: map[string]*memdb.IndexSchema{
					"id":     idIndex("ID"),
					"book":   {Name: "book", Indexer: &memdb.IntFieldIndex{Field: "BookID"}},
					"person": {Name: "person", Indexer: &memdb.IntFieldIndex{Field: "PersonID"}},
				},
			},
			tablePerson: {
				Name: tablePerson,
				Indexes: map[string]*memdb.IndexSchema{
					"id":     idIndex("ID"),
					"digest": {Name: "digest", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "NationalIDDigest"}},
				},
			},
			tablePublisher: {
				Name:    tablePublisher,
				Indexes: map[string]*memdb.IndexSchema{"id": idIndex("ID")},
			},
			tableStatus: {
				Name:    tableStatus,
				Indexes: map[string]*memdb.IndexSchema{"id": idIndex("ID")},
			},
			tableEvent: {
				Name: tableEvent,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:   "id",
						Unique: true,
						Indexer: &memdb.CompoundIndex{Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "AggregateType"},
							&memdb.IntFieldIndex{Field: "AggregateID"},
							&memdb.IntFieldIndex{Field: "Version"},
						}},
					},
					"aggregate": {
						Name: "aggregate",
						Indexer: &memdb.CompoundIndex{Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "AggregateType"},
							&memdb.IntFieldIndex{Field: "AggregateID"},
						}},
					},
				},
			},
			tableSeq: {
				Name: tableSeq,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {Name: "id", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "Name"}},
				},
			},
		},
	}
}

// Store is an in-process record store. go-memdb admits a single write
// transaction at a time, so every Update runs its read-validate-write
// sequence in isolation from every other Update.
type Store struct {
	db     *memdb.MemDB
	tracer trace.Tracer
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty store holding the stock record and status reference data.
func New(opts ...Option) (*Store, error) {
	sch := schema()
	if err := sch.Validate(); err != nil {
		return nil, fmt.Errorf("invalid in-memory schema: %w", err)
	}
	db, err := memdb.NewMemDB(sch)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize in-memory database: %w", err)
	}

	s := &Store{
		db:     db,
		tracer: otel.Tracer("bookledger/memstore"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}

	txn := db.Txn(true)
	defer txn.Abort()
	if err := txn.Insert(tableStock, &domain.Stock{ID: domain.StockID, UpdatedAt: s.now()}); err != nil {
		return nil, fmt.Errorf("seeding stock: %w", err)
	}
	for _, st := range store.DefaultStatuses {
		st := st
		if err := txn.Insert(tableStatus, &st); err != nil {
			return nil, fmt.Errorf("seeding statuses: %w", err)
		}
	}
	txn.Commit()

	return s, nil
}

// View implements store.Store.
func (s *Store) View(ctx context.Context, fn func(store.Reader) error) error {
	ctx, span := s.tracer.Start(ctx, "memstore.view")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return domain.Storage("view", err)
	}
	txn := s.db.Txn(false)
	defer txn.Abort()

	if err := fn(&tx{txn: txn, now: s.now}); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// Update implements store.Store.
func (s *Store) Update(ctx context.Context, fn func(store.Tx) error) error {
	ctx, span := s.tracer.Start(ctx, "memstore.update")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return domain.Storage("update", err)
	}
	txn := s.db.Txn(true)
	defer txn.Abort()

	t := &tx{txn: txn, now: s.now}
	if err := fn(t); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rolled back")
		return err
	}
	// A caller that gave up while waiting for the writer lock gets nothing committed.
	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, "context done before commit")
		return domain.Storage("commit", err)
	}
	txn.Commit()

	span.SetAttributes(attribute.Int("writes", t.writes), attribute.Bool("commit.success", true))
	return nil
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }
