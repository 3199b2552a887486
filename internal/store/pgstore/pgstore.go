// internal/store/pgstore/pgstore.go
package pgstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"bookledger/internal/domain"
	"bookledger/internal/store"
)

//go:embed schema.sql
var schemaSQL string

const (
	defaultMaxOpenConnections = 50
	defaultMaxIdleConnections = 10
	defaultMaxConnLifetime    = time.Hour
	defaultMaxConnIdleTime    = 5 * time.Minute
	defaultMaxTries           = 5
)

// Store is the PostgreSQL record store. Update runs SERIALIZABLE transactions
// that lock the rows they read, and retries serialization failures.
type Store struct {
	db       *sqlx.DB
	tracer   trace.Tracer
	maxTries uint
}

// Open connects to PostgreSQL, creates missing tables and seeds the stock
// record and status reference data.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to db, opening: %w", err)
	}

	db.SetMaxOpenConns(defaultMaxOpenConnections)
	db.SetMaxIdleConns(defaultMaxIdleConnections)
	db.SetConnMaxLifetime(defaultMaxConnLifetime)
	db.SetConnMaxIdleTime(defaultMaxConnIdleTime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to db, pinging: %w", err)
	}

	s := &Store{db: db, tracer: otel.Tracer("bookledger/pgstore"), maxTries: defaultMaxTries}
	if err := s.bootstrap(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) bootstrap(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO stock (id, total) VALUES ($1, 0)
		ON CONFLICT (id) DO NOTHING
	`, domain.StockID); err != nil {
		return fmt.Errorf("seeding stock: %w", err)
	}
	for _, st := range store.DefaultStatuses {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO book_statuses (id, description) VALUES ($1, $2)
			ON CONFLICT (id) DO NOTHING
		`, st.ID, st.Description); err != nil {
			return fmt.Errorf("seeding statuses: %w", err)
		}
	}
	return nil
}

// View implements store.Store.
func (s *Store) View(ctx context.Context, fn func(store.Reader) error) error {
	ctx, span := s.tracer.Start(ctx, "pgstore.view")
	defer span.End()

	sqlTx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return domain.Storage("begin transaction", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&tx{tx: sqlTx}); err != nil {
		span.RecordError(err)
		return err
	}
	return domain.Storage("commit transaction", sqlTx.Commit())
}

// Update implements store.Store.
func (s *Store) Update(ctx context.Context, fn func(store.Tx) error) error {
	ctx, span := s.tracer.Start(ctx, "pgstore.update")
	defer span.End()

	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := s.update(ctx, fn)
		if err != nil && !retryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(s.maxTries))

	span.SetAttributes(attribute.Int("attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rolled back")
		return domain.Storage("update", err)
	}
	span.SetAttributes(attribute.Bool("commit.success", true))
	return nil
}

func (s *Store) update(ctx context.Context, fn func(store.Tx) error) error {
	sqlTx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return domain.Storage("begin transaction", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&tx{tx: sqlTx, forUpdate: true}); err != nil {
		return err
	}
	return domain.Storage("commit transaction", sqlTx.Commit())
}

// Close implements store.Store.
func (s *Store) Close() error { return s.db.Close() }

// retryable reports serialization failures and deadlocks, which PostgreSQL
// expects the client to resolve by running the transaction again.
func retryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "40001" || pqErr.Code == "40P01"
}
