package pgstore

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/matryer/is"

	"bookledger/internal/catalog"
	"bookledger/internal/circulation"
	"bookledger/internal/domain"
	"bookledger/internal/ledger"
	"bookledger/internal/store"
)

// openTestStore connects to DATABASE_URL and skips the test when it is unset
// or unreachable.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("skipping postgres tests: DATABASE_URL is not set")
	}
	s, err := Open(context.Background(), dsn)
	if err != nil {
		t.Skipf("skipping postgres tests: could not connect: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRetryable(t *testing.T) {
	is := is.New(t)
	is.True(retryable(&pq.Error{Code: "40001"}))
	is.True(retryable(&pq.Error{Code: "40P01"}))
	is.True(!retryable(&pq.Error{Code: "23505"}))
	is.True(!retryable(errors.New("plain")))
	is.True(!retryable(domain.Conflict("busy")))
}

func TestBookQueryBuilder(t *testing.T) {
	is := is.New(t)
	inStock := true

	query, args, err := bookDataset(store.BookQuery{PublisherID: 3, InStock: &inStock, Limit: 5}).
		Select("id").Prepared(true).ToSQL()
	is.NoErr(err)
	is.True(strings.Contains(query, `"publisher_id" = $1`))
	is.True(strings.Contains(query, `"quantity" > $2`))
	is.True(strings.HasSuffix(query, `ORDER BY "id" ASC LIMIT $3`))
	is.Equal(len(args), 3)
}

func TestUpdateRollsBackOnError(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	s := openTestStore(t)

	var publisher domain.Publisher
	is.NoErr(s.Update(ctx, func(tx store.Tx) error {
		publisher = domain.Publisher{Name: "Ace"}
		return tx.InsertPublisher(ctx, &publisher)
	}))

	var before domain.Stock
	is.NoErr(s.View(ctx, func(r store.Reader) error {
		var err error
		before, _, err = r.Stock(ctx, domain.StockID)
		return err
	}))

	err := s.Update(ctx, func(tx store.Tx) error {
		b := &domain.Book{Name: "Dune", Description: "d", PublisherID: publisher.ID, StatusID: domain.StatusAvailable, Quantity: 3}
		if err := tx.InsertBook(ctx, b); err != nil {
			return err
		}
		if err := tx.PutStock(ctx, domain.Stock{ID: domain.StockID, Total: before.Total + 3}); err != nil {
			return err
		}
		return domain.InvalidArgument("abort")
	})
	is.True(errors.Is(err, domain.ErrInvalidArgument))

	is.NoErr(s.View(ctx, func(r store.Reader) error {
		after, _, err := r.Stock(ctx, domain.StockID)
		is.Equal(after.Total, before.Total)
		return err
	}))
}

func TestAppendEventVersions(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	s := openTestStore(t)

	var publisher domain.Publisher
	is.NoErr(s.Update(ctx, func(tx store.Tx) error {
		publisher = domain.Publisher{Name: "Journal"}
		return tx.InsertPublisher(ctx, &publisher)
	}))

	// Publisher ids are fresh, so the aggregate has no prior history.
	is.NoErr(s.Update(ctx, func(tx store.Tx) error {
		for i := 1; i <= 2; i++ {
			e := &domain.Event{AggregateType: "test", AggregateID: publisher.ID, EventType: "x", EventData: []byte(`{}`)}
			if err := tx.AppendEvent(ctx, e); err != nil {
				return err
			}
			is.Equal(e.Version, i)
		}
		return nil
	}))

	is.NoErr(s.View(ctx, func(r store.Reader) error {
		events, err := r.Events(ctx, "test", publisher.ID)
		is.Equal(len(events), 2)
		return err
	}))
}

// TestConcurrentLendsOfLastCopy races several lends for a single copy
// through serializable transactions. Exactly one may win.
func TestConcurrentLendsOfLastCopy(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	s := openTestStore(t)

	cat, err := catalog.NewService(s)
	is.NoErr(err)
	loans, err := circulation.NewService(s, circulation.WithBlockedPersons())
	is.NoErr(err)

	const readers = 4
	personIDs := make([]int64, readers)
	err = s.Update(ctx, func(tx store.Tx) error {
		for i := range personIDs {
			p := &domain.Person{FirstName: "Reader", LastName: "Race", NationalIDDigest: uuid.NewString()}
			if err := tx.InsertPerson(ctx, p); err != nil {
				return err
			}
			personIDs[i] = p.ID
		}
		return nil
	})
	is.NoErr(err)

	pub, err := cat.AddPublisher(ctx, catalog.NewPublisher{Name: "Chilton"})
	is.NoErr(err)
	book, err := cat.RegisterBook(ctx, catalog.NewBook{
		Name:        "Dune",
		Description: "A desert planet, a noble family and the spice that binds an empire.",
		PublisherID: pub.ID,
		Quantity:    1,
	})
	is.NoErr(err)

	var wg sync.WaitGroup
	errs := make([]error, readers)
	for i, person := range personIDs {
		wg.Add(1)
		go func(i int, person int64) {
			defer wg.Done()
			_, errs[i] = loans.Lend(ctx, circulation.LendRequest{PersonID: person, BookID: book.ID, Quantity: 1})
		}(i, person)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		is.True(errors.Is(err, domain.ErrInvalidArgument)) // losers see no copies left
	}
	is.Equal(succeeded, 1)

	got, err := cat.GetBook(ctx, book.ID)
	is.NoErr(err)
	is.Equal(got.Quantity, 0)

	rep, err := ledger.Audit(ctx, s)
	is.NoErr(err)
	is.True(rep.Consistent())
}
