package circulation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"bookledger/internal/catalog"
	"bookledger/internal/circulation/mocks"
	"bookledger/internal/domain"
	"bookledger/internal/ledger"
	"bookledger/internal/store"
	"bookledger/internal/store/memstore"
)

var testNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func clock() time.Time { return testNow }

type fixture struct {
	store   store.Store
	catalog catalog.Service
	loans   Service
}

func newFixture(t *testing.T, opts ...Option) fixture {
	t.Helper()
	s, err := memstore.New(memstore.WithClock(clock))
	require.NoError(t, err)
	cat, err := catalog.NewService(s)
	require.NoError(t, err)
	loans, err := NewService(s, append([]Option{WithClock(clock)}, opts...)...)
	require.NoError(t, err)
	return fixture{store: s, catalog: cat, loans: loans}
}

// addPeople inserts n people with ids 1..n.
func (f fixture) addPeople(t *testing.T, n int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.Update(ctx, func(tx store.Tx) error {
		for i := 1; i <= n; i++ {
			p := &domain.Person{FirstName: "Reader", LastName: fmt.Sprint(i), NationalIDDigest: fmt.Sprint("digest-", i)}
			if err := tx.InsertPerson(ctx, p); err != nil {
				return err
			}
		}
		return nil
	}))
}

func (f fixture) addBook(t *testing.T, qty int, status domain.StatusID) domain.Book {
	t.Helper()
	ctx := context.Background()
	pubs, err := f.catalog.AddPublisher(ctx, catalog.NewPublisher{Name: "Chilton"})
	require.NoError(t, err)
	b, err := f.catalog.RegisterBook(ctx, catalog.NewBook{
		Name:        "Dune",
		Description: "A desert planet, a noble family and the spice that binds an empire.",
		PublisherID: pubs.ID,
		StatusID:    status,
		Quantity:    qty,
	})
	require.NoError(t, err)
	return b
}

func (f fixture) quantity(t *testing.T, bookID int64) int {
	t.Helper()
	b, err := f.catalog.GetBook(context.Background(), bookID)
	require.NoError(t, err)
	return b.Quantity
}

func (f fixture) requireConsistent(t *testing.T, want int) {
	t.Helper()
	rep, err := ledger.Audit(context.Background(), f.store)
	require.NoError(t, err)
	assert.True(t, rep.Consistent(), "stock %d != sum %d", rep.Total, rep.Sum)
	assert.Equal(t, want, rep.Total)
}

func TestDuneScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addPeople(t, 7)

	dune := f.addBook(t, 5, domain.StatusAvailable)
	f.requireConsistent(t, 5)

	receipt, err := f.loans.Lend(ctx, LendRequest{PersonID: 7, BookID: dune.ID, Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, domain.LoanActive, receipt.Loan.Status)
	assert.Equal(t, time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC), receipt.Loan.DueDate)
	assert.Equal(t, "1 month from now", receipt.DueIn)
	assert.Equal(t, "Reader 7", receipt.Borrower)
	assert.Contains(t, receipt.Message, "1 April 2024")
	assert.Equal(t, 3, f.quantity(t, dune.ID))
	f.requireConsistent(t, 3)

	active, err := f.loans.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)

	returned, err := f.loans.Return(ctx, receipt.Loan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanReturned, returned.Loan.Status)
	require.NotNil(t, returned.Loan.ReturnedDate)
	assert.Equal(t, testNow, *returned.Loan.ReturnedDate)
	assert.Equal(t, 5, f.quantity(t, dune.ID))
	f.requireConsistent(t, 5)

	loan, err := f.loans.GetLoan(ctx, receipt.Loan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanReturned, loan.Status)

	history, err := f.catalog.History(ctx, dune.ID)
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

func TestLendRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addPeople(t, 3)
	book := f.addBook(t, 2, domain.StatusAvailable)
	empty := f.addBook(t, 0, domain.StatusAvailable)
	unavailable := f.addBook(t, 4, domain.StatusUnavailable)

	tests := []struct {
		name string
		req  LendRequest
		want error
	}{
		{"blocked person", LendRequest{PersonID: 2, BookID: book.ID, Quantity: 1}, domain.ErrForbidden},
		{"blocked before lookup", LendRequest{PersonID: 2, BookID: 999, Quantity: 1}, domain.ErrForbidden},
		{"unknown person", LendRequest{PersonID: 99, BookID: book.ID, Quantity: 1}, domain.ErrNotFound},
		{"unknown book", LendRequest{PersonID: 1, BookID: 999, Quantity: 1}, domain.ErrNotFound},
		{"zero quantity", LendRequest{PersonID: 1, BookID: book.ID, Quantity: 0}, domain.ErrInvalidArgument},
		{"over lend", LendRequest{PersonID: 1, BookID: book.ID, Quantity: 3}, domain.ErrInvalidArgument},
		{"nothing on hand", LendRequest{PersonID: 1, BookID: empty.ID, Quantity: 1}, domain.ErrInvalidArgument},
		{"unavailable status", LendRequest{PersonID: 3, BookID: unavailable.ID, Quantity: 1}, domain.ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.loans.Lend(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	// None of the failures touched state.
	assert.Equal(t, 2, f.quantity(t, book.ID))
	active, err := f.loans.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
	f.requireConsistent(t, 6)
}

func TestBlockedPersonsConfigurable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithBlockedPersons(1))
	f.addPeople(t, 2)
	book := f.addBook(t, 2, domain.StatusAvailable)

	_, err := f.loans.Lend(ctx, LendRequest{PersonID: 1, BookID: book.ID, Quantity: 1})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.loans.Lend(ctx, LendRequest{PersonID: 2, BookID: book.ID, Quantity: 1})
	assert.NoError(t, err)
}

func TestLoanPeriod(t *testing.T) {
	f := newFixture(t, WithLoanPeriod(3))
	f.addPeople(t, 1)
	book := f.addBook(t, 1, domain.StatusAvailable)

	receipt, err := f.loans.Lend(context.Background(), LendRequest{PersonID: 1, BookID: book.ID, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, testNow.AddDate(0, 3, 0), receipt.Loan.DueDate)
}

func TestReturnTwiceConflicts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addPeople(t, 1)
	book := f.addBook(t, 3, domain.StatusAvailable)

	receipt, err := f.loans.Lend(ctx, LendRequest{PersonID: 1, BookID: book.ID, Quantity: 3})
	require.NoError(t, err)
	_, err = f.loans.Return(ctx, receipt.Loan.ID)
	require.NoError(t, err)

	_, err = f.loans.Return(ctx, receipt.Loan.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, 3, f.quantity(t, book.ID))
	f.requireConsistent(t, 3)

	_, err = f.loans.Return(ctx, 404)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.loans.GetLoan(ctx, 404)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteBlockedWhileLent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addPeople(t, 1)
	book := f.addBook(t, 2, domain.StatusAvailable)

	receipt, err := f.loans.Lend(ctx, LendRequest{PersonID: 1, BookID: book.ID, Quantity: 1})
	require.NoError(t, err)

	err = f.catalog.DeleteBook(ctx, book.ID)
	require.ErrorIs(t, err, domain.ErrConflict)
	assert.Contains(t, err.Error(), "Reader 1")
	f.requireConsistent(t, 1)

	_, err = f.loans.Return(ctx, receipt.Loan.ID)
	require.NoError(t, err)
	require.NoError(t, f.catalog.DeleteBook(ctx, book.ID))
	f.requireConsistent(t, 0)
}

func TestConcurrentLendsOfLastCopy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addPeople(t, 3)
	book := f.addBook(t, 1, domain.StatusAvailable)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, person := range []int64{1, 3} {
		wg.Add(1)
		go func(i int, person int64) {
			defer wg.Done()
			_, errs[i] = f.loans.Lend(ctx, LendRequest{PersonID: person, BookID: book.ID, Quantity: 1})
		}(i, person)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 0, f.quantity(t, book.ID))
	f.requireConsistent(t, 0)
}

func TestNotifierReceivesCommittedLoans(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	notifier := mocks.NewMockNotifier(ctrl)

	f := newFixture(t, WithNotifier(notifier, time.Second))
	f.addPeople(t, 1)
	book := f.addBook(t, 2, domain.StatusAvailable)

	gomock.InOrder(
		notifier.EXPECT().Publish(gomock.Any(), RoutingLoanLent, gomock.AssignableToTypeOf(LoanEvent{})).
			DoAndReturn(func(_ context.Context, _ string, payload any) error {
				ev := payload.(LoanEvent)
				assert.Equal(t, book.ID, ev.BookID)
				assert.Equal(t, 2, ev.Quantity)
				assert.Nil(t, ev.ReturnedAt)
				return nil
			}),
		notifier.EXPECT().Publish(gomock.Any(), RoutingLoanReturned, gomock.AssignableToTypeOf(LoanEvent{})).
			Return(errors.New("broker down")),
	)

	receipt, err := f.loans.Lend(ctx, LendRequest{PersonID: 1, BookID: book.ID, Quantity: 2})
	require.NoError(t, err)

	// A failed publish does not undo the return.
	_, err = f.loans.Return(ctx, receipt.Loan.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, f.quantity(t, book.ID))
}

func TestNotifierNotCalledOnFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	notifier := mocks.NewMockNotifier(ctrl)
	notifier.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	f := newFixture(t, WithNotifier(notifier, time.Second))
	f.addPeople(t, 1)
	book := f.addBook(t, 1, domain.StatusAvailable)

	_, err := f.loans.Lend(context.Background(), LendRequest{PersonID: 1, BookID: book.ID, Quantity: 5})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestReturnAboveMaxQuantity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addPeople(t, 1)
	book := f.addBook(t, 1, domain.StatusAvailable)

	receipt, err := f.loans.Lend(ctx, LendRequest{PersonID: 1, BookID: book.ID, Quantity: 1})
	require.NoError(t, err)
	_, err = f.catalog.AdjustQuantity(ctx, book.ID, domain.MaxQuantity)
	require.NoError(t, err)

	_, err = f.loans.Return(ctx, receipt.Loan.ID)
	require.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, domain.MaxQuantity, f.quantity(t, book.ID))
	f.requireConsistent(t, domain.MaxQuantity)

	active, err := f.loans.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	_, err = f.catalog.AdjustQuantity(ctx, book.ID, 10)
	require.NoError(t, err)
	_, err = f.loans.Return(ctx, receipt.Loan.ID)
	require.NoError(t, err)
	f.requireConsistent(t, 11)
}
