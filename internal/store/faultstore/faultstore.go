// internal/store/faultstore/faultstore.go
package faultstore

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"bookledger/internal/domain"
	"bookledger/internal/store"
)

// ErrInjected is wrapped by every failure the store injects.
var ErrInjected = errors.New("injected fault")

// Fault describes a failure to inject into transaction writes.
type Fault struct {
	// Target names the write to disrupt, e.g. "PutStock". Empty targets
	// every write.
	Target string
	// Latency is added before each targeted write.
	Latency time.Duration
	// BlastRadius is the probability, from 0.0 to 1.0, that a targeted
	// write fails.
	BlastRadius float64
}

// Store wraps another store and disrupts its writes while faults are
// active. Reads are never disrupted.
type Store struct {
	inner  store.Store
	tracer trace.Tracer

	mu       sync.Mutex
	rng      *rand.Rand
	faults   []Fault
	injected int
}

// New wraps inner. seed makes the injected failures reproducible.
func New(inner store.Store, seed uint64) *Store {
	return &Store{
		inner:  inner,
		tracer: otel.Tracer("bookledger/faultstore"),
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Inject activates f until Clear is called.
func (s *Store) Inject(f Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, f)
}

// Clear deactivates every fault.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = nil
}

// Injected reports how many writes failed on purpose so far.
func (s *Store) Injected() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.injected
}

func (s *Store) View(ctx context.Context, fn func(store.Reader) error) error {
	return s.inner.View(ctx, fn)
}

func (s *Store) Update(ctx context.Context, fn func(store.Tx) error) error {
	ctx, span := s.tracer.Start(ctx, "faultstore.update")
	defer span.End()

	err := s.inner.Update(ctx, func(tx store.Tx) error {
		return fn(&faultTx{Tx: tx, s: s})
	})
	if errors.Is(err, ErrInjected) {
		span.SetAttributes(attribute.Bool("fault.injected", true))
	}
	return err
}

func (s *Store) Close() error { return s.inner.Close() }

// disrupt applies the active faults to one write named op.
func (s *Store) disrupt(ctx context.Context, op string) error {
	s.mu.Lock()
	var latency time.Duration
	fail := false
	for _, f := range s.faults {
		if f.Target != "" && f.Target != op {
			continue
		}
		latency += f.Latency
		if f.BlastRadius > 0 && s.rng.Float64() < f.BlastRadius {
			fail = true
		}
	}
	if fail {
		s.injected++
	}
	s.mu.Unlock()

	if latency > 0 {
		t := time.NewTimer(latency)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	if !fail {
		return nil
	}

	trace.SpanFromContext(ctx).AddEvent("fault.injected", trace.WithAttributes(attribute.String("op", op)))
	return domain.Storage(op, ErrInjected)
}

// faultTx passes reads through and runs every write past the active faults.
type faultTx struct {
	store.Tx
	s *Store
}

func (t *faultTx) InsertBook(ctx context.Context, b *domain.Book) error {
	if err := t.s.disrupt(ctx, "InsertBook"); err != nil {
		return err
	}
	return t.Tx.InsertBook(ctx, b)
}

func (t *faultTx) UpdateBook(ctx context.Context, b domain.Book) error {
	if err := t.s.disrupt(ctx, "UpdateBook"); err != nil {
		return err
	}
	return t.Tx.UpdateBook(ctx, b)
}

func (t *faultTx) DeleteBook(ctx context.Context, id int64) error {
	if err := t.s.disrupt(ctx, "DeleteBook"); err != nil {
		return err
	}
	return t.Tx.DeleteBook(ctx, id)
}

func (t *faultTx) PutStock(ctx context.Context, st domain.Stock) error {
	if err := t.s.disrupt(ctx, "PutStock"); err != nil {
		return err
	}
	return t.Tx.PutStock(ctx, st)
}

func (t *faultTx) InsertLoan(ctx context.Context, l *domain.Loan) error {
	if err := t.s.disrupt(ctx, "InsertLoan"); err != nil {
		return err
	}
	return t.Tx.InsertLoan(ctx, l)
}

func (t *faultTx) UpdateLoan(ctx context.Context, l domain.Loan) error {
	if err := t.s.disrupt(ctx, "UpdateLoan"); err != nil {
		return err
	}
	return t.Tx.UpdateLoan(ctx, l)
}

func (t *faultTx) InsertPerson(ctx context.Context, p *domain.Person) error {
	if err := t.s.disrupt(ctx, "InsertPerson"); err != nil {
		return err
	}
	return t.Tx.InsertPerson(ctx, p)
}

func (t *faultTx) DeletePerson(ctx context.Context, id int64) error {
	if err := t.s.disrupt(ctx, "DeletePerson"); err != nil {
		return err
	}
	return t.Tx.DeletePerson(ctx, id)
}

func (t *faultTx) InsertPublisher(ctx context.Context, p *domain.Publisher) error {
	if err := t.s.disrupt(ctx, "InsertPublisher"); err != nil {
		return err
	}
	return t.Tx.InsertPublisher(ctx, p)
}

func (t *faultTx) AppendEvent(ctx context.Context, e *domain.Event) error {
	if err := t.s.disrupt(ctx, "AppendEvent"); err != nil {
		return err
	}
	return t.Tx.AppendEvent(ctx, e)
}
