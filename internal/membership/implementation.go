// internal/membership/implementation.go
package membership

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"bookledger/internal/domain"
	"bookledger/internal/journal"
	"bookledger/internal/store"
)

// Option configures the membership service.
type Option func(*service)

// WithVerifier replaces the CPF check-digit verifier.
func WithVerifier(v Verifier) Option {
	return func(s *service) { s.verifier = v }
}

// WithRegistrationRate limits registrations to perMinute, allowing bursts
// of up to burst requests.
func WithRegistrationRate(perMinute, burst int) Option {
	return func(s *service) {
		if perMinute > 0 && burst > 0 {
			s.rateLimiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst)
		}
	}
}

// service implements the Service interface.
type service struct {
	store       store.Store
	verifier    Verifier
	digester    digester
	rateLimiter *rate.Limiter
	tracer      trace.Tracer
}

// NewService creates a new membership service instance. pepper keys the
// national id digest and must not change once people are registered.
func NewService(s store.Store, pepper string, opts ...Option) (Service, error) {
	d, err := newDigester(pepper)
	if err != nil {
		return nil, err
	}
	svc := &service{
		store:       s,
		verifier:    CPFVerifier{},
		digester:    d,
		rateLimiter: rate.NewLimiter(rate.Every(1*time.Minute/5), 5), // 5 requests per minute
		tracer:      otel.Tracer("bookledger/membership"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// RegisterPerson creates a new person after checking the national id.
func (s *service) RegisterPerson(ctx context.Context, in NewPerson) (domain.Person, error) {
	ctx, span := s.tracer.Start(ctx, "membership.register")
	defer span.End()

	if !s.rateLimiter.Allow() {
		return domain.Person{}, domain.Unavailable("registration rate limit exceeded, try again later")
	}

	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.NationalID = digitsOnly(in.NationalID)
	if err := domain.Validate(in); err != nil {
		return domain.Person{}, err
	}
	if !s.verifier.Valid(in.NationalID) {
		return domain.Person{}, domain.InvalidArgument("national_id has invalid check digits")
	}

	digest, err := s.digester.digest(in.NationalID)
	if err != nil {
		return domain.Person{}, err
	}

	person := domain.Person{
		FirstName:        in.FirstName,
		LastName:         in.LastName,
		NationalIDDigest: digest,
		NationalIDSuffix: suffix(in.NationalID),
	}
	err = s.store.Update(ctx, func(tx store.Tx) error {
		if _, found, err := tx.PersonByDigest(ctx, digest); err != nil {
			return err
		} else if found {
			return domain.Conflict("national id ending in %s is already registered", person.NationalIDSuffix)
		}
		if err := tx.InsertPerson(ctx, &person); err != nil {
			return err
		}
		_, err := journal.Record(ctx, tx, journal.AggregatePerson, person.ID, journal.PersonRegistered, journal.PersonRegisteredEvent{
			FirstName:        person.FirstName,
			LastName:         person.LastName,
			NationalIDSuffix: person.NationalIDSuffix,
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		return domain.Person{}, err
	}

	span.SetAttributes(attribute.Int64("person.id", person.ID))
	log.Info().Int64("person_id", person.ID).Msg("person registered")
	return person, nil
}

// GetPerson retrieves a person by their ID.
func (s *service) GetPerson(ctx context.Context, id int64) (domain.Person, error) {
	var person domain.Person
	err := s.store.View(ctx, func(r store.Reader) error {
		p, found, err := r.Person(ctx, id)
		if err != nil {
			return err
		}
		if !found {
			return domain.NotFound("person %d not found", id)
		}
		person = p
		return nil
	})
	return person, err
}

// ListPeople returns up to limit people ordered by id.
func (s *service) ListPeople(ctx context.Context, limit int) ([]domain.Person, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	var people []domain.Person
	err := s.store.View(ctx, func(r store.Reader) error {
		var err error
		people, err = r.People(ctx, limit)
		return err
	})
	return people, err
}

// DeletePerson removes a person who holds no active loan.
func (s *service) DeletePerson(ctx context.Context, id int64) error {
	ctx, span := s.tracer.Start(ctx, "membership.delete", trace.WithAttributes(attribute.Int64("person.id", id)))
	defer span.End()

	err := s.store.Update(ctx, func(tx store.Tx) error {
		p, found, err := tx.Person(ctx, id)
		if err != nil {
			return err
		}
		if !found {
			return domain.NotFound("person %d not found", id)
		}
		active, err := tx.Loans(ctx, store.LoanQuery{PersonID: id, Status: domain.LoanActive, Limit: 1})
		if err != nil {
			return err
		}
		if len(active) > 0 {
			return domain.Conflict("%s holds active loan %d and cannot be removed", p.FullName(), active[0].ID)
		}
		if err := tx.DeletePerson(ctx, id); err != nil {
			return err
		}
		_, err = journal.Record(ctx, tx, journal.AggregatePerson, id, journal.PersonRemoved, journal.PersonRemovedEvent{})
		return err
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	log.Info().Int64("person_id", id).Msg("person removed")
	return nil
}
