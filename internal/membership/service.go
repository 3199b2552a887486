// internal/membership/service.go
package membership

import (
	"context"

	"bookledger/internal/domain"
)

// Service defines the interface for person registration.
type Service interface {
	RegisterPerson(ctx context.Context, in NewPerson) (domain.Person, error)
	GetPerson(ctx context.Context, id int64) (domain.Person, error)
	ListPeople(ctx context.Context, limit int) ([]domain.Person, error)
	DeletePerson(ctx context.Context, id int64) error
}
