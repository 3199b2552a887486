package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKinds(t *testing.T) {
	err := fmt.Errorf("lending: %w", Conflict("book %q is unavailable", "Dune"))

	assert.ErrorIs(t, err, ErrConflict)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, `lending: book "Dune" is unavailable`, err.Error())
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
}

func TestStorageKeepsDomainKinds(t *testing.T) {
	assert.NoError(t, Storage("commit", nil))

	nf := NotFound("book 3 not found")
	assert.Same(t, nf, Storage("commit", nf))

	cause := errors.New("connection reset")
	err := Storage("commit", cause)
	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "commit: connection reset", err.Error())
}

func TestValidate(t *testing.T) {
	type request struct {
		Name     string `json:"name" validate:"min=2,max=5"`
		Quantity int    `json:"quantity" validate:"gte=0,lte=100"`
	}

	require.NoError(t, Validate(request{Name: "Dune"}))

	err := Validate(request{Name: "D"})
	require.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, "name must have at least 2 characters", err.Error())

	err = Validate(request{Name: "Dune", Quantity: -1})
	require.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, "quantity must be greater than or equal to 0", err.Error())

	err = Validate(request{Name: "Dune", Quantity: 101})
	require.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, "quantity must be less than or equal to 100", err.Error())
}

func TestLoanStatus(t *testing.T) {
	assert.True(t, Loan{Status: LoanActive}.Active())
	assert.False(t, Loan{Status: LoanReturned}.Active())
	assert.Equal(t, "returned", LoanReturned.String())
	assert.Equal(t, "Ana Lima", Person{FirstName: "Ana", LastName: "Lima"}.FullName())
}
