// internal/membership/domain.go
package membership

const defaultListLimit = 10

// NewPerson is the input of RegisterPerson. NationalID may carry the usual
// punctuation; only its digits are kept.
type NewPerson struct {
	FirstName  string `json:"first_name" validate:"min=1,max=59"`
	LastName   string `json:"last_name" validate:"min=1,max=59"`
	NationalID string `json:"national_id" validate:"len=11,numeric"`
}

// Verifier checks the check digits of a national id.
type Verifier interface {
	Valid(nationalID string) bool
}
