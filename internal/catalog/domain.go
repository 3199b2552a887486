// internal/catalog/domain.go
package catalog

import (
	"bookledger/internal/domain"
	"bookledger/internal/ledger"
)

const defaultListLimit = 25

// NewBook is the input of RegisterBook. A zero StatusID registers the book
// as Available.
type NewBook struct {
	Name        string          `json:"name" validate:"min=2,max=60"`
	Description string          `json:"description" validate:"min=31,max=350"`
	PublisherID int64           `json:"publisher_id"`
	StatusID    domain.StatusID `json:"status_id"`
	Quantity    int             `json:"quantity" validate:"gte=0,lte=2147483647"`
}

// NewPublisher is the input of AddPublisher.
type NewPublisher struct {
	Name string `json:"name" validate:"min=1,max=120"`
}

// BulkResult reports how many books a bulk publisher reassignment rewrote.
type BulkResult struct {
	Updated int    `json:"updated"`
	Message string `json:"message"`
}

// StockReport is the stock record together with a reconciliation against
// the books it totals.
type StockReport struct {
	Stock domain.Stock  `json:"stock"`
	Audit ledger.Report `json:"audit"`
}
