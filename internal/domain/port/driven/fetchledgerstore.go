package driven

import (
	"context"

	"github.com/ericfisherdev/sungazer/internal/domain/model"
)

// FetchLedgerStore defines the driven port for fetch ledger persistence.
type FetchLedgerStore interface {
	// Get returns the record for key, or nil if the key was never attempted.
	Get(ctx context.Context, key model.FetchKey) (*model.FetchRecord, error)
	Upsert(ctx context.Context, rec model.FetchRecord) error
	// List returns all records, filtered to one vendor when vendor is non-empty.
	List(ctx context.Context, vendor model.Vendor) ([]model.FetchRecord, error)
}
