package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/sungazer/internal/domain/model"
)

// ErrSiteNotFound is returned when a site ID has no stored record.
var ErrSiteNotFound = errors.New("site not found")

// SiteStore defines the driven port for canonical site persistence.
type SiteStore interface {
	// Upsert inserts the site or overwrites every field of the stored row with
	// the same ID. LastUpdated never moves backward.
	Upsert(ctx context.Context, site model.Site) error
	GetByID(ctx context.Context, id string) (model.Site, error)
	ListByVendor(ctx context.Context, vendor model.Vendor) ([]model.Site, error)
	ListAll(ctx context.Context) ([]model.Site, error)
	// Delete removes the site and, by cascade, its devices and energy readings.
	Delete(ctx context.Context, id string) error
}
