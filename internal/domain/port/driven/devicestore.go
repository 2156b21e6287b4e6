package driven

import (
	"context"

	"github.com/ericfisherdev/sungazer/internal/domain/model"
)

// DeviceStore defines the driven port for canonical device persistence.
type DeviceStore interface {
	// UpsertForSite upserts all devices of one site in a single transaction.
	// Devices missing from the batch are left untouched.
	UpsertForSite(ctx context.Context, siteID string, devices []model.Device) error
	ListBySite(ctx context.Context, siteID string) ([]model.Device, error)
}
