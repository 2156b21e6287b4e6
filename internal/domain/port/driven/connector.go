package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/sungazer/internal/domain/model"
)

// Connector defines the driven port for one vendor cloud API. Implementations
// perform network I/O only and return values already normalized to the
// canonical model. Errors are *ConnectorError values.
type Connector interface {
	Vendor() model.Vendor

	// ListSites returns site summaries, paginating until the vendor reports
	// no more pages or the safety cap is reached.
	ListSites(ctx context.Context) ([]model.Site, error)

	// GetSiteDetails returns the full site record for a vendor-native site ID,
	// plus any live metrics the details call carries.
	GetSiteDetails(ctx context.Context, vendorSiteID string) (model.SiteDetails, error)

	// GetSiteOverview returns partial live metrics. Vendors without an
	// overview endpoint fail with ErrNotSupported.
	GetSiteOverview(ctx context.Context, vendorSiteID string) (model.SiteOverview, error)

	// GetSiteEnergy returns daily production readings between start and end.
	GetSiteEnergy(ctx context.Context, vendorSiteID string, start, end time.Time) ([]model.EnergyReading, error)

	// GetDevices returns the site's equipment flattened into the shared
	// device type vocabulary.
	GetDevices(ctx context.Context, vendorSiteID string) ([]model.Device, error)

	// RefreshToken renews an OAuth access token. No vendor implements it yet;
	// it always fails with ErrNotSupported.
	RefreshToken(ctx context.Context) error

	// Usage reports the vendor's request count against its daily quota.
	Usage() model.QuotaUsage
}

// ConnectorFactory builds the connector variant matching a credential's vendor.
// Authentication material is parsed once, at construction.
type ConnectorFactory interface {
	New(cred model.Credential) (Connector, error)
	Usage() []model.QuotaUsage
}
