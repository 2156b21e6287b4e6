package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/sungazer/internal/domain/model"
)

// EnergyStore defines the driven port for site energy timeseries.
type EnergyStore interface {
	// UpsertReadings writes readings for one site keyed by timestamp.
	UpsertReadings(ctx context.Context, siteID string, readings []model.EnergyReading) error
	ListBySite(ctx context.Context, siteID string, from, to time.Time) ([]model.EnergyReading, error)
}
