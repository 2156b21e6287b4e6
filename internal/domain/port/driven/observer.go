package driven

import (
	"time"

	"github.com/ericfisherdev/sungazer/internal/domain/model"
)

// FetchObserver receives fetch outcomes for metrics export.
type FetchObserver interface {
	ObserveFetch(result model.FetchResult)
	ObserveCycle(duration time.Duration)
	ObserveQuota(usage model.QuotaUsage)
}
