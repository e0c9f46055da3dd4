package trigger

import (
	"time"

	"github.com/relaycron/jobstore/internal/domain"
)

// computeNextBlob never reschedules: a blob trigger's payload is opaque to
// the store (spec.md §9), so it fires exactly once at whatever
// next_fire_time was last set and then has nothing further to compute.
func computeNextBlob(_ *domain.BlobTrigger, _ *domain.Calendar, _ time.Time) (*time.Time, error) {
	return nil, nil
}
