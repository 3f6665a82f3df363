package service

import (
	"time"

	"github.com/linkbio/commerce-service/internal/model"
)

// HoldPolicy decides when a sale credit becomes withdrawable. Expiry is
// evaluated lazily at read time by comparing available_at to now; there
// is no background job.
type HoldPolicy struct {
	DefaultDays int
}

// Days returns the hold period for a creator, falling back to the
// platform default when the creator has no override.
func (p HoldPolicy) Days(c *model.Creator) int {
	if c != nil && c.HoldPeriodDays != nil {
		return *c.HoldPeriodDays
	}
	return p.DefaultDays
}

// AvailableAt computes when a credit posted at now clears the hold.
func (p HoldPolicy) AvailableAt(now time.Time, c *model.Creator) time.Time {
	return now.Add(time.Duration(p.Days(c)) * 24 * time.Hour)
}
