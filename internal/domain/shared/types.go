package shared

import (
	"time"
)

// TimeWindow is the half-open interval [From, To) used by reporting queries.
type TimeWindow struct {
	From time.Time
	To   time.Time
}
