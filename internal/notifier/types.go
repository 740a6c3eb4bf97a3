package notifier

import "time"

type Config struct {
	Enabled    bool
	OwnerIDs   []int64
	RatePerSec float64
	RetryMax   int
	RetryDelay time.Duration
	// Location renders times in reports; nil means UTC.
	Location *time.Location
}

const (
	defaultRatePerSec = 1
	defaultRetryDelay = 2 * time.Second
	sendTimeout       = 15 * time.Second
	maxFailuresListed = 10
)
