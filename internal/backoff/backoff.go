package backoff

import "time"

// Backoff computes the delay before the next attempt given how many
// attempts have already failed.
type Backoff interface {
	Duration(retries int) time.Duration
}

// ExponentialBackoff grows the delay by a constant factor per retry:
// Interval * Base^retries.
type ExponentialBackoff struct {
	Interval time.Duration
	Base     int
}

var _ Backoff = &ExponentialBackoff{}

func (b *ExponentialBackoff) Duration(retries int) time.Duration {
	d := b.Interval
	for i := 0; i < retries; i++ {
		d *= time.Duration(b.Base)
	}
	return d
}

// ConstantBackoff returns the same delay for every retry.
type ConstantBackoff struct {
	Interval time.Duration
}

var _ Backoff = &ConstantBackoff{}

func (b *ConstantBackoff) Duration(retries int) time.Duration {
	return b.Interval
}

// ScheduledBackoff follows an explicit schedule. Retries beyond the end of
// the schedule keep returning the last value; an empty schedule returns 0.
type ScheduledBackoff struct {
	Schedule []time.Duration
}

var _ Backoff = &ScheduledBackoff{}

func (b *ScheduledBackoff) Duration(retries int) time.Duration {
	if len(b.Schedule) == 0 {
		return 0
	}
	if retries >= len(b.Schedule) {
		return b.Schedule[len(b.Schedule)-1]
	}
	return b.Schedule[retries]
}
