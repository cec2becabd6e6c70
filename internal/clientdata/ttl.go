package clientdata

import "time"

// TTL constants for upstream rate responses.
const (
	// Today's rates can still be republished by the upstream during the day.
	TTLCurrentDay = time.Hour
	// Rates for a past business day never change.
	TTLHistorical = 30 * 24 * time.Hour
	// Empty responses (weekends, holidays, not yet published) are retried soon.
	TTLEmpty = 15 * time.Minute
)

// TTLForDate picks the TTL for data belonging to date (YYYYMMDD).
func TTLForDate(date string, now time.Time) time.Duration {
	if date >= now.Format("20060102") {
		return TTLCurrentDay
	}
	return TTLHistorical
}
