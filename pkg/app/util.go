package app

import "time"

// nextDelay returns the time until the next wall clock aligned interval
// boundary, so a 30m interval fires at :00 and :30 regardless of when the
// controller started.
func nextDelay(interval time.Duration) time.Duration {
	now := time.Now()
	return now.Truncate(interval).Add(interval).Sub(now)
}
