package jobs

import "time"

const (
	backoffBase = time.Minute
	backoffCap  = time.Hour
)

// Backoff returns the delay before the next run of a job that has failed the
// given number of attempts. Doubles from one minute, capped at one hour.
func Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	// 2^6 minutes already exceeds the cap.
	if attempts > 7 {
		return backoffCap
	}
	d := backoffBase << (attempts - 1)
	if d > backoffCap {
		return backoffCap
	}
	return d
}
