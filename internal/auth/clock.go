package auth

import "time"

// Clock supplies the current time. Injected so token and reset-window
// arithmetic is deterministic under test.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}
