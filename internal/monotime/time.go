// Package monotime provides a monotonic instant with microsecond resolution.
//
// TFRC timestamps (packet send times, arrival times, timer deadlines) are
// plain integers, which makes the rate math cheaper than time.Time and avoids
// accidentally comparing wall clocks from different machines.
package monotime

import "time"

// A Time is a point on a monotonic clock, in microseconds.
// The zero value means "not set".
type Time int64

var startTime = time.Now()

// Now returns the current monotonic time. It is never zero.
func Now() Time {
	return Time(1 + time.Since(startTime).Microseconds())
}

// Add returns t + d.
func (t Time) Add(d time.Duration) Time {
	return t + Time(d.Microseconds())
}

// Sub returns t - u as a duration.
func (t Time) Sub(u Time) time.Duration {
	return time.Duration(t-u) * time.Microsecond
}

// Before reports whether t is before u.
func (t Time) Before(u Time) bool { return t < u }

// After reports whether t is after u.
func (t Time) After(u Time) bool { return t > u }

// Equal reports whether t and u are the same instant.
func (t Time) Equal(u Time) bool { return t == u }

// IsZero reports whether t is the zero (unset) value.
func (t Time) IsZero() bool { return t == 0 }

// Since returns the time elapsed since t.
func Since(t Time) time.Duration { return Now().Sub(t) }

// Until returns the time remaining until t.
func Until(t Time) time.Duration { return t.Sub(Now()) }
