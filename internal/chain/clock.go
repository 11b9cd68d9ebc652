package chain

import "time"

// Clock supplies the creation timestamp of new records.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a plain function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// FixedClock always reports t. Useful when digests must be reproducible.
func FixedClock(t time.Time) Clock {
	return ClockFunc(func() time.Time { return t })
}

// unixSeconds converts t to seconds since the epoch. Times before the epoch
// map to 0 rather than failing record construction.
func unixSeconds(t time.Time) uint64 {
	s := t.Unix()
	if s < 0 {
		return 0
	}
	return uint64(s)
}
