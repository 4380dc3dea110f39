// Package epoch implements the shared wall-clock origin every timestamp and
// lifetime in this system is measured against: integer minutes since a
// process-wide "minute zero" read once at startup from epoch.txt (or
// overridden by --initial-wall-clock).
package epoch

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Clock exposes minutes elapsed since a fixed origin. It is monotonic within
// a process: Now measures elapsed time from a monotonic clock reading taken
// when the Clock is built, so a wall-clock step backwards never lowers it.
type Clock struct {
	origin time.Time
	base   time.Time
}

// NewClock builds a Clock whose origin is the given UNIX-seconds timestamp.
func NewClock(originUnixSeconds int64) Clock {
	return Clock{origin: time.Unix(originUnixSeconds, 0).UTC(), base: time.Now()}
}

// Load reads the origin timestamp from path, a file holding a single decimal
// UNIX-seconds integer. It is the configuration-failure path described for
// missing epoch files: callers should treat a non-nil error as fatal at
// startup.
func Load(path string) (Clock, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Clock{}, fmt.Errorf("read epoch file %s: %w", path, err)
	}
	seconds, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return Clock{}, fmt.Errorf("parse epoch file %s: %w", path, err)
	}
	return NewClock(seconds), nil
}

// Now returns whole minutes elapsed since the clock's origin.
func (c Clock) Now() int64 {
	return int64((c.base.Sub(c.origin) + time.Since(c.base)) / time.Minute)
}

// Origin returns the UNIX-seconds timestamp this clock was built from, for
// logging and for writing a fresh epoch.txt.
func (c Clock) Origin() int64 {
	return c.origin.Unix()
}
