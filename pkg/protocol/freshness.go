package protocol

import (
	"time"

	"github.com/openarcloud/spatialdds-discovery/pkg/spatial"
)

// FreshAt reports whether a stamped artifact is still live at the given
// instant. A zero or negative TTL means always fresh; the freshness window
// is closed, so stamp == now - ttl is still fresh.
func FreshAt(stamp spatial.Time, ttlSec int64, now time.Time) bool {
	if ttlSec <= 0 {
		return true
	}
	age := float64(now.UnixNano())/1e9 - stamp.Seconds()
	return age <= float64(ttlSec)
}

// Fresh is FreshAt against the wall clock.
func Fresh(stamp spatial.Time, ttlSec int64) bool {
	return FreshAt(stamp, ttlSec, time.Now())
}
