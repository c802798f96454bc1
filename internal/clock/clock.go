// Package clock provides the monotonic wall-clock epoch source used to
// stamp arrivals and drive aligned window flushes.
package clock

import "time"

// Clock is the capability every timing-sensitive component depends on,
// never time.Now() directly, so tests can drive the pipeline
// deterministically.
type Clock interface {
	// NowEpoch returns the current wall-clock time as seconds since the
	// Unix epoch, with fractional precision.
	NowEpoch() float64
}

// System is the production Clock backed by time.Now().
type System struct{}

// NowEpoch implements Clock.
func (System) NowEpoch() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// FormatUTCMillis formats an epoch-seconds value as
// "YYYY-MM-DD HH:MM:SS.mmm" in UTC, the tempo format used on WriteJobs
// and violation CSV rows.
func FormatUTCMillis(epoch float64) string {
	sec := int64(epoch)
	nsec := int64((epoch - float64(sec)) * 1e9)
	t := time.Unix(sec, nsec).UTC()
	return t.Format("2006-01-02 15:04:05.000")
}
