// Package humanize formats byte counts and durations for the summary
// lines printed at the end of a batch and in log messages.
//
// A worker package elsewhere in the corpus called into an internal/util
// package for this (util.FormatBytes, util.FormatDuration); that
// package's source was not retrieved for this module, so these two call
// sites are re-grounded directly on dustin/go-humanize instead.
package humanize

import (
	"time"

	"github.com/dustin/go-humanize"
)

// Bytes renders a byte count like "1.2 GB".
func Bytes(n int64) string {
	if n < 0 {
		return "-" + humanize.Bytes(uint64(-n))
	}
	return humanize.Bytes(uint64(n))
}

// Duration renders a duration like "2m31s". Sub-second durations round to
// the nearest second so ETAs don't flicker between fractional values.
func Duration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	return d.Round(time.Second).String()
}
