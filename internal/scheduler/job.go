package scheduler

import (
	"time"

	"github.com/corrinfell/mediaforge/internal/jobkind"
)

// Options configures one call to Process. A zero value is valid:
// Parallelism falls back to the 0.75x-cores default, ProgressSink is
// optional, StopOnFatal defaults to off.
//
// The distilled contract names a separate CancelToken field; here
// cancellation is carried by the ctx parameter to Process instead, the
// idiomatic Go equivalent, so Options does not duplicate it.
type Options struct {
	Parallelism int
	ProgressSink ProgressFunc
	StopOnFatal  bool
}

// ProgressFunc receives the aggregate batch completion fraction,
// rate-limited to at most one call per 250ms.
type ProgressFunc func(fraction float64)

// BatchReport is the terminal, immutable outcome of one Process call.
type BatchReport struct {
	Results   []jobkind.JobResult
	StartedAt time.Time
	EndedAt   time.Time
	Total     int
	OK        int
	Failed    int
	Cancelled int

	// AuditDropped is the Sandbox's audit-queue drop count read at the
	// end of the batch, surfaced here so the final summary can report
	// how many audit events were lost to the bounded drop-oldest queue.
	AuditDropped uint64
}
