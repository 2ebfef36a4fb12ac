package scheduler

import "errors"

// Sentinel errors for batch setup problems, checkable with errors.Is().
var (
	// ErrNoJobs is returned when Process is called with an empty batch.
	ErrNoJobs = errors.New("scheduler: no jobs to process")
)
