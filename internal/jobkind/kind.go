// Package jobkind defines the shared vocabulary of job statuses and
// error kinds used across the core (C1, C3, C4, C7, C8). It has no
// dependencies on any other internal package so every component can
// import it without creating a cycle — the internal/jobs/errors.go
// sentinel-error pattern, generalized into a typed enum shared by
// several packages instead of owned by one.
package jobkind

import "time"

// Status is the terminal disposition of a JobResult.
type Status string

const (
	StatusOK        Status = "ok"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusSkipped   Status = "skipped"
)

// ErrorKind distinguishes why a job did not reach StatusOK. These are
// kinds, not Go error types — every operation in the core returns either
// a value or one of these, per the exceptions-to-typed-error-kinds
// design note.
type ErrorKind string

const (
	// Configuration errors are fatal before any job runs.
	KindConfiguration ErrorKind = "configuration"
	// KindIntake covers a file that could not be listed, renamed, or
	// validated; always non-fatal, contributes a skipped result.
	KindIntake ErrorKind = "intake"
	// KindProbe covers a probe failure; non-fatal, job runs degraded.
	KindProbe ErrorKind = "probe"
	// KindSpawnFailed covers a sandbox-refused or missing binary.
	KindSpawnFailed ErrorKind = "spawn_failed"
	// KindPolicyViolation covers a sandbox policy rejection distinct
	// from a missing binary (denied path, denied command, denied arg).
	KindPolicyViolation ErrorKind = "policy_violation"
	// KindTimeout covers the wall-clock deadline being exceeded.
	KindTimeout ErrorKind = "timeout"
	// KindNonZeroExit covers the transcoder exiting with a nonzero code.
	KindNonZeroExit ErrorKind = "nonzero_exit"
	// KindProgressStalled covers no progress event for longer than the
	// stall threshold while the child is still running.
	KindProgressStalled ErrorKind = "progress_stalled"
	// KindOutputMissing covers a zero-exit child with absent artifacts.
	KindOutputMissing ErrorKind = "output_missing"
	// KindCancellation covers a batch-wide external cancellation.
	KindCancellation ErrorKind = "cancellation"
)

// Fatal reports whether this error kind converts to an abort when
// stop_on_fatal is set for the first job attempted, per §4.4.
func (k ErrorKind) Fatal() bool {
	return k == KindSpawnFailed || k == KindPolicyViolation
}

// Error is the typed sum-type result for a failed operation: a kind,
// a human-readable message, and an optional wrapped cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// JobResult is the terminal, immutable outcome of one job, per the
// data model's JobResult entry. Shared across C1/C4/C5/C6 so none of
// them need to import each other just to pass results around.
type JobResult struct {
	JobID     string
	Status    Status
	StartedAt time.Time
	EndedAt   time.Time
	ExitCode  *int
	ErrorKind *ErrorKind
	Message   string
}

// New constructs an *Error with the given kind and message.
func New(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error wrapping an existing error under the given
// kind.
func Wrap(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}
