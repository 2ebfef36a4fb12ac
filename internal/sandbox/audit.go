package sandbox

import "time"

// AuditEventKind names the lifecycle events the sandbox must report,
// per §4.7's "every lifecycle event (start, end, policy-violation,
// validation-failure)".
type AuditEventKind string

const (
	AuditStart             AuditEventKind = "start"
	AuditEnd               AuditEventKind = "end"
	AuditPolicyViolation   AuditEventKind = "policy_violation"
	AuditValidationFailure AuditEventKind = "validation_failure"
)

// AuditEvent is one structured audit record, correlated to a single
// spawned process by CorrelationID.
type AuditEvent struct {
	CorrelationID string
	Kind          AuditEventKind
	Command       string
	Detail        string
	At            time.Time
}

// AuditSink receives audit events. It must not block the caller for
// long; the sandbox's own emission path is itself non-blocking
// (bounded queue, drop-oldest) regardless of what the sink does, so a
// slow sink only loses its own backlog, never stalls a spawn.
type AuditSink interface {
	Emit(AuditEvent)
}

// NopAuditSink discards every event. Used when the caller has not
// wired an audit backend.
type NopAuditSink struct{}

func (NopAuditSink) Emit(AuditEvent) {}
