// Package audit records the sandbox's process lifecycle events two
// ways: Sink writes structured log lines (a child logger carrying an
// "audit" attribute), and SQLiteSink appends the same events to a
// SQLite archive so they survive past the log file. Fanout combines
// both into the single sandbox.AuditSink the Sandbox holds. The SQLite
// schema is adapted from a job-queue store's connection/migration
// shape elsewhere in the corpus, narrowed to one append-only table
// since nothing here is ever updated or deleted (see DESIGN.md).
package audit

import (
	"log/slog"

	"github.com/corrinfell/mediaforge/internal/logger"
	"github.com/corrinfell/mediaforge/internal/sandbox"
)

// Sink implements sandbox.AuditSink over a slog logger tagged with an
// "audit" attribute, so audit records can be filtered out of ordinary
// operational logs by anything downstream that parses structured
// fields.
type Sink struct {
	log *slog.Logger
}

// New returns a Sink logging through the package-global logger, child-
// scoped with component=audit.
func New() *Sink {
	base := logger.Log
	if base == nil {
		base = slog.Default()
	}
	return &Sink{log: base.With("component", "audit")}
}

// Emit writes one audit event as a structured log line. Policy
// violations and validation failures log at warn; start/end log at
// info, so a quiet run still gets a one-line record per spawned
// process without drowning normal output in debug noise.
func (s *Sink) Emit(ev sandbox.AuditEvent) {
	attrs := []any{
		"correlation_id", ev.CorrelationID,
		"kind", string(ev.Kind),
		"command", ev.Command,
		"at", ev.At,
	}
	if ev.Detail != "" {
		attrs = append(attrs, "detail", ev.Detail)
	}

	switch ev.Kind {
	case sandbox.AuditPolicyViolation, sandbox.AuditValidationFailure:
		s.log.Warn("sandbox audit event", attrs...)
	default:
		s.log.Info("sandbox audit event", attrs...)
	}
}
