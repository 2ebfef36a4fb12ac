package audit

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/corrinfell/mediaforge/internal/sandbox"
)

func newTestSink(buf *bytes.Buffer) *Sink {
	return &Sink{log: slog.New(slog.NewTextHandler(buf, nil))}
}

func TestEmitStartLogsAtInfo(t *testing.T) {
	var buf bytes.Buffer
	s := newTestSink(&buf)

	s.Emit(sandbox.AuditEvent{
		CorrelationID: "corr-1",
		Kind:          sandbox.AuditStart,
		Command:       "ffmpeg",
		At:            time.Now(),
	})

	out := buf.String()
	if !strings.Contains(out, "level=INFO") {
		t.Fatalf("expected info level, got: %s", out)
	}
	if !strings.Contains(out, "corr-1") || !strings.Contains(out, "ffmpeg") {
		t.Fatalf("expected correlation id and command in output, got: %s", out)
	}
}

func TestEmitPolicyViolationLogsAtWarn(t *testing.T) {
	var buf bytes.Buffer
	s := newTestSink(&buf)

	s.Emit(sandbox.AuditEvent{
		CorrelationID: "corr-2",
		Kind:          sandbox.AuditPolicyViolation,
		Command:       "rm",
		Detail:        "command not in allow-list",
		At:            time.Now(),
	})

	out := buf.String()
	if !strings.Contains(out, "level=WARN") {
		t.Fatalf("expected warn level, got: %s", out)
	}
	if !strings.Contains(out, "command not in allow-list") {
		t.Fatalf("expected detail in output, got: %s", out)
	}
}
