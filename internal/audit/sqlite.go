package audit

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/corrinfell/mediaforge/internal/logger"
	"github.com/corrinfell/mediaforge/internal/sandbox"
)

// schema is the append-only audit archive: one row per sandbox audit
// event, narrower than a job-state table since nothing here is ever
// updated or deleted, adapted from the job-queue schema's
// connection/migration shape (internal/store/sqlite.go) down to a
// single table with no foreign keys or ordering concerns.
const schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	correlation_id TEXT NOT NULL,
	kind           TEXT NOT NULL,
	command        TEXT NOT NULL,
	detail         TEXT NOT NULL DEFAULT '',
	at             TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_events_correlation ON audit_events(correlation_id);
CREATE INDEX IF NOT EXISTS idx_audit_events_at ON audit_events(at);
`

// SQLiteSink implements sandbox.AuditSink by appending every event to a
// SQLite database, so an operator can query the full audit trail of a
// run after the fact instead of grepping log files.
type SQLiteSink struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewSQLite opens (creating if needed) a SQLite-backed audit archive at
// path, in WAL mode for the same reason the job-queue store uses it: a
// writer (the drain goroutine) and an operator running ad-hoc queries
// against the same file shouldn't block each other.
func NewSQLite(path string) (*SQLiteSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create audit db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit schema: %w", err)
	}

	return &SQLiteSink{db: db, path: path}, nil
}

// Emit inserts one audit event. A write failure is logged rather than
// surfaced, since AuditSink.Emit has no error return and the sandbox's
// own drop-oldest queue already protects callers from a stalled sink —
// this sink must not propagate failure back into the spawn path.
func (s *SQLiteSink) Emit(ev sandbox.AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO audit_events (correlation_id, kind, command, detail, at) VALUES (?, ?, ?, ?, ?)`,
		ev.CorrelationID, string(ev.Kind), ev.Command, ev.Detail, ev.At.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		logger.Warn("audit: failed to persist event to sqlite", "error", err, "correlation_id", ev.CorrelationID)
	}
}

// Close closes the underlying database connection.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteSink) Path() string {
	return s.path
}

// multiSink fans one audit event out to every wrapped sink in order, so
// the sandbox can drive both the structured-log sink and the sqlite
// archive from the single AuditSink the Sandbox holds.
type multiSink struct {
	sinks []sandbox.AuditSink
}

// Fanout combines sinks into one AuditSink that calls Emit on each,
// skipping nil entries.
func Fanout(sinks ...sandbox.AuditSink) sandbox.AuditSink {
	var live []sandbox.AuditSink
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	return &multiSink{sinks: live}
}

func (m *multiSink) Emit(ev sandbox.AuditEvent) {
	for _, s := range m.sinks {
		s.Emit(ev)
	}
}
