// Package ids generates identifiers used across the core: job ids and
// process correlation ids for the sandbox's audit trail.
package ids

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// New returns a random identifier suitable for a job id or a process
// correlation id. A job queue elsewhere in the corpus generated ids
// from a mutex-guarded counter plus UnixNano; this module has a real
// UUID dependency already in its require block, so it uses that
// instead.
func New() string {
	return uuid.NewString()
}

// Fingerprint derives a stable identifier for a Job from its input path
// and the codec settings that will be applied to it, so the same
// (path, spec) pair always yields the same fingerprint even across runs.
func Fingerprint(inputPath string, specKey string) string {
	sum := sha256.Sum256([]byte(inputPath + "\x00" + specKey))
	return hex.EncodeToString(sum[:])[:16]
}
