package intake

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrNoCaptureGroup is returned by CompilePattern when a rename pattern
// has no capture group to source the canonical name from.
var ErrNoCaptureGroup = errors.New("intake: pattern has no capture group")

// CompilePattern compiles pattern and, if requireCapture is set,
// verifies it has at least one capture group before handing it to
// Rename — the same precondition the config layer already checks for
// file_rename_pattern, duplicated here so Rename can be called
// directly in tests without going through config validation first.
func CompilePattern(pattern string, requireCapture bool) (*regexp.Regexp, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("intake: invalid pattern %q: %w", pattern, err)
	}
	if requireCapture && re.NumSubexp() < 1 {
		return nil, fmt.Errorf("%w: %q", ErrNoCaptureGroup, pattern)
	}
	return re, nil
}
