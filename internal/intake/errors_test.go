package intake

import (
	"errors"
	"testing"
)

func TestCompilePatternRequiresCaptureGroup(t *testing.T) {
	_, err := CompilePattern(`^movie\.mp4$`, true)
	if !errors.Is(err, ErrNoCaptureGroup) {
		t.Fatalf("expected ErrNoCaptureGroup, got %v", err)
	}
}

func TestCompilePatternAcceptsCaptureGroup(t *testing.T) {
	re, err := CompilePattern(`^(movie)\.mp4$`, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if re.NumSubexp() != 1 {
		t.Fatalf("expected 1 capture group, got %d", re.NumSubexp())
	}
}

func TestCompilePatternRejectsInvalidRegex(t *testing.T) {
	_, err := CompilePattern(`(unclosed`, false)
	if err == nil {
		t.Fatal("expected error for invalid regex")
	}
}
