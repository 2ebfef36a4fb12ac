package transcode

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/corrinfell/mediaforge/internal/jobkind"
	"github.com/corrinfell/mediaforge/internal/sandbox"
)

// fakeTranscoderScript writes a tiny shell script standing in for
// ffmpeg, in the style of gated-on-availability tests that use
// real binaries in _test.go files — here the "binary" is a disposable
// shell script rather than real ffmpeg, so the scenarios from the
// literal end-to-end list run without any media tooling installed.
func fakeTranscoderScript(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-ffmpeg.sh")
	script := "#!/bin/sh\n" + body
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("failed to write fake transcoder script: %v", err)
	}
	return path
}

func newTestDriver(t *testing.T, fakeFFmpeg string) (*Driver, sandbox.Policy) {
	t.Helper()
	sb := sandbox.New(nil)
	policy := sandbox.NewPolicy()
	policy.AllowCommand(fakeFFmpeg)
	policy.AllowCommand("ffprobe") // probe failures degrade gracefully; no real ffprobe needed
	policy.AllowReadPath("/")
	policy.AllowWritePath("/")
	return New(sb, fakeFFmpeg, "ffprobe-not-installed"), policy
}

// Scenario 6: nonzero exit preserves the last 10 of 12 emitted lines.
func TestRunNonZeroExitPreservesTail(t *testing.T) {
	var body string
	for i := 1; i <= 12; i++ {
		body += "echo line" + itoa(i) + " 1>&2\n"
	}
	body += "exit 2\n"
	fake := fakeTranscoderScript(t, body)

	driver, policy := newTestDriver(t, fake)
	outRoot := t.TempDir()

	job := Job{ID: "job-1", InputPath: fake, OutputRoot: outRoot}
	spec := Spec{Ladder: []Rung{{Height: 480, Bitrate: 500_000}}}

	result := driver.Run(context.Background(), job, spec, policy, nil)

	if result.Status != jobkind.StatusFailed {
		t.Fatalf("expected failed status, got %v", result.Status)
	}
	if result.ErrorKind == nil || *result.ErrorKind != jobkind.KindNonZeroExit {
		t.Fatalf("expected KindNonZeroExit, got %v", result.ErrorKind)
	}
	wantTail := "tail: line3 | line4 | line5 | line6 | line7 | line8 | line9 | line10 | line11 | line12"
	if !strings.HasSuffix(result.Message, wantTail) {
		t.Fatalf("expected the last 10 of 12 lines in order, got %q", result.Message)
	}
}

// Scenario 5: stall timeout fires when no progress arrives before the
// threshold, and the child is terminated.
func TestRunStallTimeout(t *testing.T) {
	fake := fakeTranscoderScript(t, "echo 'Duration: 00:00:10.00, start: 0.000000'\nsleep 30\n")

	driver, policy := newTestDriver(t, fake)
	outRoot := t.TempDir()

	job := Job{ID: "job-stall", InputPath: fake, OutputRoot: outRoot}
	spec := Spec{
		Ladder:       []Rung{{Height: 480, Bitrate: 500_000}},
		StallTimeout: 500 * time.Millisecond,
		Grace:        200 * time.Millisecond,
	}

	start := time.Now()
	result := driver.Run(context.Background(), job, spec, policy, nil)
	elapsed := time.Since(start)

	if result.Status != jobkind.StatusFailed {
		t.Fatalf("expected failed status, got %v", result.Status)
	}
	if result.ErrorKind == nil || *result.ErrorKind != jobkind.KindProgressStalled {
		t.Fatalf("expected KindProgressStalled, got %v", result.ErrorKind)
	}
	if elapsed > 5*time.Second {
		t.Fatalf("stall+terminate took too long: %v", elapsed)
	}
}

// Scenario 1 (abridged): a fake transcoder that actually lays down the
// expected HLS artifacts succeeds and reports ok.
func TestRunHappyPathVerifiesOutput(t *testing.T) {
	outRoot := t.TempDir()
	renditionDir := filepath.Join(outRoot, "v0")

	body := "mkdir -p '" + renditionDir + "'\n" +
		"touch '" + filepath.Join(renditionDir, "master.m3u8") + "'\n" +
		"touch '" + filepath.Join(renditionDir, "seg_000.ts") + "'\n" +
		"echo progress=end\n"
	fake := fakeTranscoderScript(t, body)

	driver, policy := newTestDriver(t, fake)

	job := Job{ID: "job-happy", InputPath: fake, OutputRoot: outRoot}
	spec := Spec{Ladder: []Rung{{Height: 480, Bitrate: 500_000}}}

	result := driver.Run(context.Background(), job, spec, policy, nil)

	if result.Status != jobkind.StatusOK {
		t.Fatalf("expected ok status, got %v (%s)", result.Status, result.Message)
	}
	if result.ExitCode == nil || *result.ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %v", result.ExitCode)
	}
}

func TestRunCancellation(t *testing.T) {
	fake := fakeTranscoderScript(t, "sleep 30\n")

	driver, policy := newTestDriver(t, fake)
	outRoot := t.TempDir()

	job := Job{ID: "job-cancel", InputPath: fake, OutputRoot: outRoot}
	spec := Spec{Ladder: []Rung{{Height: 480, Bitrate: 500_000}}, Grace: 200 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	result := driver.Run(ctx, job, spec, policy, nil)
	elapsed := time.Since(start)

	if result.Status != jobkind.StatusFailed {
		t.Fatalf("expected failed status on cancellation, got %v", result.Status)
	}
	if result.ErrorKind == nil || *result.ErrorKind != jobkind.KindCancellation {
		t.Fatalf("expected KindCancellation, got %v", result.ErrorKind)
	}
	if elapsed > 5*time.Second {
		t.Fatalf("cancellation+terminate took too long: %v", elapsed)
	}
}

// The wall deadline fires while the child is still writing output and
// long before the 5s stall threshold could, and is reported as the
// distinct KindTimeout failure kind.
func TestRunWallTimeout(t *testing.T) {
	fake := fakeTranscoderScript(t, "for i in $(seq 1 40); do echo progress=$i; sleep 0.05; done\n")

	driver, policy := newTestDriver(t, fake)
	outRoot := t.TempDir()

	job := Job{ID: "job-wall-timeout", InputPath: fake, OutputRoot: outRoot}
	spec := Spec{
		Ladder:       []Rung{{Height: 480, Bitrate: 500_000}},
		StallTimeout: 5 * time.Second,
		WallTimeout:  300 * time.Millisecond,
		Grace:        200 * time.Millisecond,
	}

	start := time.Now()
	result := driver.Run(context.Background(), job, spec, policy, nil)
	elapsed := time.Since(start)

	if result.Status != jobkind.StatusFailed {
		t.Fatalf("expected failed status, got %v", result.Status)
	}
	if result.ErrorKind == nil || *result.ErrorKind != jobkind.KindTimeout {
		t.Fatalf("expected KindTimeout, got %v", result.ErrorKind)
	}
	if elapsed > 5*time.Second {
		t.Fatalf("wall timeout+terminate took too long: %v", elapsed)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := ""
	for n > 0 {
		digits = string(rune('0'+n%10)) + digits
		n /= 10
	}
	return digits
}
