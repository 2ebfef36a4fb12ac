package appctx

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/corrinfell/mediaforge/internal/config"
)

func fakeFFmpegBinary(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-ffmpeg.sh")
	script := `#!/bin/sh
if [ "$1" = "-version" ]; then
  echo "ffmpeg version 6.0 test-fixture"
  exit 0
fi
last=""
for a in "$@"; do last="$a"; done
outroot=$(dirname "$(dirname "$last")")
mkdir -p "$outroot/v0"
touch "$outroot/v0/master.m3u8"
echo progress=end
exit 0
`
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("failed to write fake ffmpeg: %v", err)
	}
	return path
}

func fakeFFprobeBinary(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-ffprobe.sh")
	script := `#!/bin/sh
if [ "$1" = "-version" ]; then
  echo "ffprobe version 6.0 test-fixture"
  exit 0
fi
exit 0
`
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("failed to write fake ffprobe: %v", err)
	}
	return path
}

func TestLoadAppliesFlagsOverConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	input := t.TempDir()
	output := t.TempDir()

	body := `{"input_folder":"` + input + `","output_folder":"/from-file","max_parallel_jobs":4}`
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	overrideOutput := output
	overrides := config.CLIOverrides{Output: &overrideOutput}

	cfg, errs := Load(cfgPath, "", "", overrides)
	if len(errs) != 0 {
		t.Fatalf("unexpected validation errors: %+v", errs)
	}
	if cfg.OutputFolder != output {
		t.Fatalf("expected flag to override config file output_folder, got %q", cfg.OutputFolder)
	}
	if cfg.MaxParallelJobs != 4 {
		t.Fatalf("expected config file value to survive when no flag overrides it, got %d", cfg.MaxParallelJobs)
	}
}

func TestLoadValidatesMissingInputFolder(t *testing.T) {
	_, errs := Load("", "", "", config.CLIOverrides{})
	if len(errs) == 0 {
		t.Fatal("expected validation errors for a default config with no input folder")
	}
}

func TestRunEndToEndHappyPath(t *testing.T) {
	input := t.TempDir()
	output := filepath.Join(t.TempDir(), "out")

	if err := os.WriteFile(filepath.Join(input, "42-1.mp4"), []byte("fake media"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.InputFolder = input
	cfg.OutputFolder = output
	cfg.MaxParallelJobs = 1
	cfg.FFmpegPath = fakeFFmpegBinary(t)
	cfg.FFprobePath = fakeFFprobeBinary(t)
	cfg.FFmpegParams.Ladder = []config.Rung{{Height: 480, Bitrate: 500_000}}

	app := New(cfg)
	code := app.Run(context.Background())
	if code != ExitOK {
		t.Fatalf("expected exit code 0, got %d", code)
	}
}

func TestRunReportsFailureExitCode(t *testing.T) {
	input := t.TempDir()
	output := filepath.Join(t.TempDir(), "out")

	if err := os.WriteFile(filepath.Join(input, "42-1.mp4"), []byte("fake media"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.InputFolder = input
	cfg.OutputFolder = output
	cfg.MaxParallelJobs = 1
	cfg.FFprobePath = fakeFFprobeBinary(t)

	dir := t.TempDir()
	failing := filepath.Join(dir, "fake-ffmpeg-fail.sh")
	script := `#!/bin/sh
if [ "$1" = "-version" ]; then
  echo "ffmpeg version 6.0 test-fixture"
  exit 0
fi
exit 1
`
	if err := os.WriteFile(failing, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	cfg.FFmpegPath = failing
	cfg.FFmpegParams.Ladder = []config.Rung{{Height: 480, Bitrate: 500_000}}

	app := New(cfg)
	code := app.Run(context.Background())
	if code != ExitFailure {
		t.Fatalf("expected exit code 1 for a failed job, got %d", code)
	}
}
