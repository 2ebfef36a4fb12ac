package appctx

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/corrinfell/mediaforge/internal/jobkind"
	"github.com/corrinfell/mediaforge/internal/sandbox"
)

// versionCheckTimeout bounds the "-version" probe so a hung binary
// can't stall startup indefinitely.
const versionCheckTimeout = 5 * time.Second

var ffmpegVersionLine = regexp.MustCompile(`(?i)^(ffmpeg|ffprobe) version`)

// EnsureAvailable resolves the distilled spec's dual-entry-point
// check_ffmpeg into a single call, per §9: both ffmpeg and ffprobe
// must exit zero AND print a parseable "ffmpeg/ffprobe version ..."
// line on stdout, or startup fails. Ground truth:
// dependency_manager.py's check_ffmpeg runs "<bin> -version" with a
// 5s timeout and looks for the literal substring "ffmpeg version" in
// stdout.
func EnsureAvailable(ctx context.Context, sb *sandbox.Sandbox, ffmpegPath, ffprobePath string) (string, error) {
	ffmpegVersion, err := checkBinary(ctx, sb, ffmpegPath)
	if err != nil {
		return "", err
	}
	ffprobeVersion, err := checkBinary(ctx, sb, ffprobePath)
	if err != nil {
		return "", err
	}
	return ffmpegVersion + " / " + ffprobeVersion, nil
}

func checkBinary(ctx context.Context, sb *sandbox.Sandbox, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, versionCheckTimeout)
	defer cancel()

	policy := sandbox.NewPolicy()
	policy.Timeout = versionCheckTimeout
	policy.AllowCommand(path)

	h, spawnErr := sb.Spawn(ctx, policy, sandbox.SpawnRequest{
		Command: path,
		Args:    []string{"-version"},
	})
	if spawnErr != nil {
		return "", asStartupError(path, spawnErr)
	}

	code, waitErr := h.Wait()
	if waitErr != nil {
		return "", jobkind.Wrap(jobkind.KindSpawnFailed, path+" check failed to run", waitErr)
	}
	if code != 0 {
		return "", jobkind.New(jobkind.KindSpawnFailed, path+" check exited non-zero")
	}

	out := string(h.Output())
	firstLine := out
	if i := strings.IndexByte(out, '\n'); i >= 0 {
		firstLine = out[:i]
	}
	if !ffmpegVersionLine.MatchString(strings.TrimSpace(firstLine)) {
		return "", jobkind.New(jobkind.KindSpawnFailed, path+" check: version string not found in output")
	}
	return strings.TrimSpace(firstLine), nil
}

func asStartupError(path string, err *jobkind.Error) error {
	return jobkind.Wrap(err.Kind, path+" unavailable: "+err.Message, err.Cause)
}
