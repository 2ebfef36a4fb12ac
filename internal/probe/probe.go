// Package probe queries a media file's duration, audio presence, and
// container format via ffprobe, under the sandbox, before a transcode
// is dispatched. Grounded on internal/ffmpeg/probe.go's
// JSON-probe shape, narrowed to the subset C8 needs — HDR, bit depth,
// and subtitle-stream extraction are deliberately not carried over.
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/corrinfell/mediaforge/internal/jobkind"
	"github.com/corrinfell/mediaforge/internal/sandbox"
)

// Timeout is the wall-clock budget for a single probe invocation.
// Ground truth: original_source's ffmpeg_manager.py has_audio() uses
// timeout=10 exactly.
const Timeout = 10 * time.Second

// Result reports the fields the core needs to make scheduling and
// argv decisions. Pointer fields distinguish "ffprobe didn't report
// this" from the zero value.
type Result struct {
	DurationSeconds *float64
	HasAudio        *bool
	Container       *string
}

// Prober invokes ffprobe through the sandbox.
type Prober struct {
	sb          *sandbox.Sandbox
	ffprobePath string
}

// New returns a Prober that resolves the ffprobe binary at the given
// path (typically just "ffprobe", resolved via PATH by the sandbox).
func New(sb *sandbox.Sandbox, ffprobePath string) *Prober {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Prober{sb: sb, ffprobePath: ffprobePath}
}

// ReadOnlyPolicy builds the probe-specific sandbox policy subset: a
// single allowed read path, no write paths, no network, and a command
// allow-list of exactly the probe binary, per §4.8.
func ReadOnlyPolicy(ffprobePath, readPath string) sandbox.Policy {
	p := sandbox.NewPolicy()
	p.AllowCommand(ffprobePath)
	p.AllowReadPath(readPath)
	p.Timeout = Timeout
	return p
}

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
}

type ffprobeStream struct {
	CodecType string `json:"codec_type"`
}

// Probe runs ffprobe against path and returns the parsed subset of
// metadata the core uses. Read-only: path is the sole allowed read
// path for this invocation.
func (p *Prober) Probe(ctx context.Context, path string) (Result, *jobkind.Error) {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	policy := ReadOnlyPolicy(p.ffprobePath, path)

	h, err := p.sb.Spawn(ctx, policy, sandbox.SpawnRequest{
		Command:   p.ffprobePath,
		Args:      []string{"-v", "quiet", "-print_format", "json", "-show_format", "-show_streams", path},
		ReadPaths: []string{path},
	})
	if err != nil {
		return Result{}, jobkind.Wrap(jobkind.KindProbe, "failed to spawn ffprobe", err)
	}

	code, waitErr := h.Wait()
	if waitErr != nil {
		return Result{}, jobkind.Wrap(jobkind.KindProbe, "ffprobe invocation failed", waitErr)
	}
	if code != 0 {
		return Result{}, jobkind.New(jobkind.KindProbe, fmt.Sprintf("ffprobe exited with status %d", code))
	}
	out := h.Output()

	var parsed ffprobeOutput
	if jsonErr := json.Unmarshal(out, &parsed); jsonErr != nil {
		return Result{}, jobkind.Wrap(jobkind.KindProbe, "failed to parse ffprobe output", jsonErr)
	}

	return toResult(parsed), nil
}

func toResult(parsed ffprobeOutput) Result {
	var result Result

	if parsed.Format.Duration != "" {
		if d, perr := strconv.ParseFloat(parsed.Format.Duration, 64); perr == nil {
			result.DurationSeconds = &d
		}
	}
	if parsed.Format.FormatName != "" {
		container := parsed.Format.FormatName
		result.Container = &container
	}

	hasAudio := false
	for _, s := range parsed.Streams {
		if s.CodecType == "audio" {
			hasAudio = true
			break
		}
	}
	result.HasAudio = &hasAudio

	return result
}

