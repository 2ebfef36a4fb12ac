package transcode

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/corrinfell/mediaforge/internal/jobkind"
	"github.com/corrinfell/mediaforge/internal/logger"
	"github.com/corrinfell/mediaforge/internal/probe"
	"github.com/corrinfell/mediaforge/internal/sandbox"
)

// state names the Driver's position in its state machine, per §4.1:
// INIT -> PROBING -> SPAWNING -> RUNNING -> (FINALIZING | TERMINATING) -> DONE.
type state int

const (
	stateInit state = iota
	statePROBING
	stateSpawning
	stateRunning
	stateFinalizing
	stateTerminating
	stateDone
)

const defaultStallTimeout = 60 * time.Second
const defaultWallTimeout = 4 * time.Hour
const defaultGrace = 5 * time.Second

// Driver runs one Job through probe, spawn, progress streaming, and
// output verification.
type Driver struct {
	sb          *sandbox.Sandbox
	prober      *probe.Prober
	ffmpegPath  string
	ffprobePath string
}

// Sandbox returns the Sandbox the Driver spawns through, so callers
// like the Scheduler can read its audit drop counter after a batch.
func (d *Driver) Sandbox() *sandbox.Sandbox { return d.sb }

// New builds a Driver that spawns ffmpeg/ffprobe through sb.
func New(sb *sandbox.Sandbox, ffmpegPath, ffprobePath string) *Driver {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Driver{
		sb:          sb,
		prober:      probe.New(sb, ffprobePath),
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
	}
}

// Run drives job through its full lifecycle, returning a sealed
// JobResult. Never panics: a job-boundary recover converts an internal
// panic into a failed JobResult, grounded in a worker-loop
// defensive style (internal/jobs/worker.go).
func (d *Driver) Run(ctx context.Context, job Job, spec Spec, policy sandbox.Policy, sink Sink) (result jobkind.JobResult) {
	startedAt := time.Now()
	result = jobkind.JobResult{JobID: job.ID, StartedAt: startedAt}

	defer func() {
		if r := recover(); r != nil {
			result.Status = jobkind.StatusFailed
			kind := jobkind.KindNonZeroExit
			result.ErrorKind = &kind
			result.Message = "internal panic recovered"
		}
		result.EndedAt = time.Now()
	}()

	stallTimeout := spec.StallTimeout
	if stallTimeout <= 0 {
		stallTimeout = defaultStallTimeout
	}
	wallTimeout := spec.WallTimeout
	if wallTimeout <= 0 {
		wallTimeout = defaultWallTimeout
	}
	grace := spec.Grace
	if grace <= 0 {
		grace = defaultGrace
	}

	// arm the wall deadline for the whole job, independent of the stall
	// watchdog: ctx.Err() == context.DeadlineExceeded distinguishes this
	// from an externally cancelled ctx in awaitCompletion.
	ctx, cancelWall := context.WithTimeout(ctx, wallTimeout)
	defer cancelWall()

	// PROBING
	logger.Debug("transcode: probing", "job_id", job.ID)
	probeResult, probeErr := d.prober.Probe(ctx, job.InputPath)
	var totalDuration time.Duration
	if probeErr != nil {
		logger.Warn("probe failed, progress will be indeterminate", "job_id", job.ID, "error", probeErr)
	} else if probeResult.DurationSeconds != nil {
		totalDuration = time.Duration(*probeResult.DurationSeconds * float64(time.Second))
	}

	if err := os.MkdirAll(job.OutputRoot, 0o755); err != nil {
		return failResult(result, jobkind.KindOutputMissing, "failed to create output root", err)
	}

	// SPAWNING
	logger.Debug("transcode: spawning", "job_id", job.ID)
	argv := buildArgv(job, spec)

	h, spawnErr := d.sb.SpawnPiped(ctx, policy, sandbox.SpawnRequest{
		Command:    d.ffmpegPath,
		Args:       argv,
		ReadPaths:  []string{job.InputPath},
		WritePaths: []string{job.OutputRoot},
	})
	if spawnErr != nil {
		return failResult(result, spawnErr.Kind, spawnErr.Message, spawnErr.Cause)
	}

	// RUNNING
	logger.Debug("transcode: running", "job_id", job.ID)
	progressed := make(chan struct{}, 1)
	wrappedSink := func(ev Event) {
		select {
		case progressed <- struct{}{}:
		default:
		}
		if sink != nil {
			sink(ev)
		}
	}
	p := newParser(job.ID, totalDuration, wrappedSink)

	drainDone := make(chan struct{})
	go func() {
		defer close(drainDone)
		p.Drain(h.Stdout())
	}()

	stallTimer := time.NewTimer(stallTimeout)
	defer stallTimer.Stop()

	outcome, termKind := d.awaitCompletion(ctx, h, stallTimer, stallTimeout, grace, progressed)

	<-drainDone

	switch termKind {
	case jobkind.KindTimeout, jobkind.KindProgressStalled, jobkind.KindCancellation:
		logger.Debug("transcode: terminating", "job_id", job.ID, "kind", termKind)
		return failResultWithTail(result, termKind, string(termKind)+" while transcoding", nil, p.Ring())
	}

	if outcome.exitErr != nil {
		return failResultWithTail(result, jobkind.KindSpawnFailed, "transcoder wait failed", outcome.exitErr, p.Ring())
	}
	if outcome.exitCode != 0 {
		return failResultWithTail(result, jobkind.KindNonZeroExit, "transcoder exited non-zero", nil, p.Ring())
	}

	// FINALIZING
	logger.Debug("transcode: finalizing", "job_id", job.ID)
	if sink != nil {
		sink(Event{JobID: job.ID, Fraction: 1.0, Stage: StageFinalizing, At: time.Now()})
	}

	if !hasMasterPlaylist(job.OutputRoot) {
		return failResultWithTail(result, jobkind.KindOutputMissing, "master playlist not found after success", nil, p.Ring())
	}

	code := 0
	result.Status = jobkind.StatusOK
	result.ExitCode = &code
	return result
}

type waitOutcome struct {
	exitCode int
	exitErr  error
}

// awaitCompletion blocks until the process exits, the context is
// cancelled, or the stall/wall watchdog fires, terminating the
// process and reporting which termination path (if any) was taken.
func (d *Driver) awaitCompletion(ctx context.Context, h *sandbox.ProcessHandle, stallTimer *time.Timer, stallTimeout, grace time.Duration, progressed <-chan struct{}) (waitOutcome, jobkind.ErrorKind) {
	resultCh := make(chan waitOutcome, 1)
	go func() {
		code, err := h.Wait()
		resultCh <- waitOutcome{exitCode: code, exitErr: err}
	}()

	for {
		select {
		case out := <-resultCh:
			return out, ""
		case <-ctx.Done():
			_ = h.Terminate(grace)
			out := <-resultCh
			if ctx.Err() == context.DeadlineExceeded {
				return out, jobkind.KindTimeout
			}
			return out, jobkind.KindCancellation
		case <-progressed:
			if !stallTimer.Stop() {
				<-stallTimer.C
			}
			stallTimer.Reset(stallTimeout)
		case <-stallTimer.C:
			_ = h.Terminate(grace)
			out := <-resultCh
			return out, jobkind.KindProgressStalled
		}
	}
}

func hasMasterPlaylist(outputRoot string) bool {
	matches, err := filepath.Glob(filepath.Join(outputRoot, "*", masterPlaylistName))
	if err == nil && len(matches) > 0 {
		return true
	}
	direct := filepath.Join(outputRoot, masterPlaylistName)
	if _, err := os.Stat(direct); err == nil {
		return true
	}
	return false
}

func failResult(result jobkind.JobResult, kind jobkind.ErrorKind, message string, cause error) jobkind.JobResult {
	result.Status = jobkind.StatusFailed
	k := kind
	result.ErrorKind = &k
	if cause != nil {
		message = message + ": " + cause.Error()
	}
	result.Message = message
	return result
}

func failResultWithTail(result jobkind.JobResult, kind jobkind.ErrorKind, message string, cause error, ring *lineRing) jobkind.JobResult {
	result = failResult(result, kind, message, cause)
	if ring != nil {
		tail := ring.Tail(10)
		if len(tail) > 0 {
			result.Message = result.Message + " | tail: " + strings.Join(tail, " | ")
		}
	}
	return result
}
