// Package appctx owns the process lifecycle: configuration load,
// dependency checks, signal handling, and the Intake -> Scheduler ->
// Organizer pipeline, grounded on
// original_source/pyprocessor/utils/core/application_context.py for
// ordering and on cmd/shrinkray/main.go for the Go signal idiom.
package appctx

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/corrinfell/mediaforge/internal/audit"
	"github.com/corrinfell/mediaforge/internal/config"
	"github.com/corrinfell/mediaforge/internal/humanize"
	"github.com/corrinfell/mediaforge/internal/ids"
	"github.com/corrinfell/mediaforge/internal/intake"
	"github.com/corrinfell/mediaforge/internal/jobkind"
	"github.com/corrinfell/mediaforge/internal/logger"
	"github.com/corrinfell/mediaforge/internal/organize"
	"github.com/corrinfell/mediaforge/internal/sandbox"
	"github.com/corrinfell/mediaforge/internal/scheduler"
	"github.com/corrinfell/mediaforge/internal/transcode"
)

// Exit codes, per §6.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitInterrupted = 130
)

// Context holds every long-lived component the CLI entry point wires
// together, constructed once in cmd/mediaforge/main.go and passed
// down — there is no package-level config or sandbox singleton
// anywhere in the module.
type Context struct {
	Config   *config.Config
	Sandbox  *sandbox.Sandbox
	Driver   *transcode.Driver
	Sched    *scheduler.Scheduler
	Organize *organize.Organizer

	auditDB *audit.SQLiteSink
	cancel  context.CancelFunc
}

// New builds a Context from a validated config. The Sandbox is given a
// fanout AuditSink so every spawned process leaves both a structured
// log line and a row in the sqlite audit archive (§4.7, §10). A
// failure to open the sqlite archive is logged and degrades to
// log-only auditing rather than failing startup, since the archive is
// a durability nicety, not a correctness requirement.
func New(cfg *config.Config) *Context {
	logSink := audit.New()

	var dbSink *audit.SQLiteSink
	dbPath := cfg.AuditDBPath
	if dbPath == "" && cfg.OutputFolder != "" {
		dbPath = filepath.Join(cfg.OutputFolder, ".mediaforge", "audit.db")
	}
	if dbPath != "" {
		sink, err := audit.NewSQLite(dbPath)
		if err != nil {
			logger.Warn("appctx: failed to open sqlite audit archive, continuing with log-only audit", "path", dbPath, "error", err)
		} else {
			dbSink = sink
		}
	}

	var auditSink sandbox.AuditSink = logSink
	if dbSink != nil {
		auditSink = audit.Fanout(logSink, dbSink)
	}

	sb := sandbox.New(auditSink)
	driver := transcode.New(sb, cfg.FFmpegPath, cfg.FFprobePath)
	return &Context{
		Config:   cfg,
		Sandbox:  sb,
		Driver:   driver,
		Sched:    scheduler.New(driver),
		Organize: organize.New(),
		auditDB:  dbSink,
	}
}

// Load parses --config/--profile (if given) into a Config before CLI
// overrides are applied, so flags always win — ground truth:
// initialize() in application_context.py loads the file first, then
// calls _apply_args_to_config over it.
func Load(configPath, profileName, profilesDir string, overrides config.CLIOverrides) (*config.Config, []config.ValidationError) {
	var cfg *config.Config
	var err error

	switch {
	case configPath != "":
		cfg, err = config.Load(configPath)
	case profileName != "":
		cfg, err = config.LoadProfile(profilesDir, profileName)
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, []config.ValidationError{{Field: "config", Message: err.Error()}}
	}

	cfg.Apply(overrides)

	if errs := cfg.Validate(); len(errs) > 0 {
		return cfg, errs
	}
	return cfg, nil
}

// registerSignals installs non-blocking SIGINT/SIGTERM handlers that
// only cancel the shared context and return — ground truth:
// _signal_handler in application_context.py flips state and logs,
// nothing else; actual teardown happens as the run unwinds, the same
// `go func() { <-sigChan; ... }()` shape used in cmd/shrinkray/main.go.
func registerSignals(cancel context.CancelFunc, interrupted *bool) (stop func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case <-sigCh:
			*interrupted = true
			logger.Info("appctx: termination signal received, shutting down")
			cancel()
		case <-done:
		}
	}()
	return func() {
		close(done)
		signal.Stop(sigCh)
	}
}

// Run drives the full batch: Intake (rename if enabled) -> Scheduler
// (Process) -> Organizer (if enabled), in that order, carried verbatim
// from run_cli_mode. It returns the process exit code per §4.6 step 5
// and §6's exit-code contract.
func (c *Context) Run(ctx context.Context) int {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	defer cancel()

	var interrupted bool
	stopSignals := registerSignals(cancel, &interrupted)
	defer stopSignals()

	defer c.Sandbox.TerminateAll(5 * time.Second)
	if c.auditDB != nil {
		defer c.auditDB.Close()
	}

	version, err := EnsureAvailable(runCtx, c.Sandbox, c.Config.FFmpegPath, c.Config.FFprobePath)
	if err != nil {
		logger.Error("appctx: ffmpeg/ffprobe unavailable", "error", err)
		return ExitFailure
	}
	logger.Info("appctx: dependencies verified", "version", version)

	if info, statErr := os.Stat(c.Config.InputFolder); statErr != nil || !info.IsDir() {
		logger.Error("appctx: input directory does not exist", "path", c.Config.InputFolder)
		return ExitFailure
	}
	if err := os.MkdirAll(c.Config.OutputFolder, 0o755); err != nil {
		logger.Error("appctx: failed to create output directory", "path", c.Config.OutputFolder, "error", err)
		return ExitFailure
	}

	startedAt := time.Now()

	paths, err := intake.Enumerate(c.Config.InputFolder, c.Config.FileExtension)
	if err != nil {
		logger.Error("appctx: failed to enumerate input directory", "error", err)
		return ExitFailure
	}

	if c.Config.AutoRenameFiles {
		renamePattern, perr := intake.CompilePattern(c.Config.FileRenamePattern, true)
		if perr != nil {
			logger.Error("appctx: invalid rename pattern", "error", perr)
			return ExitFailure
		}
		logger.Info("appctx: renaming input files")
		results := intake.Rename(paths, renamePattern, c.Config.FileExtension)
		paths = paths[:0]
		for _, r := range results {
			if r.Reason != "" && !r.Renamed {
				logger.Warn("appctx: file skipped during rename", "old_path", r.OldPath, "reason", r.Reason)
			}
			if r.NewPath != "" {
				paths = append(paths, r.NewPath)
			} else {
				paths = append(paths, r.OldPath)
			}
		}
	}

	validationPattern, perr := intake.CompilePattern(c.Config.FileValidationPattern, false)
	if perr != nil {
		logger.Error("appctx: invalid validation pattern", "error", perr)
		return ExitFailure
	}
	valid, invalid := intake.Validate(paths, validationPattern)
	for _, p := range invalid {
		logger.Warn("appctx: file failed naming validation, skipping", "path", p)
	}

	jobs := make([]transcode.Job, 0, len(valid))
	for _, p := range valid {
		base := filepathBase(p)
		jobs = append(jobs, transcode.Job{
			ID:         ids.New(),
			InputPath:  p,
			OutputRoot: filepath.Join(c.Config.OutputFolder, base),
		})
	}

	spec := specFromConfig(c.Config)
	policy := policyFor(c.Config)

	report, err := c.Sched.Process(runCtx, jobs, spec, policy, scheduler.Options{
		Parallelism: c.Config.MaxParallelJobs,
		StopOnFatal: c.Config.StopOnFatal,
		ProgressSink: func(fraction float64) {
			logger.Debug("appctx: batch progress", "fraction", fraction)
		},
	})
	if err != nil {
		// Including scheduler.ErrNoJobs: an input directory with
		// nothing valid to transcode is surfaced as a failure exit
		// rather than a silent no-op success, since the operator asked
		// for a batch and got none.
		logger.Error("appctx: scheduler failed to run batch", "error", err)
		return ExitFailure
	}

	if c.Config.AutoOrganizeFolders {
		organizePattern, perr := intake.CompilePattern(c.Config.FolderOrganizationPattern, true)
		if perr != nil {
			logger.Error("appctx: invalid organization pattern", "error", perr)
		} else {
			logger.Info("appctx: organizing output folders")
			if _, oerr := c.Organize.Organize(c.Config.OutputFolder, organizePattern); oerr != nil {
				logger.Error("appctx: failed to organize output folders", "error", oerr)
			}
		}
	}

	duration := time.Since(startedAt)
	summarize(report, duration)

	if interrupted {
		return ExitInterrupted
	}
	if report.Failed > 0 {
		return ExitFailure
	}
	return ExitOK
}

func filepathBase(p string) string {
	base := filepath.Base(p)
	ext := filepath.Ext(base)
	return base[:len(base)-len(ext)]
}

func specFromConfig(cfg *config.Config) transcode.Spec {
	ladder := make([]transcode.Rung, 0, len(cfg.FFmpegParams.Ladder))
	for _, r := range cfg.FFmpegParams.Ladder {
		ladder = append(ladder, transcode.Rung{Height: r.Height, Bitrate: r.Bitrate})
	}
	return transcode.Spec{
		VideoCodec:   cfg.FFmpegParams.VideoEncoder,
		AudioCodec:   cfg.FFmpegParams.AudioCodec,
		Preset:       cfg.FFmpegParams.Preset,
		Tune:         cfg.FFmpegParams.Tune,
		CRF:          cfg.FFmpegParams.CRF,
		FPS:          cfg.FFmpegParams.FPS,
		IncludeAudio: cfg.FFmpegParams.IncludeAudio,
		Ladder:       ladder,
		StallTimeout: time.Duration(cfg.StallTimeoutS) * time.Second,
		WallTimeout:  time.Duration(cfg.WallTimeoutS) * time.Second,
		Grace:        time.Duration(cfg.GraceSeconds) * time.Second,
	}
}

// policyFor builds the sandbox policy every transcode job runs under:
// read access scoped to the input folder, write access scoped to the
// output folder, the transcoder/probe binaries allow-listed by name.
func policyFor(cfg *config.Config) sandbox.Policy {
	p := sandbox.NewPolicy()
	p.AllowReadPath(cfg.InputFolder)
	p.AllowWritePath(cfg.OutputFolder)
	p.AllowCommand(cfg.FFmpegPath)
	p.AllowCommand(cfg.FFprobePath)
	p.Grace = time.Duration(cfg.GraceSeconds) * time.Second
	return p
}

// summarize prints the final per-batch report: a structured log line
// via the logger, and a plain-text block to stdout for scripting
// consumption, per §7's user-visible failure behavior.
func summarize(report scheduler.BatchReport, duration time.Duration) {
	logger.Info("appctx: batch complete",
		"total", report.Total, "ok", report.OK, "failed", report.Failed,
		"cancelled", report.Cancelled, "duration", duration,
		"audit_dropped", report.AuditDropped)

	fmt.Printf("Processed %d file(s) in %s: %d ok, %d failed, %d cancelled\n",
		report.Total, humanize.Duration(duration), report.OK, report.Failed, report.Cancelled)
	if report.AuditDropped > 0 {
		fmt.Printf("  audit: %d event(s) dropped from the bounded queue\n", report.AuditDropped)
	}

	for _, r := range report.Results {
		if r.Status == jobkind.StatusOK {
			continue
		}
		kind := "unknown"
		if r.ErrorKind != nil {
			kind = string(*r.ErrorKind)
		}
		fmt.Printf("  [%s] job=%s kind=%s: %s\n", r.Status, r.JobID, kind, r.Message)
	}
}
