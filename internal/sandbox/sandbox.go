// Package sandbox spawns child processes under a security policy:
// command and path validation, resource limits, a polling monitor, and
// graceful-then-forceful termination, with every lifecycle event
// emitted as an audit record. Grounded on
// original_source/pyprocessor/utils/security/process_sandbox.py
// (SandboxPolicy/SandboxedProcess/ProcessSandbox), reimplemented as an
// explicitly-constructed service per the singleton design note: there
// is exactly one Sandbox per Application Context, not a package-level
// global.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/corrinfell/mediaforge/internal/jobkind"
	"github.com/corrinfell/mediaforge/internal/logger"
)

// auditQueueCapacity bounds the non-blocking audit queue described in
// AuditSink's doc comment: once full, the oldest queued event is
// dropped to make room for the newest one, and auditDropped counts how
// many events were lost this way.
const auditQueueCapacity = 256

// Sandbox spawns processes and keeps an internal registry of live
// handles so a global shutdown can terminate all of them, per §4.7.
type Sandbox struct {
	audit        AuditSink
	auditCh      chan AuditEvent
	auditDropped uint64

	mu      sync.Mutex
	handles map[string]*ProcessHandle
}

// New constructs a Sandbox. A nil sink is replaced with NopAuditSink.
// Events are fanned out to the sink from a single background goroutine
// reading off a bounded drop-oldest queue, so a slow sink never stalls
// a spawn.
func New(audit AuditSink) *Sandbox {
	if audit == nil {
		audit = NopAuditSink{}
	}
	s := &Sandbox{
		audit:   audit,
		auditCh: make(chan AuditEvent, auditQueueCapacity),
		handles: make(map[string]*ProcessHandle),
	}
	go s.drainAudit()
	return s
}

// AuditDropCount reports how many audit events were dropped because
// the bounded queue was full when they arrived.
func (s *Sandbox) AuditDropCount() uint64 {
	return atomic.LoadUint64(&s.auditDropped)
}

func (s *Sandbox) drainAudit() {
	for ev := range s.auditCh {
		s.audit.Emit(ev)
	}
}

// SpawnRequest describes one child process to launch.
type SpawnRequest struct {
	Command    string
	Args       []string
	ReadPaths  []string // paths the child is expected to read
	WritePaths []string // paths the child is expected to write
	Dir        string
}

// ProcessHandle is the opaque handle returned by Spawn. It exposes
// Wait, Terminate, and Usage per §3's ProcessHandle data model entry.
type ProcessHandle struct {
	mu            sync.Mutex
	cmd           *exec.Cmd
	correlationID string
	command       string
	startedAt     time.Time
	done          chan struct{}
	monitorDone   chan struct{}
	waitErr       error
	exitCode      int
	terminated    bool
	usage         ResourceUsage
	stdout        io.ReadCloser
	outputBuf     *bytes.Buffer
}

// CorrelationID returns the per-process audit correlation id.
func (h *ProcessHandle) CorrelationID() string { return h.correlationID }

// Stdout exposes the child's output pipe (stdout with stderr merged
// into it) for the progress parser to read. Only set when the handle
// was created with SpawnPiped; nil otherwise.
func (h *ProcessHandle) Stdout() io.ReadCloser {
	return h.stdout
}

// Spawn validates the request against policy, applies resource
// limits, starts the child, and returns a handle. The caller is
// responsible for wiring cmd.Stdout/Stderr before calling Spawn is not
// possible — instead SpawnPiped is used by the transcoder driver,
// which needs a live stdout pipe; Spawn itself is used by collaborators
// (like the probe adapter) that only need the captured stdout after
// exit.
func (s *Sandbox) Spawn(ctx context.Context, policy Policy, req SpawnRequest) (*ProcessHandle, *jobkind.Error) {
	return s.spawn(ctx, policy, req, false)
}

// SpawnPiped behaves like Spawn but wires the child's stdout and stderr
// to one pipe the caller can read concurrently (the Transcoder Driver's
// progress stream and failure tail).
func (s *Sandbox) SpawnPiped(ctx context.Context, policy Policy, req SpawnRequest) (*ProcessHandle, *jobkind.Error) {
	return s.spawn(ctx, policy, req, true)
}

func (s *Sandbox) spawn(ctx context.Context, policy Policy, req SpawnRequest, pipeStdout bool) (*ProcessHandle, *jobkind.Error) {
	correlationID := uuid.NewString()

	if violation := s.validate(policy, req, correlationID); violation != nil {
		return nil, violation
	}

	resolved, err := exec.LookPath(req.Command)
	if err != nil {
		s.emit(correlationID, AuditValidationFailure, req.Command, "binary not found")
		return nil, jobkind.Wrap(jobkind.KindSpawnFailed, "binary not found: "+req.Command, err)
	}

	cmd := exec.CommandContext(ctx, resolved, req.Args...)
	cmd.Dir = req.Dir

	var stdoutPipe io.ReadCloser
	var outputBuf *bytes.Buffer
	if pipeStdout {
		p, perr := cmd.StdoutPipe()
		if perr != nil {
			return nil, jobkind.Wrap(jobkind.KindSpawnFailed, "failed to create stdout pipe", perr)
		}
		// Merge stderr into the same pipe so the parser sees the
		// classic stderr grammar and the failure tail.
		cmd.Stderr = cmd.Stdout
		stdoutPipe = p
	} else {
		outputBuf = &bytes.Buffer{}
		cmd.Stdout = outputBuf
	}

	restore, limErr := applyResourceLimits(policy)
	if limErr != nil {
		logger.Warn("sandbox: failed to apply resource limits, continuing unlimited", "error", limErr)
	}
	startErr := cmd.Start()
	if restore != nil {
		restore()
	}
	if startErr != nil {
		s.emit(correlationID, AuditValidationFailure, req.Command, startErr.Error())
		return nil, jobkind.Wrap(jobkind.KindSpawnFailed, "failed to start process", startErr)
	}

	h := &ProcessHandle{
		cmd:           cmd,
		correlationID: correlationID,
		command:       req.Command,
		startedAt:     time.Now(),
		done:          make(chan struct{}),
		monitorDone:   make(chan struct{}),
		stdout:        stdoutPipe,
		outputBuf:     outputBuf,
	}

	s.register(h)
	s.emit(correlationID, AuditStart, req.Command, fmt.Sprintf("pid=%d", cmd.Process.Pid))

	go h.monitor(policy, s.emit)
	go s.wait(h)

	return h, nil
}

func (s *Sandbox) validate(policy Policy, req SpawnRequest, correlationID string) *jobkind.Error {
	cmdName := req.Command
	if !policy.IsCommandAllowed(cmdName) {
		s.emit(correlationID, AuditPolicyViolation, cmdName, "command denied by policy")
		return jobkind.New(jobkind.KindPolicyViolation, "command denied by sandbox policy: "+cmdName)
	}

	if policy.ValidateCommandArgs {
		for _, arg := range req.Args {
			if HasShellMetacharacters(arg) {
				s.emit(correlationID, AuditValidationFailure, cmdName, "argument contains shell metacharacter: "+arg)
				return jobkind.New(jobkind.KindPolicyViolation, "argument contains shell metacharacter")
			}
		}
	}

	for _, p := range req.ReadPaths {
		if !policy.IsPathAllowedRead(p) {
			s.emit(correlationID, AuditPolicyViolation, cmdName, "read path denied: "+p)
			return jobkind.New(jobkind.KindPolicyViolation, "read path denied by sandbox policy: "+p)
		}
	}
	for _, p := range req.WritePaths {
		if !policy.IsPathAllowedWrite(p) {
			s.emit(correlationID, AuditPolicyViolation, cmdName, "write path denied: "+p)
			return jobkind.New(jobkind.KindPolicyViolation, "write path denied by sandbox policy: "+p)
		}
	}
	return nil
}

func (s *Sandbox) register(h *ProcessHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles[h.correlationID] = h
}

func (s *Sandbox) unregister(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handles, id)
}

// emit queues an audit event without blocking the caller. The queue is
// bounded (auditQueueCapacity); when full, the oldest queued event is
// dropped to make room and auditDropped is incremented, per the
// drop-oldest policy.
func (s *Sandbox) emit(correlationID string, kind AuditEventKind, command, detail string) {
	ev := AuditEvent{
		CorrelationID: correlationID,
		Kind:          kind,
		Command:       command,
		Detail:        detail,
		At:            time.Now(),
	}
	select {
	case s.auditCh <- ev:
		return
	default:
	}
	select {
	case <-s.auditCh:
		atomic.AddUint64(&s.auditDropped, 1)
	default:
	}
	select {
	case s.auditCh <- ev:
	default:
		atomic.AddUint64(&s.auditDropped, 1)
	}
}

func (s *Sandbox) wait(h *ProcessHandle) {
	err := h.cmd.Wait()

	h.mu.Lock()
	h.waitErr = err
	if h.cmd.ProcessState != nil {
		h.exitCode = h.cmd.ProcessState.ExitCode()
	}
	h.mu.Unlock()

	close(h.done)
	<-h.monitorDone

	s.emit(h.correlationID, AuditEnd, h.command, fmt.Sprintf("exit_code=%d", h.exitCode))
	s.unregister(h.correlationID)
}

// Wait blocks until the process exits and returns its exit code and
// any wait error (nil error and exit code 0 on a clean exit).
func (h *ProcessHandle) Wait() (int, error) {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitCode, h.waitErr
}

// Done returns a channel closed when the process has exited.
func (h *ProcessHandle) Done() <-chan struct{} { return h.done }

// Output returns the captured stdout bytes for a handle created with
// Spawn (not SpawnPiped). Safe to call only after Wait has returned;
// returns nil for a piped handle, whose stdout is consumed via Stdout
// instead.
func (h *ProcessHandle) Output() []byte {
	if h.outputBuf == nil {
		return nil
	}
	return h.outputBuf.Bytes()
}

// Terminate sends a graceful stop signal, waits up to grace, then
// force-kills. Idempotent: calling it more than once, or after the
// process has already exited, is a no-op.
func (h *ProcessHandle) Terminate(grace time.Duration) error {
	h.mu.Lock()
	if h.terminated {
		h.mu.Unlock()
		return nil
	}
	h.terminated = true
	proc := h.cmd.Process
	h.mu.Unlock()

	if proc == nil {
		return nil
	}

	select {
	case <-h.done:
		return nil
	default:
	}

	_ = proc.Signal(signalGraceful())

	deadline := time.NewTimer(grace)
	defer deadline.Stop()
	select {
	case <-h.done:
		return nil
	case <-deadline.C:
		return proc.Kill()
	}
}

// Usage returns the most recent resource-usage sample recorded by the
// monitor goroutine.
func (h *ProcessHandle) Usage() ResourceUsage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.usage
}

// ResultSnapshot reports whether the process has exited and, if so,
// its exit code.
type ResultSnapshot struct {
	Exited   bool
	ExitCode int
}

func (h *ProcessHandle) ResultSnapshot() ResultSnapshot {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return ResultSnapshot{Exited: true, ExitCode: h.exitCode}
	default:
		return ResultSnapshot{}
	}
}

// TerminateAll terminates every live process in the registry. Used by
// the Application Context during shutdown.
func (s *Sandbox) TerminateAll(grace time.Duration) {
	s.mu.Lock()
	handles := make([]*ProcessHandle, 0, len(s.handles))
	for _, h := range s.handles {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, h := range handles {
		wg.Add(1)
		go func(h *ProcessHandle) {
			defer wg.Done()
			_ = h.Terminate(grace)
		}(h)
	}
	wg.Wait()
}
