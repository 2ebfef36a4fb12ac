// Package scheduler dispatches a batch of transcode jobs across a
// bounded pool of worker slots, aggregates progress, and accounts for
// failures. Grounded on a worker-pool pattern (internal/jobs/worker.go)
// and its broadcast-with-drop subscriber pattern (internal/jobs/queue.go),
// generalized from a persisted multi-client queue into a single-batch
// in-process dispatch loop.
package scheduler

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/corrinfell/mediaforge/internal/humanize"
	"github.com/corrinfell/mediaforge/internal/jobkind"
	"github.com/corrinfell/mediaforge/internal/logger"
	"github.com/corrinfell/mediaforge/internal/sandbox"
	"github.com/corrinfell/mediaforge/internal/transcode"
)

const progressInterval = 250 * time.Millisecond

// Scheduler runs a batch of jobs through a *transcode.Driver.
type Scheduler struct {
	driver *transcode.Driver
}

// New returns a Scheduler that drives jobs through driver.
func New(driver *transcode.Driver) *Scheduler {
	return &Scheduler{driver: driver}
}

// defaultParallelism is max(1, floor(0.75 * NumCPU)), per the
// concurrency model's worker slot count.
func defaultParallelism() int {
	p := int(float64(runtime.NumCPU()) * 0.75)
	if p < 1 {
		p = 1
	}
	return p
}

// Process runs every job in jobs against spec/policy, bounded to
// opts.Parallelism worker slots (default defaultParallelism()).
// Cancelling ctx requests termination (spec.Grace, default 5s) of every live
// process; every job still seals a terminal result, cancelled ones as
// StatusCancelled. ErrNoJobs is returned for an empty batch rather
// than a zero-value BatchReport, so callers can distinguish "nothing
// to do" from "ran zero jobs due to cancellation".
func (s *Scheduler) Process(ctx context.Context, jobs []transcode.Job, spec transcode.Spec, policy sandbox.Policy, opts Options) (BatchReport, error) {
	if len(jobs) == 0 {
		return BatchReport{}, ErrNoJobs
	}

	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = defaultParallelism()
	}

	report := BatchReport{StartedAt: time.Now(), Total: len(jobs)}

	// errgroup.WithContext supervises the worker goroutines: a worker
	// that reports a fatal failure under StopOnFatal returns a non-nil
	// error, which cancels runCtx for every other worker without a
	// manually-managed cancel func, grounded on a worker-pool pattern
	// (internal/jobs/worker.go) generalized to use the ecosystem's
	// group-supervision idiom rather than a hand-rolled abort() closure.
	g, runCtx := errgroup.WithContext(ctx)

	var (
		mu          sync.Mutex
		fractions   = make(map[string]float64)
		completedN  int
		fatalCalled bool
	)

	sem := make(chan struct{}, parallelism)
	resultsCh := make(chan jobkind.JobResult, len(jobs))

	progressDone := make(chan struct{})
	allDispatched := make(chan struct{})
	if opts.ProgressSink != nil {
		go s.runProgressTicker(&mu, fractions, &completedN, len(jobs), opts.ProgressSink, allDispatched, progressDone)
	} else {
		close(progressDone)
	}

	var skipped []transcode.Job

dispatchLoop:
	for i, job := range jobs {
		select {
		case <-runCtx.Done():
			skipped = append(skipped, jobs[i:]...)
			break dispatchLoop
		case sem <- struct{}{}:
		}

		job := job
		g.Go(func() error {
			defer func() { <-sem }()

			sink := func(ev transcode.Event) {
				mu.Lock()
				fractions[job.ID] = ev.Fraction
				mu.Unlock()
			}

			result := s.driver.Run(runCtx, job, spec, policy, sink)
			// A job cut short by cancellation seals as cancelled, not failed.
			if result.ErrorKind != nil && *result.ErrorKind == jobkind.KindCancellation {
				result.Status = jobkind.StatusCancelled
			}

			mu.Lock()
			delete(fractions, job.ID)
			completedN++
			firstJob := completedN == 1
			mu.Unlock()

			resultsCh <- result

			if opts.StopOnFatal && firstJob && result.ErrorKind != nil && result.ErrorKind.Fatal() {
				mu.Lock()
				fatalCalled = true
				mu.Unlock()
				return fmt.Errorf("fatal job failure: %s", result.Message)
			}
			return nil
		})
	}

	_ = g.Wait()
	close(resultsCh)
	close(allDispatched)
	<-progressDone

	for result := range resultsCh {
		report.Results = append(report.Results, result)
		switch result.Status {
		case jobkind.StatusOK:
			report.OK++
		case jobkind.StatusCancelled:
			report.Cancelled++
		default:
			report.Failed++
		}
	}

	// Jobs never dispatched because the batch aborted early still seal
	// a terminal result, per the cancellation semantics.
	if len(skipped) > 0 {
		logger.Warn("scheduler: batch aborted before dispatching full queue",
			"skipped", len(skipped), "total", report.Total, "fatal", fatalCalled,
			"elapsed", humanize.Duration(time.Since(report.StartedAt)))
		now := time.Now()
		for _, job := range skipped {
			report.Results = append(report.Results, jobkind.JobResult{
				JobID:     job.ID,
				Status:    jobkind.StatusCancelled,
				StartedAt: now,
				EndedAt:   now,
				Message:   "batch aborted before this job was dispatched",
			})
			report.Cancelled++
		}
	}

	report.EndedAt = time.Now()
	report.AuditDropped = s.driver.Sandbox().AuditDropCount()
	return report, nil
}

// runProgressTicker emits the aggregate completion fraction at most
// once per progressInterval, grounded on a broadcast
// pattern but pull-based (a ticker) rather than push-based, since
// there is one sink per batch rather than N subscriber channels.
func (s *Scheduler) runProgressTicker(mu *sync.Mutex, fractions map[string]float64, completedN *int, total int, sink ProgressFunc, allDispatched, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	emit := func() {
		mu.Lock()
		sum := 0.0
		for _, f := range fractions {
			sum += f
		}
		completed := *completedN
		mu.Unlock()
		fraction := (float64(completed) + sum) / float64(total)
		if fraction > 1.0 {
			fraction = 1.0
		}
		sink(fraction)
	}

	for {
		select {
		case <-ticker.C:
			emit()
		case <-allDispatched:
			emit()
			return
		}
	}
}
