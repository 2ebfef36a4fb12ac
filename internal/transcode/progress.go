package transcode

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Stage is where in the pipeline a ProgressEvent was produced.
type Stage string

const (
	StageProbing     Stage = "probing"
	StageTranscoding Stage = "transcoding"
	StageFinalizing  Stage = "finalizing"
)

// Event is one progress sample for a job, clamped to [0,1] and
// monotonically non-decreasing within a stage, per the data model.
type Event struct {
	JobID    string
	Fraction float64
	Stage    Stage
	At       time.Time
}

// Sink receives Events. Delivery must never block the parser; callers
// typically wrap a buffered channel with a non-blocking send.
type Sink func(Event)

// ringSize bounds the raw-line buffer retained for error reports, per
// §4.2 ("last N (≤128) raw lines").
const ringSize = 128

// lineRing is a fixed-capacity ring buffer of raw transcoder output
// lines, used to populate the "last 10 lines" tail in failure reports.
type lineRing struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

func newLineRing() *lineRing {
	return &lineRing{lines: make([]string, ringSize)}
}

func (r *lineRing) add(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines[r.next] = line
	r.next = (r.next + 1) % ringSize
	if r.next == 0 {
		r.full = true
	}
}

// Tail returns the last n lines in chronological order (n is clamped
// to what's available).
func (r *lineRing) Tail(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := r.next
	if r.full {
		total = ringSize
	}
	if n > total {
		n = total
	}
	if n == 0 {
		return nil
	}

	out := make([]string, 0, n)
	start := r.next - n
	if start < 0 {
		start += ringSize
	}
	for i := 0; i < n; i++ {
		out = append(out, r.lines[(start+i)%ringSize])
	}
	return out
}

// durationRe captures the classic "Duration: HH:MM:SS.cc" stderr
// header, grounded byte-for-byte in original_source's
// ffmpeg_manager.py regex.
var durationRe = regexp.MustCompile(`Duration: (\d{2}):(\d{2}):(\d{2})\.(\d{2})`)

// timeRe captures the classic "time=HH:MM:SS.cc" stderr progress
// marker emitted once per line, same source.
var timeRe = regexp.MustCompile(`time=(\d{2}):(\d{2}):(\d{2})\.(\d{2})`)

// parser decodes either the structured key=value stdout stream
// (primary, real ffmpeg) or the classic stderr Duration:/time= grammar
// (fallback, used by the fake-transcoder test fixtures), retaining a
// ring buffer of raw lines regardless of which grammar matched.
type parser struct {
	jobID          string
	totalDuration  time.Duration // from probe or sniffed from stderr
	ring           *lineRing
	sink           Sink
	lastFraction   float64
	classicSniffed bool
}

func newParser(jobID string, totalDuration time.Duration, sink Sink) *parser {
	return &parser{
		jobID:         jobID,
		totalDuration: totalDuration,
		ring:          newLineRing(),
		sink:          sink,
	}
}

// Ring exposes the raw-line ring buffer for failure reporting.
func (p *parser) Ring() *lineRing { return p.ring }

// Drain reads lines from r until EOF, updating progress as it goes.
// Safe to run in its own goroutine; returns when r is exhausted.
func (p *parser) Drain(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		p.ring.add(line)
		p.consume(line)
	}
}

func (p *parser) consume(line string) {
	if idx := strings.Index(line, "="); idx > 0 && !strings.Contains(line, "Duration") && !strings.Contains(line, "time=") {
		p.consumeStructured(line[:idx], line[idx+1:])
		return
	}
	p.consumeClassic(line)
}

func (p *parser) consumeStructured(key, value string) {
	switch key {
	case "out_time_us":
		if value == "N/A" {
			return
		}
		us, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return
		}
		p.emit(time.Duration(us) * time.Microsecond)
	case "progress":
		if value == "end" {
			p.emitFraction(1.0)
		}
	}
}

func (p *parser) consumeClassic(line string) {
	if m := durationRe.FindStringSubmatch(line); m != nil && p.totalDuration == 0 {
		p.totalDuration = classicDuration(m)
		p.classicSniffed = true
		return
	}
	if m := timeRe.FindStringSubmatch(line); m != nil {
		p.emit(classicDuration(m))
	}
}

func classicDuration(m []string) time.Duration {
	hours, _ := strconv.Atoi(m[1])
	minutes, _ := strconv.Atoi(m[2])
	seconds, _ := strconv.Atoi(m[3])
	centis, _ := strconv.Atoi(m[4])
	return time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second +
		time.Duration(centis)*10*time.Millisecond
}

func (p *parser) emit(current time.Duration) {
	if p.totalDuration <= 0 {
		// Zero-duration (or not-yet-known-duration) inputs report a
		// step function: no intermediate fractions until completion,
		// per §4.1's zero-duration edge case.
		return
	}
	fraction := float64(current) / float64(p.totalDuration)
	p.emitFraction(fraction)
}

func (p *parser) emitFraction(fraction float64) {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	if fraction < p.lastFraction {
		fraction = p.lastFraction
	}
	p.lastFraction = fraction

	if p.sink == nil {
		return
	}
	p.sink(Event{
		JobID:    p.jobID,
		Fraction: fraction,
		Stage:    StageTranscoding,
		At:       time.Now(),
	})
}
