package sandbox

import (
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/corrinfell/mediaforge/internal/logger"
)

// ResourceUsage is a point-in-time sample of a sandboxed process's
// resource consumption.
type ResourceUsage struct {
	CPUPercent float64
	RSSBytes   uint64
	SampledAt  time.Time
}

// monitor polls a single process's CPU%, RSS, and live child count once
// per second, recording the latest sample on the handle and escalating
// to termination on a breach. Grounded on the gopsutil-based polling
// role ArthurCRodrigues-transcode-worker/internal/monitor/monitor.go
// plays for system-wide stats, narrowed here to one process. Process
// count is polled rather than rlimit-enforced — see limits_linux.go.
func (h *ProcessHandle) monitor(policy Policy, emit func(correlationID string, kind AuditEventKind, command, detail string)) {
	defer close(h.monitorDone)

	proc, err := process.NewProcess(int32(h.cmd.Process.Pid))
	if err != nil {
		return
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			cpuPct, _ := proc.CPUPercent()
			memInfo, memErr := proc.MemoryInfo()
			var rss uint64
			if memErr == nil && memInfo != nil {
				rss = memInfo.RSS
			}

			h.mu.Lock()
			h.usage = ResourceUsage{CPUPercent: cpuPct, RSSBytes: rss, SampledAt: time.Now()}
			h.mu.Unlock()

			violated := false
			var detail string
			if policy.CPULimitPercent > 0 && cpuPct > policy.CPULimitPercent {
				violated = true
				detail = "cpu limit exceeded"
			}
			if policy.MemoryLimitBytes > 0 && rss > uint64(policy.MemoryLimitBytes) {
				violated = true
				detail = "memory limit exceeded"
			}
			if policy.ProcessCountLimit > 0 {
				if children, cerr := proc.Children(); cerr == nil && len(children)+1 > policy.ProcessCountLimit {
					violated = true
					detail = "process count limit exceeded"
				}
			}

			if violated {
				emit(h.correlationID, AuditPolicyViolation, h.command, detail)
				logger.Warn("sandbox resource limit breached", "correlation_id", h.correlationID, "detail", detail)
				_ = h.Terminate(policy.Grace)
				return
			}
		}
	}
}
