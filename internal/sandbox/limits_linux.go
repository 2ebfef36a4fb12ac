//go:build linux

package sandbox

import "golang.org/x/sys/unix"

// applyResourceLimits sets the RSS and file-size ceilings named in the
// policy on the *current* process's rlimits immediately before the
// child is started. Rlimits set this way are inherited by the child at
// fork(2), which os/exec.Cmd.Start performs synchronously before
// returning — so this window is safe even though Go's exec package
// gives no pre-exec hook to set them in the child directly. restore()
// must be called once Start has returned (success or failure) to put
// the parent's own limits back.
//
// ProcessCountLimit is deliberately NOT enforced here: RLIMIT_NPROC is
// a per-real-UID ceiling on the total thread/process count, not a
// per-child one, and the Go runtime already runs many OS threads under
// that UID — setting it here would rlimit the whole process (and every
// other process owned by the same user), not just the spawned child's
// descendants. It is polled instead, the same way CPU percentage is:
// CPU percentage has no direct rlimit equivalent either (RLIMIT_CPU is
// a total-seconds budget, not a percentage), so both are enforced only
// by the polling monitor in monitor.go, matching §4.7's "where not
// supported, limits are recorded and polled".
func applyResourceLimits(p Policy) (restore func(), err error) {
	var restores []func()
	restore = func() {
		for i := len(restores) - 1; i >= 0; i-- {
			restores[i]()
		}
	}

	if p.MemoryLimitBytes > 0 {
		prev, rerr := setRlimit(unix.RLIMIT_AS, uint64(p.MemoryLimitBytes))
		if rerr != nil {
			restore()
			return nil, rerr
		}
		restores = append(restores, prev)
	}

	if p.FileSizeLimitBytes > 0 {
		prev, rerr := setRlimit(unix.RLIMIT_FSIZE, uint64(p.FileSizeLimitBytes))
		if rerr != nil {
			restore()
			return nil, rerr
		}
		restores = append(restores, prev)
	}

	return restore, nil
}

func setRlimit(resource int, cur uint64) (restore func(), err error) {
	var old unix.Rlimit
	if err := unix.Getrlimit(resource, &old); err != nil {
		return nil, err
	}

	next := unix.Rlimit{Cur: cur, Max: old.Max}
	if next.Cur > next.Max {
		next.Max = next.Cur
	}
	if err := unix.Setrlimit(resource, &next); err != nil {
		return nil, err
	}

	return func() {
		_ = unix.Setrlimit(resource, &old)
	}, nil
}
