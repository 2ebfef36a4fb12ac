package sandbox

import (
	"regexp"
	"strings"
	"time"
)

// Policy is the immutable set of constraints a child process runs
// under. It is a direct port of the Python original's SandboxPolicy
// (original_source/pyprocessor/utils/security/process_sandbox.py),
// turned into a Go value type per the path/policy-singleton design
// note: nothing here is a process-wide singleton, every caller builds
// and owns its own Policy.
type Policy struct {
	// Resource ceilings. Zero means "unset" for CPULimit/MemoryLimit/
	// FileSizeLimit; ProcessCountLimit defaults to 1 like the original.
	CPULimitPercent    float64
	MemoryLimitBytes   int64
	FileSizeLimitBytes int64
	ProcessCountLimit  int

	// Filesystem ACL. Denied paths are checked first and always win;
	// otherwise a path is allowed only if it has one of the allow-set's
	// prefixes, so an empty allow-set allows no path.
	AllowedReadPaths  []string
	AllowedWritePaths []string
	DeniedPaths       []string

	// Network access.
	NetworkAccessEnabled bool
	AllowedHosts         []string
	AllowedPorts         []int

	// Process privileges. Recorded on the policy; Spawn does not change
	// the child's user or privileges.
	ReducePrivileges bool
	RunAsUser        string

	// Timeout is the wall deadline recorded for the process; Spawn does
	// not apply Timeout or KillOnTimeout itself, the child is bounded by
	// the ctx passed to Spawn. Grace is the interval between a graceful
	// stop signal and a force-kill when the monitor terminates the
	// child, pinned at 5s by the design notes unless the caller
	// overrides it.
	Timeout       time.Duration
	Grace         time.Duration
	KillOnTimeout bool

	// Command validation.
	AllowedCommands         []string
	DeniedCommands          []string
	CommandPatternWhitelist []*regexp.Regexp
	CommandPatternBlacklist []*regexp.Regexp
	ValidateCommandArgs     bool
}

// shellMetacharacters is the set the driver must refuse in any argument
// when ValidateCommandArgs is set, per §4.7.
var shellMetacharacters = []string{";", "&", "|", "`", "$", ">", "<"}

// NewPolicy returns a Policy with the original's defaults: one child
// process, a 5-minute wall timeout, 5s grace, argument validation on,
// privilege reduction on.
func NewPolicy() Policy {
	return Policy{
		ProcessCountLimit:   1,
		Timeout:             5 * time.Minute,
		Grace:               5 * time.Second,
		KillOnTimeout:       true,
		ReducePrivileges:    true,
		ValidateCommandArgs: true,
	}
}

// AllowReadPath adds a path prefix to the read allow-list.
func (p *Policy) AllowReadPath(path string) { p.AllowedReadPaths = append(p.AllowedReadPaths, path) }

// AllowWritePath adds a path prefix to the write allow-list.
func (p *Policy) AllowWritePath(path string) {
	p.AllowedWritePaths = append(p.AllowedWritePaths, path)
}

// DenyPath adds a path prefix that is always refused, regardless of the
// allow-lists.
func (p *Policy) DenyPath(path string) { p.DeniedPaths = append(p.DeniedPaths, path) }

// AllowCommand adds an exact command name to the allow-list.
func (p *Policy) AllowCommand(cmd string) { p.AllowedCommands = append(p.AllowedCommands, cmd) }

// DenyCommand adds an exact command name to the deny-list.
func (p *Policy) DenyCommand(cmd string) { p.DeniedCommands = append(p.DeniedCommands, cmd) }

// AddCommandPatternWhitelist compiles and adds a regex to the command
// whitelist.
func (p *Policy) AddCommandPatternWhitelist(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	p.CommandPatternWhitelist = append(p.CommandPatternWhitelist, re)
	return nil
}

// AddCommandPatternBlacklist compiles and adds a regex to the command
// blacklist.
func (p *Policy) AddCommandPatternBlacklist(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	p.CommandPatternBlacklist = append(p.CommandPatternBlacklist, re)
	return nil
}

// IsCommandAllowed reports whether cmd may be executed under this
// policy. Deny-list and deny-patterns are checked first and always
// win; an empty allow-list and allow-pattern set means every
// non-denied command is allowed; otherwise cmd must match one of them.
func (p *Policy) IsCommandAllowed(cmd string) bool {
	for _, denied := range p.DeniedCommands {
		if cmd == denied {
			return false
		}
	}
	for _, pattern := range p.CommandPatternBlacklist {
		if pattern.MatchString(cmd) {
			return false
		}
	}

	if len(p.AllowedCommands) == 0 && len(p.CommandPatternWhitelist) == 0 {
		return true
	}

	for _, allowed := range p.AllowedCommands {
		if cmd == allowed {
			return true
		}
	}
	for _, pattern := range p.CommandPatternWhitelist {
		if pattern.MatchString(cmd) {
			return true
		}
	}
	return false
}

// IsPathAllowedRead reports whether path may be read under this policy.
func (p *Policy) IsPathAllowedRead(path string) bool {
	return isPathAllowed(path, p.AllowedReadPaths, p.DeniedPaths)
}

// IsPathAllowedWrite reports whether path may be written under this
// policy.
func (p *Policy) IsPathAllowedWrite(path string) bool {
	return isPathAllowed(path, p.AllowedWritePaths, p.DeniedPaths)
}

func isPathAllowed(path string, allowed, denied []string) bool {
	for _, d := range denied {
		if strings.HasPrefix(path, d) {
			return false
		}
	}
	if len(allowed) == 0 {
		return false
	}
	for _, a := range allowed {
		if strings.HasPrefix(path, a) {
			return true
		}
	}
	return false
}

// IsNetworkAccessAllowed reports whether the given host/port pair is
// permitted. Called only by collaborators that need network access;
// the core's own transcoder/probe invocations never set
// NetworkAccessEnabled.
func (p *Policy) IsNetworkAccessAllowed(host string, port int) bool {
	if !p.NetworkAccessEnabled {
		return false
	}
	if len(p.AllowedHosts) == 0 && len(p.AllowedPorts) == 0 {
		return true
	}
	if host != "" && len(p.AllowedHosts) > 0 {
		found := false
		for _, h := range p.AllowedHosts {
			if h == host {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if port != 0 && len(p.AllowedPorts) > 0 {
		found := false
		for _, pt := range p.AllowedPorts {
			if pt == port {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// HasShellMetacharacters reports whether arg contains any character
// that would have special meaning to a shell. The sandbox never
// invokes a shell, but a metacharacter in an argument usually signals
// a confused caller or an injection attempt and is rejected outright
// when ValidateCommandArgs is set.
func HasShellMetacharacters(arg string) bool {
	for _, ch := range shellMetacharacters {
		if strings.Contains(arg, ch) {
			return true
		}
	}
	return false
}

// LooksLikePath reports whether arg should be validated as a
// filesystem path argument: it contains a path separator or starts
// with a relative-path marker, per §4.7's "every path-shaped argument"
// rule.
func LooksLikePath(arg string) bool {
	return strings.ContainsRune(arg, '/') || strings.HasPrefix(arg, ".")
}
