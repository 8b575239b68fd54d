// Package sandbox installs the kernel-level confinement layer: a Landlock
// filesystem ruleset scoped to the configured allowlists, then a seccomp-BPF
// syscall whitelist. Both are applied once at process start, before any tool
// dispatch, connector poll, or LLM call; every subprocess spawned afterwards
// (run_command children, skill processes) inherits them.
//
// Either mechanism may be unavailable (old kernel, disabled LSM). Failures
// degrade gracefully: the status is reported and execution continues with the
// application-level capability checker as the remaining guard.
package sandbox

// Policy carries the filesystem allowlists the ruleset is built from. It is
// independent of the capability policy on purpose: the two layers overlap as
// defense-in-depth.
type Policy struct {
	ReadPaths  []string
	WritePaths []string
}

// Status reports which mechanisms were installed.
type Status struct {
	LandlockApplied bool
	LandlockErr     error
	SeccompApplied  bool
	SeccompErr      error
}

// Active reports whether at least one kernel mechanism is enforcing.
func (s Status) Active() bool {
	return s.LandlockApplied || s.SeccompApplied
}

// Apply installs the sandbox on the current process: Landlock first (the
// syscall filter would forbid its own construction syscalls), then seccomp.
// Installation cannot be widened or undone afterwards.
func Apply(policy Policy) Status {
	return apply(policy)
}
