//go:build linux

package sandbox

import "log/slog"

func apply(policy Policy) Status {
	var status Status

	// Landlock first: the syscall filter installed next would deny the
	// landlock_* syscalls needed to build the ruleset.
	if err := applyLandlock(policy); err != nil {
		status.LandlockErr = err
		slog.Warn("sandbox: landlock not applied", "error", err)
	} else {
		status.LandlockApplied = true
	}

	if err := applySeccomp(); err != nil {
		status.SeccompErr = err
		slog.Warn("sandbox: seccomp not applied", "error", err)
	} else {
		status.SeccompApplied = true
	}

	return status
}
