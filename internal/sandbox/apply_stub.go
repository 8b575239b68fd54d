//go:build !linux

package sandbox

import (
	"errors"
	"log/slog"
)

var errUnsupported = errors.New("kernel sandbox requires linux")

func apply(Policy) Status {
	slog.Warn("sandbox: not supported on this platform, relying on capability checks only")
	return Status{LandlockErr: errUnsupported, SeccompErr: errUnsupported}
}

// LandlockABI reports 0 on non-Linux platforms.
func LandlockABI() int { return 0 }

// SeccompAvailable reports false on non-Linux platforms.
func SeccompAvailable() bool { return false }
