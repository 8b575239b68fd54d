//go:build linux && arm64

package sandbox

import "golang.org/x/sys/unix"

const seccompAuditArch = unix.AUDIT_ARCH_AARCH64

// arm64's syscall table has no legacy path-based calls; nothing extra needed.
var archSyscalls = []uint32{}
