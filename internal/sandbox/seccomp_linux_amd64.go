//go:build linux && amd64

package sandbox

import "golang.org/x/sys/unix"

const seccompAuditArch = unix.AUDIT_ARCH_X86_64

// Legacy syscalls still issued by the runtime and common child processes on
// x86-64; arm64 never had them.
var archSyscalls = []uint32{
	unix.SYS_ARCH_PRCTL,
	unix.SYS_OPEN,
	unix.SYS_STAT,
	unix.SYS_LSTAT,
	unix.SYS_ACCESS,
	unix.SYS_READLINK,
	unix.SYS_UNLINK,
	unix.SYS_MKDIR,
	unix.SYS_RMDIR,
	unix.SYS_RENAME,
	unix.SYS_CHMOD,
	unix.SYS_DUP2,
	unix.SYS_PIPE,
	unix.SYS_POLL,
	unix.SYS_SELECT,
	unix.SYS_EPOLL_WAIT,
	unix.SYS_GETDENTS,
	unix.SYS_TIME,
	unix.SYS_VFORK,
	unix.SYS_FORK,
}
