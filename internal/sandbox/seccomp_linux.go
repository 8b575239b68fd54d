//go:build linux

package sandbox

import (
	"fmt"
	"log/slog"
	"unsafe"

	"golang.org/x/sys/unix"
)

// seccomp_data offsets and classic-BPF return codes.
const (
	seccompDataNr   = 0 // offsetof(struct seccomp_data, nr)
	seccompDataArch = 4 // offsetof(struct seccomp_data, arch)

	seccompRetAllow = 0x7fff0000
	seccompRetErrno = 0x00050000
)

// allowedSyscalls is the whitelist required to run the agent loop: file and
// socket I/O, memory management, scheduling, signals, plus execve/wait4/kill
// for the run_command tool. Syscall numbers resolve per-architecture at
// compile time; arch-only extras live in seccomp_linux_<arch>.go.
var allowedSyscalls = []uint32{
	// file I/O
	unix.SYS_READ, unix.SYS_WRITE, unix.SYS_OPENAT, unix.SYS_CLOSE,
	unix.SYS_FSTAT, unix.SYS_NEWFSTATAT, unix.SYS_STATX, unix.SYS_LSEEK,
	unix.SYS_PREAD64, unix.SYS_PWRITE64, unix.SYS_READV, unix.SYS_WRITEV,
	unix.SYS_FCNTL, unix.SYS_FLOCK, unix.SYS_FSYNC, unix.SYS_FDATASYNC,
	unix.SYS_FTRUNCATE, unix.SYS_GETDENTS64, unix.SYS_GETCWD, unix.SYS_CHDIR,
	unix.SYS_FCHDIR, unix.SYS_MKDIRAT, unix.SYS_UNLINKAT, unix.SYS_RENAMEAT,
	unix.SYS_RENAMEAT2, unix.SYS_SYMLINKAT, unix.SYS_LINKAT, unix.SYS_READLINKAT,
	unix.SYS_FACCESSAT, unix.SYS_FACCESSAT2, unix.SYS_FCHMOD, unix.SYS_FCHMODAT,
	unix.SYS_FCHOWN, unix.SYS_FCHOWNAT, unix.SYS_STATFS, unix.SYS_FSTATFS,
	unix.SYS_UTIMENSAT, unix.SYS_IOCTL, unix.SYS_DUP, unix.SYS_DUP3,
	unix.SYS_PIPE2, unix.SYS_EVENTFD2, unix.SYS_MEMFD_CREATE, unix.SYS_UMASK,

	// memory
	unix.SYS_MMAP, unix.SYS_MPROTECT, unix.SYS_MUNMAP, unix.SYS_MREMAP,
	unix.SYS_BRK, unix.SYS_MADVISE, unix.SYS_MSYNC, unix.SYS_MLOCK,
	unix.SYS_MUNLOCK,

	// process and thread lifecycle (run_command needs execve/wait4/kill)
	unix.SYS_CLONE, unix.SYS_CLONE3, unix.SYS_EXECVE, unix.SYS_EXIT,
	unix.SYS_EXIT_GROUP, unix.SYS_WAIT4, unix.SYS_KILL, unix.SYS_TGKILL,
	unix.SYS_GETPID, unix.SYS_GETTID, unix.SYS_GETPPID, unix.SYS_SET_TID_ADDRESS,
	unix.SYS_SET_ROBUST_LIST, unix.SYS_RSEQ, unix.SYS_PRCTL,
	unix.SYS_PRLIMIT64, unix.SYS_GETRLIMIT, unix.SYS_GETRUSAGE,
	unix.SYS_SCHED_YIELD, unix.SYS_SCHED_GETAFFINITY, unix.SYS_FUTEX,

	// signals
	unix.SYS_RT_SIGACTION, unix.SYS_RT_SIGPROCMASK, unix.SYS_RT_SIGRETURN,
	unix.SYS_SIGALTSTACK,

	// time and sleep
	unix.SYS_NANOSLEEP, unix.SYS_CLOCK_NANOSLEEP, unix.SYS_CLOCK_GETTIME,
	unix.SYS_CLOCK_GETRES, unix.SYS_GETTIMEOFDAY,

	// polling
	unix.SYS_EPOLL_CREATE1, unix.SYS_EPOLL_CTL, unix.SYS_EPOLL_PWAIT,
	unix.SYS_PPOLL, unix.SYS_PSELECT6,

	// sockets (LLM and connector HTTPS traffic)
	unix.SYS_SOCKET, unix.SYS_CONNECT, unix.SYS_SENDTO, unix.SYS_RECVFROM,
	unix.SYS_SENDMSG, unix.SYS_RECVMSG, unix.SYS_SHUTDOWN, unix.SYS_BIND,
	unix.SYS_GETSOCKNAME, unix.SYS_GETPEERNAME, unix.SYS_SOCKETPAIR,
	unix.SYS_SETSOCKOPT, unix.SYS_GETSOCKOPT,

	// identity and misc
	unix.SYS_GETUID, unix.SYS_GETGID, unix.SYS_GETEUID, unix.SYS_GETEGID,
	unix.SYS_UNAME, unix.SYS_SYSINFO, unix.SYS_GETRANDOM,
}

// applySeccomp installs the syscall filter. Everything outside the whitelist
// fails with EPERM rather than SIGSYS so misbehaviour surfaces as an
// observable errno in logs.
func applySeccomp() error {
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("prctl(NO_NEW_PRIVS): %w", err)
	}

	prog := buildSeccompFilter(append(allowedSyscalls, archSyscalls...))
	fprog := unix.SockFprog{
		Len:    uint16(len(prog)),
		Filter: &prog[0],
	}

	if _, _, errno := unix.RawSyscall(unix.SYS_SECCOMP,
		unix.SECCOMP_SET_MODE_FILTER, 0, uintptr(unsafe.Pointer(&fprog))); errno != 0 {
		return fmt.Errorf("seccomp(SET_MODE_FILTER): %v", errno)
	}

	slog.Info("sandbox: seccomp filter installed", "allowed_syscalls", len(prog)-5)
	return nil
}

// buildSeccompFilter constructs the classic BPF program:
//
//	0:      ld  arch
//	1:      jeq COMPILED_ARCH ? +0 : deny
//	2:      ld  nr
//	3..N+2: jeq nr_i ? allow : next
//	N+3:    ret ERRNO(EPERM)   (default)
//	N+4:    ret ALLOW
func buildSeccompFilter(allowed []uint32) []unix.SockFilter {
	n := len(allowed)
	prog := make([]unix.SockFilter, 0, n+5)

	// Reject binaries running under a foreign architecture/ABI outright.
	prog = append(prog, unix.SockFilter{
		Code: unix.BPF_LD | unix.BPF_W | unix.BPF_ABS,
		K:    seccompDataArch,
	})
	prog = append(prog, unix.SockFilter{
		Code: unix.BPF_JMP | unix.BPF_JEQ | unix.BPF_K,
		Jt:   0,
		Jf:   uint8(n + 1), // to the deny return
		K:    seccompAuditArch,
	})

	prog = append(prog, unix.SockFilter{
		Code: unix.BPF_LD | unix.BPF_W | unix.BPF_ABS,
		K:    seccompDataNr,
	})

	// Linear chain of equality checks against the whitelist.
	for i, nr := range allowed {
		prog = append(prog, unix.SockFilter{
			Code: unix.BPF_JMP | unix.BPF_JEQ | unix.BPF_K,
			Jt:   uint8(n - i), // distance to the allow return
			Jf:   0,
			K:    nr,
		})
	}

	prog = append(prog, unix.SockFilter{
		Code: unix.BPF_RET | unix.BPF_K,
		K:    seccompRetErrno | uint32(unix.EPERM),
	})
	prog = append(prog, unix.SockFilter{
		Code: unix.BPF_RET | unix.BPF_K,
		K:    seccompRetAllow,
	})

	return prog
}

// SeccompAvailable probes whether the kernel supports seccomp filtering.
func SeccompAvailable() bool {
	// EFAULT with a null args pointer means the operation itself exists.
	_, _, errno := unix.RawSyscall(unix.SYS_SECCOMP, unix.SECCOMP_GET_ACTION_AVAIL, 0, 0)
	return errno != unix.EINVAL && errno != unix.ENOSYS
}
