//go:build linux

package sandbox

import (
	"fmt"
	"log/slog"

	"golang.org/x/sys/unix"
)

// Filesystem access rights handled by the ruleset (Landlock ABI v1).
// Anything not granted beneath an added path fails with EACCES once the
// ruleset is enforced.
const landlockHandledV1 = unix.LANDLOCK_ACCESS_FS_EXECUTE |
	unix.LANDLOCK_ACCESS_FS_WRITE_FILE |
	unix.LANDLOCK_ACCESS_FS_READ_FILE |
	unix.LANDLOCK_ACCESS_FS_READ_DIR |
	unix.LANDLOCK_ACCESS_FS_REMOVE_DIR |
	unix.LANDLOCK_ACCESS_FS_REMOVE_FILE |
	unix.LANDLOCK_ACCESS_FS_MAKE_CHAR |
	unix.LANDLOCK_ACCESS_FS_MAKE_DIR |
	unix.LANDLOCK_ACCESS_FS_MAKE_REG |
	unix.LANDLOCK_ACCESS_FS_MAKE_SOCK |
	unix.LANDLOCK_ACCESS_FS_MAKE_FIFO |
	unix.LANDLOCK_ACCESS_FS_MAKE_BLOCK |
	unix.LANDLOCK_ACCESS_FS_MAKE_SYM

const (
	landlockAccessRead = unix.LANDLOCK_ACCESS_FS_READ_FILE |
		unix.LANDLOCK_ACCESS_FS_READ_DIR

	landlockAccessWrite = landlockAccessRead |
		unix.LANDLOCK_ACCESS_FS_WRITE_FILE |
		unix.LANDLOCK_ACCESS_FS_REMOVE_DIR |
		unix.LANDLOCK_ACCESS_FS_REMOVE_FILE |
		unix.LANDLOCK_ACCESS_FS_MAKE_DIR |
		unix.LANDLOCK_ACCESS_FS_MAKE_REG

	landlockAccessExec = landlockAccessRead | unix.LANDLOCK_ACCESS_FS_EXECUTE
)

// Ambient read allowances required for normal operation regardless of the
// configured policy: resolver and TLS trust state, system libraries, and the
// process's own proc entries.
var systemReadPaths = []string{
	"/etc/resolv.conf",
	"/etc/hosts",
	"/etc/nsswitch.conf",
	"/etc/ssl",
	"/etc/ca-certificates",
	"/usr/share/ca-certificates",
	"/usr/lib",
	"/usr/local/lib",
	"/lib",
	"/lib64",
	"/proc/self",
}

// Standard executable directories get read+execute so run_command keeps
// working under the ruleset. No other path is granted execute, so binaries
// outside these directories (skill binaries included) cannot be executed.
var systemExecPaths = []string{
	"/usr/bin",
	"/usr/local/bin",
	"/bin",
	"/usr/sbin",
}

// applyLandlock builds and enforces the filesystem ruleset. Returns an error
// when the kernel cannot provide Landlock; rule-level problems (missing
// paths) are skipped silently.
func applyLandlock(policy Policy) error {
	abi, err := unix.LandlockCreateRuleset(nil, unix.LANDLOCK_CREATE_RULESET_VERSION)
	if err != nil {
		return fmt.Errorf("landlock unavailable: %w", err)
	}

	handled := uint64(landlockHandledV1)
	writeAccess := uint64(landlockAccessWrite)
	if abi >= 3 {
		// Truncation became a distinct right in ABI v3; handle it so it
		// cannot be used outside write paths, and grant it alongside writes.
		handled |= unix.LANDLOCK_ACCESS_FS_TRUNCATE
		writeAccess |= unix.LANDLOCK_ACCESS_FS_TRUNCATE
	}

	rulesetFd, err := unix.LandlockCreateRuleset(&unix.LandlockRulesetAttr{Access_fs: handled}, 0)
	if err != nil {
		return fmt.Errorf("create ruleset: %w", err)
	}
	defer unix.Close(rulesetFd)

	addRules := func(paths []string, access uint64) {
		for _, path := range paths {
			if err := addPathRule(rulesetFd, path, access); err != nil {
				slog.Debug("landlock: skipping path", "path", path, "error", err)
			}
		}
	}

	addRules(policy.ReadPaths, landlockAccessRead)
	addRules(policy.WritePaths, writeAccess)
	addRules(systemReadPaths, landlockAccessRead)
	addRules(systemExecPaths, uint64(landlockAccessExec))
	addRules([]string{"/tmp"}, writeAccess)

	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("prctl(NO_NEW_PRIVS): %w", err)
	}
	if err := unix.LandlockRestrictSelf(rulesetFd, 0); err != nil {
		return fmt.Errorf("restrict self: %w", err)
	}

	slog.Info("sandbox: landlock enforced", "abi", abi,
		"read_paths", len(policy.ReadPaths), "write_paths", len(policy.WritePaths))
	return nil
}

// addPathRule grants access beneath path. Non-existent paths are skipped.
func addPathRule(rulesetFd int, path string, access uint64) error {
	fd, err := unix.Open(path, unix.O_PATH|unix.O_CLOEXEC, 0)
	if err != nil {
		return err
	}
	defer unix.Close(fd)

	attr := unix.LandlockPathBeneathAttr{
		Allowed_access: access,
		Parent_fd:      int32(fd),
	}
	return unix.LandlockAddPathBeneathRule(rulesetFd, &attr, 0)
}

// LandlockABI probes the kernel's Landlock ABI version. Returns 0 when the
// facility is unavailable.
func LandlockABI() int {
	abi, err := unix.LandlockCreateRuleset(nil, unix.LANDLOCK_CREATE_RULESET_VERSION)
	if err != nil {
		return 0
	}
	return abi
}
