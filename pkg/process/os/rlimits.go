//go:build !windows

package os

import "golang.org/x/sys/unix"

// Resource identifiers for syscall.Setrlimit. These aren't exported
// by the syscall package on every platform, so pull them from
// golang.org/x/sys/unix instead, which tracks the real kernel/libc
// values per-GOOS.
const (
	rlimitNOFILE = unix.RLIMIT_NOFILE
	rlimitNPROC  = unix.RLIMIT_NPROC
	rlimitFSIZE  = unix.RLIMIT_FSIZE
)
