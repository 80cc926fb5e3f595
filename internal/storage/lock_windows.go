//go:build windows

package storage

import (
	"os"

	"golang.org/x/sys/windows"
)

// Windows locks a byte range rather than the whole file; every participant
// locks the first byte.

func lockFile(f *os.File, mode lockMode) error {
	var flags uint32
	if mode == exclusive {
		flags = windows.LOCKFILE_EXCLUSIVE_LOCK
	}
	return windows.LockFileEx(windows.Handle(f.Fd()), flags, 0, 1, 0, new(windows.Overlapped))
}

func unlockFile(f *os.File) error {
	return windows.UnlockFileEx(windows.Handle(f.Fd()), 0, 1, 0, new(windows.Overlapped))
}
