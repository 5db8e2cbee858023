// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

//go:build !windows

package filestore

import (
	"errors"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// The storage directory is guarded by a whole-file fcntl lock on its lock
// file. Readers share it; writers take it exclusively, so that two editor
// processes on one machine never interleave a value file with its rename.

func lockFile(target *os.File, exclusive bool) error {
	typ := int16(unix.F_RDLCK)
	if exclusive {
		typ = unix.F_WRLCK
	}
	return fcntlLock(target, typ)
}

func unlockFile(target *os.File) error {
	return fcntlLock(target, unix.F_UNLCK)
}

// fcntlLock never blocks. Contention is reported as an error that
// isContendedLockError recognizes, and the caller retries.
func fcntlLock(target *os.File, typ int16) error {
	return unix.FcntlFlock(target.Fd(), unix.F_SETLK, &unix.Flock_t{
		Type:   typ,
		Whence: int16(io.SeekStart),
		// Zero length covers the whole file, however large it grows.
		Len: 0,
	})
}

// isContendedLockError reports whether err means another process holds a
// conflicting lock. Platforms disagree on the errno, so all of them count.
func isContendedLockError(err error) bool {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return false
	}
	return errno == unix.EAGAIN || errno == unix.EACCES || errno == unix.EINTR
}
