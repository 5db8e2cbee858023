// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package filestore is a [durable.Store] that keeps one file per key in a
// local directory, with a quota on the total number of bytes stored.
//
// This is the small, fast local tier: writes are cheap and synchronous, but
// the quota is deliberately low so that large documents go elsewhere.
package filestore

import (
	"context"
	"encoding/base32"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/opentofu/mapsync/internal/durable"
)

// DefaultLimit is the quota used when [Open] is given a limit of zero.
const DefaultLimit = 5 << 20

// Every value file has this suffix, so that we can tolerate other software
// dropping its own files into the directory.
const filenameSuffix = ".mapdoc"

// lockFilename is never a valid value filename because it has no suffix.
const lockFilename = ".lock"

// Most filesystems reject names longer than this.
const maxFilenameLen = 255

var keyEncoding = base32.HexEncoding.WithPadding(base32.NoPadding)

// Store is a directory-backed [durable.Store].
//
// Locking relies on fcntl on Unix-style systems and LockFileEx on Windows,
// so several processes can share a directory as long as the filesystem
// supports those mechanisms. Some network filesystems do not.
type Store struct {
	root  *os.Root
	limit int64

	// mu serializes access from within this process, since OS-level locks
	// are held per process rather than per goroutine.
	mu       sync.Mutex
	lockFile *os.File
}

var _ durable.Store = (*Store)(nil)

// Open creates the directory if necessary and returns a store that uses it.
//
// limit is the maximum total size of all values in bytes, or zero to use
// [DefaultLimit].
func Open(dir string, limit int64) (*Store, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, err
	}
	lockFile, err := root.OpenFile(lockFilename, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		root.Close()
		return nil, fmt.Errorf("opening lock file: %w", err)
	}
	log.Printf("[TRACE] filestore: opened %s with a quota of %d bytes", dir, limit)
	return &Store{root: root, limit: limit, lockFile: lockFile}, nil
}

// Limit returns the quota of the store in bytes.
func (s *Store) Limit() int64 {
	return s.limit
}

// Close releases the directory handle. The store must not be used after
// calling Close.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(s.lockFile.Close(), s.root.Close())
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	filename, err := s.filename(key)
	if err != nil {
		return nil, err
	}
	unlock, err := s.lock(ctx, false)
	if err != nil {
		return nil, err
	}
	defer unlock()

	data, err := s.root.ReadFile(filename)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, durable.NotFoundError(key)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", key, err)
	}
	return data, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	filename, err := s.filename(key)
	if err != nil {
		return err
	}
	unlock, err := s.lock(ctx, true)
	if err != nil {
		return err
	}
	defer unlock()

	used, err := s.usedExcept(filename)
	if err != nil {
		return err
	}
	if total := used + int64(len(value)); total > s.limit {
		return &durable.CapacityError{Key: key, Size: total, Limit: s.limit}
	}

	// We write to a temporary file first so that a crash part way through
	// leaves the previous value intact.
	tmpName := filename + ".tmp"
	err = s.writeFile(tmpName, value)
	if err != nil {
		_ = s.root.Remove(tmpName)
		return fmt.Errorf("writing %q: %w", key, err)
	}
	if err := s.root.Rename(tmpName, filename); err != nil {
		_ = s.root.Remove(tmpName)
		return fmt.Errorf("replacing %q: %w", key, err)
	}
	return nil
}

func (s *Store) writeFile(name string, value []byte) error {
	f, err := s.root.OpenFile(name, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	_, err = f.Write(value)
	if err == nil {
		err = f.Sync()
	}
	return errors.Join(err, f.Close())
}

func (s *Store) Delete(ctx context.Context, key string) error {
	filename, err := s.filename(key)
	if err != nil {
		return err
	}
	unlock, err := s.lock(ctx, true)
	if err != nil {
		return err
	}
	defer unlock()

	err = s.root.Remove(filename)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting %q: %w", key, err)
	}
	return nil
}

func (s *Store) Keys(ctx context.Context) ([]string, error) {
	unlock, err := s.lock(ctx, false)
	if err != nil {
		return nil, err
	}
	defer unlock()

	entries, err := s.valueFiles()
	if err != nil {
		return nil, err
	}
	ret := make([]string, 0, len(entries))
	for _, entry := range entries {
		ret = append(ret, entry.key)
	}
	return ret, nil
}

// Used returns the total number of bytes currently stored.
func (s *Store) Used(ctx context.Context) (int64, error) {
	unlock, err := s.lock(ctx, false)
	if err != nil {
		return 0, err
	}
	defer unlock()
	return s.usedExcept("")
}

type valueFile struct {
	key      string
	filename string
	size     int64
}

func (s *Store) valueFiles() ([]valueFile, error) {
	// NOTE: The result from os.Root.FS is guaranteed by its documentation
	// to implement fs.ReadDirFS.
	entries, err := s.root.FS().(fs.ReadDirFS).ReadDir(".")
	if err != nil {
		return nil, err
	}
	var ret []valueFile
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		filename := entry.Name()
		raw, ok := strings.CutSuffix(filename, filenameSuffix)
		if !ok {
			continue
		}
		key, err := decodeKey(raw)
		if err != nil {
			continue // not one of ours
		}
		info, err := entry.Info()
		if err != nil {
			continue // vanished since we listed the directory
		}
		ret = append(ret, valueFile{key: key, filename: filename, size: info.Size()})
	}
	return ret, nil
}

func (s *Store) usedExcept(filename string) (int64, error) {
	files, err := s.valueFiles()
	if err != nil {
		return 0, fmt.Errorf("measuring storage use: %w", err)
	}
	var used int64
	for _, f := range files {
		if f.filename != filename {
			used += f.size
		}
	}
	return used, nil
}

func (s *Store) filename(key string) (string, error) {
	if err := durable.ValidateKey(key); err != nil {
		return "", err
	}
	name := encodeKey(key) + filenameSuffix
	if len(name) > maxFilenameLen {
		return "", fmt.Errorf("%w: %q is too long", durable.ErrInvalidKey, key)
	}
	return name, nil
}

// lock acquires the in-process mutex and then the OS-level lock, returning
// a function that releases both.
func (s *Store) lock(ctx context.Context, exclusive bool) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	for {
		err := lockFile(s.lockFile, exclusive)
		if err == nil {
			break
		}
		if !isContendedLockError(err) {
			s.mu.Unlock()
			return nil, fmt.Errorf("locking storage directory: %w", err)
		}

		timer := time.NewTimer(50 * time.Millisecond)
		select {
		case <-timer.C:
			continue
		case <-ctx.Done():
			s.mu.Unlock()
			return nil, ctx.Err()
		}
	}
	return func() {
		if err := unlockFile(s.lockFile); err != nil {
			log.Printf("[WARN] filestore: failed to release directory lock: %s", err)
		}
		s.mu.Unlock()
	}, nil
}

// Filenames use lowercase base32hex so that they survive case-insensitive
// filesystems and never contain path separators.
func encodeKey(key string) string {
	return strings.ToLower(keyEncoding.EncodeToString([]byte(key)))
}

func decodeKey(raw string) (string, error) {
	b, err := keyEncoding.DecodeString(strings.ToUpper(raw))
	if err != nil {
		return "", fmt.Errorf("invalid base32 encoding")
	}
	return string(b), nil
}
