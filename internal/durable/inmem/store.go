// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package inmem is a [durable.Store] that keeps everything in memory, for
// tests and for editor sessions that must not touch the disk.
package inmem

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/mitchellh/copystructure"

	"github.com/opentofu/mapsync/internal/durable"
)

// Store is an in-memory [durable.Store]. The zero value is an empty store
// with no capacity limit.
type Store struct {
	// Limit, if positive, is the maximum total number of bytes across all
	// stored values.
	Limit int64

	mu   sync.RWMutex
	data map[string][]byte
	used int64
}

var _ durable.Store = (*Store)(nil)

// New returns an empty store that holds at most limit bytes in total, or
// any amount if limit is zero.
func New(limit int64) *Store {
	return &Store{Limit: limit}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	if !ok {
		return nil, durable.NotFoundError(key)
	}
	return bytes.Clone(v), nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := durable.ValidateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	newUsed := s.used - int64(len(s.data[key])) + int64(len(value))
	if s.Limit > 0 && newUsed > s.Limit {
		return &durable.CapacityError{Key: key, Size: newUsed, Limit: s.Limit}
	}
	if s.data == nil {
		s.data = make(map[string][]byte)
	}
	s.data[key] = bytes.Clone(value)
	s.used = newUsed
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.data[key]; ok {
		s.used -= int64(len(v))
		delete(s.data, key)
	}
	return nil
}

func (s *Store) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ret := make([]string, 0, len(s.data))
	for k := range s.data {
		ret = append(ret, k)
	}
	return ret, nil
}

// Used returns the total number of bytes currently stored.
func (s *Store) Used() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.used
}

// Snapshot returns a deep copy of everything in the store.
func (s *Store) Snapshot() (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.data == nil {
		return map[string][]byte{}, nil
	}
	raw, err := copystructure.Copy(s.data)
	if err != nil {
		return nil, fmt.Errorf("copying store contents: %w", err)
	}
	return raw.(map[string][]byte), nil
}
