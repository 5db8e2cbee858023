// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package durable

import (
	"context"
	"errors"
	"fmt"
)

// Store is the interface implemented by a durable key/value store that
// holds whole serialized documents.
//
// Values are opaque byte strings and each Put replaces the whole previous
// value, so readers never observe a partially-applied write.
type Store interface {
	// Get returns the value stored for key, or an error wrapping
	// [ErrNotFound] if there is none.
	//
	// The caller owns the returned slice.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put creates or replaces the value stored for key.
	//
	// Stores with limited capacity return an error wrapping
	// [ErrCapacityExceeded], usually a [*CapacityError], when the value
	// cannot fit. In that case the previous value, if any, is unchanged.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes the value stored for key. Deleting a key that has no
	// value is not an error.
	Delete(ctx context.Context, key string) error

	// Keys returns all of the keys that currently have a value, in no
	// particular order.
	Keys(ctx context.Context) ([]string, error)
}

var (
	// ErrNotFound is returned by [Store.Get] when the requested key has no
	// value.
	ErrNotFound = errors.New("not found")

	// ErrCapacityExceeded is returned by [Store.Put] when a store with a
	// size quota cannot accept the value.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrInvalidKey is returned for keys a store cannot represent.
	ErrInvalidKey = errors.New("invalid key")
)

// CapacityError describes a rejected write to a capacity-limited store.
type CapacityError struct {
	Key string

	// Size is the number of bytes the store would hold after the write, and
	// Limit is the most it is allowed to hold.
	Size  int64
	Limit int64
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("writing %q would use %d bytes of a %d byte quota", e.Key, e.Size, e.Limit)
}

func (e *CapacityError) Is(target error) bool {
	return target == ErrCapacityExceeded
}

// NotFoundError returns an error wrapping [ErrNotFound] that mentions the
// key that was requested.
func NotFoundError(key string) error {
	return fmt.Errorf("%q: %w", key, ErrNotFound)
}

// IsNotFound returns true if err reports a missing key.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// ValidateKey returns an error wrapping [ErrInvalidKey] if key cannot be
// used with any store.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: must not be empty", ErrInvalidKey)
	}
	for _, r := range key {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("%w: %q contains control characters", ErrInvalidKey, key)
		}
	}
	return nil
}
