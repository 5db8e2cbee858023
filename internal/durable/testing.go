// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package durable

import (
	"bytes"
	"errors"
	"slices"
	"testing"
)

// TestStore runs the common set of behaviors every [Store] must have
// against the given store, which must start out empty.
func TestStore(t *testing.T, s Store) {
	t.Helper()
	ctx := t.Context()

	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatalf("listing keys of empty store: %s", err)
	}
	if len(keys) != 0 {
		t.Fatalf("store is not empty: %q", keys)
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("wrong error getting missing key: %v", err)
	}

	alpha := []byte(`{"chunks":{"0,0":{"v":1}}}`)
	if err := s.Put(ctx, "alpha", alpha); err != nil {
		t.Fatalf("put alpha: %s", err)
	}
	got, err := s.Get(ctx, "alpha")
	if err != nil {
		t.Fatalf("get alpha: %s", err)
	}
	if !bytes.Equal(got, alpha) {
		t.Fatalf("wrong value for alpha\ngot:  %s\nwant: %s", got, alpha)
	}

	// Returned slices belong to the caller.
	got[0] = 'X'
	again, err := s.Get(ctx, "alpha")
	if err != nil {
		t.Fatalf("get alpha again: %s", err)
	}
	if !bytes.Equal(again, alpha) {
		t.Fatalf("stored value was modified through a returned slice: %s", again)
	}

	// Overwriting replaces the whole value, including when it gets shorter.
	shorter := []byte(`{"chunks":{}}`)
	if err := s.Put(ctx, "alpha", shorter); err != nil {
		t.Fatalf("overwrite alpha: %s", err)
	}
	got, err = s.Get(ctx, "alpha")
	if err != nil {
		t.Fatalf("get overwritten alpha: %s", err)
	}
	if !bytes.Equal(got, shorter) {
		t.Fatalf("wrong value after overwrite\ngot:  %s\nwant: %s", got, shorter)
	}

	if err := s.Put(ctx, "beta/with spaces", []byte(`{}`)); err != nil {
		t.Fatalf("put beta: %s", err)
	}
	keys, err = s.Keys(ctx)
	if err != nil {
		t.Fatalf("listing keys: %s", err)
	}
	slices.Sort(keys)
	if want := []string{"alpha", "beta/with spaces"}; !slices.Equal(keys, want) {
		t.Fatalf("wrong keys\ngot:  %q\nwant: %q", keys, want)
	}

	if err := s.Delete(ctx, "alpha"); err != nil {
		t.Fatalf("delete alpha: %s", err)
	}
	if _, err := s.Get(ctx, "alpha"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("wrong error getting deleted key: %v", err)
	}
	if err := s.Delete(ctx, "alpha"); err != nil {
		t.Fatalf("deleting an absent key should succeed, got: %s", err)
	}

	if err := s.Delete(ctx, "beta/with spaces"); err != nil {
		t.Fatalf("delete beta: %s", err)
	}
	keys, err = s.Keys(ctx)
	if err != nil {
		t.Fatalf("listing keys after deletes: %s", err)
	}
	if len(keys) != 0 {
		t.Fatalf("store should be empty after deletes, has %q", keys)
	}
}

// TestCapacity checks that a store with the given byte limit rejects a value
// that cannot fit, and that the rejection leaves the previous value intact.
func TestCapacity(t *testing.T, s Store, limit int64) {
	t.Helper()
	ctx := t.Context()

	small := []byte("small")
	if err := s.Put(ctx, "doc", small); err != nil {
		t.Fatalf("put small value: %s", err)
	}

	big := bytes.Repeat([]byte{'x'}, int(limit)+1)
	err := s.Put(ctx, "doc", big)
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("wrong error for oversized value: %v", err)
	}
	var capErr *CapacityError
	if !errors.As(err, &capErr) {
		t.Fatalf("error is not a *CapacityError: %T", err)
	}
	if capErr.Limit != limit {
		t.Errorf("wrong limit in error: got %d, want %d", capErr.Limit, limit)
	}

	got, err := s.Get(ctx, "doc")
	if err != nil {
		t.Fatalf("get after rejected write: %s", err)
	}
	if !bytes.Equal(got, small) {
		t.Fatalf("rejected write changed the stored value to %q", got)
	}

	if err := s.Delete(ctx, "doc"); err != nil {
		t.Fatalf("cleanup: %s", err)
	}
}
