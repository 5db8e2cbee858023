// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package inmem

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/opentofu/mapsync/internal/durable"
)

func TestStore_impl(t *testing.T) {
	var _ durable.Store = new(Store)
}

func TestStore(t *testing.T) {
	durable.TestStore(t, New(0))
}

func TestStoreCapacity(t *testing.T) {
	durable.TestCapacity(t, New(64), 64)
}

func TestStoreUsedAccounting(t *testing.T) {
	ctx := t.Context()
	s := New(10)

	if err := s.Put(ctx, "a", []byte("12345")); err != nil {
		t.Fatal(err)
	}
	// Replacing a value frees the old one first, so this fits exactly.
	if err := s.Put(ctx, "a", []byte("123")); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, "b", []byte("1234567")); err != nil {
		t.Fatal(err)
	}
	if got := s.Used(); got != 10 {
		t.Fatalf("wrong usage %d, want 10", got)
	}
	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if got := s.Used(); got != 7 {
		t.Fatalf("wrong usage after delete %d, want 7", got)
	}
}

func TestStoreSnapshot(t *testing.T) {
	ctx := t.Context()
	s := New(0)
	if err := s.Put(ctx, "a", []byte("one")); err != nil {
		t.Fatal(err)
	}

	snap, err := s.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	snap["a"][0] = 'X'

	got, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff("one", string(got)); diff != "" {
		t.Errorf("snapshot aliases the store\n%s", diff)
	}
}
