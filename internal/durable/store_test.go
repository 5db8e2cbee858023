// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package durable

import (
	"errors"
	"testing"
)

func TestCapacityError(t *testing.T) {
	var err error = &CapacityError{Key: "default", Size: 11, Limit: 10}
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatal("CapacityError does not match ErrCapacityExceeded")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatal("CapacityError matches ErrNotFound")
	}
	if got, want := err.Error(), `writing "default" would use 11 bytes of a 10 byte quota`; got != want {
		t.Fatalf("wrong message\ngot:  %s\nwant: %s", got, want)
	}
}

func TestValidateKey(t *testing.T) {
	for _, key := range []string{"default", "pref.autosave", "with spaces/and/slashes", "ünïcode"} {
		if err := ValidateKey(key); err != nil {
			t.Errorf("%q: unexpected error: %s", key, err)
		}
	}
	for _, key := range []string{"", "tab\there", "nul\x00"} {
		if err := ValidateKey(key); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("%q: wrong error: %v", key, err)
		}
	}
}

func TestNotFoundError(t *testing.T) {
	err := NotFoundError("default")
	if !IsNotFound(err) {
		t.Fatal("NotFoundError is not recognized by IsNotFound")
	}
	if got, want := err.Error(), `"default": not found`; got != want {
		t.Fatalf("wrong message %q, want %q", got, want)
	}
}
