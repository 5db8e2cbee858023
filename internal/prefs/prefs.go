// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package prefs holds the user preferences that live next to the
// documents in the small local tier.
package prefs

import (
	"context"
	"strconv"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/opentofu/mapsync/internal/durable"
	"github.com/opentofu/mapsync/internal/logging"
)

// AutoSaveKey is the store key of the auto-save toggle. It cannot collide
// with a document name because the document store is prefixed.
const AutoSaveKey = "pref.autosave"

// Preferences caches the stored preferences and writes changes through to
// the store.
type Preferences struct {
	store  durable.Store
	logger hclog.Logger

	mu       sync.RWMutex
	autoSave bool
}

// Load reads the preferences from store. Missing or unreadable values fall
// back to their defaults, so Load never fails.
func Load(ctx context.Context, store durable.Store) *Preferences {
	p := &Preferences{
		store:    store,
		logger:   logging.NewLogger(nil, "prefs"),
		autoSave: true,
	}

	raw, err := store.Get(ctx, AutoSaveKey)
	switch {
	case durable.IsNotFound(err):
	case err != nil:
		p.logger.Warn("failed to read auto-save preference, using default", "error", err)
	default:
		v, err := strconv.ParseBool(string(raw))
		if err != nil {
			p.logger.Warn("ignoring invalid auto-save preference", "value", string(raw))
			break
		}
		p.autoSave = v
	}
	return p
}

// AutoSave reports whether edits are saved automatically.
func (p *Preferences) AutoSave() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.autoSave
}

// SetAutoSave changes and persists the auto-save toggle. The in-memory
// value changes even if persisting it fails.
func (p *Preferences) SetAutoSave(ctx context.Context, enabled bool) error {
	p.mu.Lock()
	p.autoSave = enabled
	p.mu.Unlock()

	return p.store.Put(ctx, AutoSaveKey, []byte(strconv.FormatBool(enabled)))
}
