// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package command

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"path/filepath"

	"github.com/mitchellh/cli"
	"github.com/spf13/afero"

	"github.com/opentofu/mapsync/internal/config"
	"github.com/opentofu/mapsync/internal/durable"
	"github.com/opentofu/mapsync/internal/durable/filestore"
	"github.com/opentofu/mapsync/internal/durable/inmem"
	"github.com/opentofu/mapsync/internal/durable/sqlitestore"
	"github.com/opentofu/mapsync/internal/peersync"
	"github.com/opentofu/mapsync/internal/prefs"
	"github.com/opentofu/mapsync/internal/remote"
	"github.com/opentofu/mapsync/internal/resolver"
	"github.com/opentofu/mapsync/internal/tiered"
)

// documentPrefix keeps document keys apart from preferences in Tier A.
const documentPrefix = "map."

// Meta holds what every command shares.
type Meta struct {
	Ui cli.Ui

	// Fs is used for configuration, input files and static content.
	Fs afero.Fs

	// ShutdownCtx is cancelled when the user interrupts the process.
	ShutdownCtx context.Context

	configPath string
	config     *config.Config
}

// defaultFlagSet returns a flag set with the options every command
// accepts.
func (m *Meta) defaultFlagSet(name string) *flag.FlagSet {
	f := flag.NewFlagSet(name, flag.ContinueOnError)
	f.SetOutput(io.Discard)
	f.StringVar(&m.configPath, "config", "", "config")
	return f
}

func (m *Meta) context() context.Context {
	if m.ShutdownCtx != nil {
		return m.ShutdownCtx
	}
	return context.Background()
}

func (m *Meta) fs() afero.Fs {
	if m.Fs == nil {
		m.Fs = afero.NewOsFs()
	}
	return m.Fs
}

// Config loads the configuration once.
func (m *Meta) Config() (*config.Config, error) {
	if m.config != nil {
		return m.config, nil
	}
	cfg, err := config.Load(m.fs(), m.configPath)
	if err != nil {
		return nil, err
	}
	m.config = cfg
	return cfg, nil
}

// localStores holds the open local tiers.
type localStores struct {
	// Fast is all of Tier A, including preferences.
	Fast  durable.Store
	Store *tiered.Store

	closers []io.Closer
}

func (l *localStores) Close() error {
	var errs []error
	for _, c := range l.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// openLocal opens both local tiers in the configured storage directory,
// or in memory if there is none.
func (m *Meta) openLocal(ctx context.Context) (*localStores, error) {
	cfg, err := m.Config()
	if err != nil {
		return nil, err
	}
	ret := &localStores{}

	var fast, large durable.Store
	if cfg.Storage.Dir == "" {
		log.Printf("[DEBUG] No storage directory, keeping documents in memory")
		fast = inmem.New(cfg.Storage.FastLimit)
		large = inmem.New(0)
	} else {
		// Opening Tier A also creates the storage directory.
		fs, err := filestore.Open(filepath.Join(cfg.Storage.Dir, "fast"), cfg.Storage.FastLimit)
		if err != nil {
			return nil, fmt.Errorf("opening tier A: %w", err)
		}
		ret.closers = append(ret.closers, fs)

		db, err := sqlitestore.Open(ctx, filepath.Join(cfg.Storage.Dir, "documents.db"), 0)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("opening tier B: %w", err), ret.Close())
		}
		ret.closers = append(ret.closers, db)
		fast, large = fs, db
	}

	ret.Fast = fast
	ret.Store = tiered.New(
		durable.WithPrefix(fast, documentPrefix),
		large,
		tiered.WithThreshold(cfg.Storage.Threshold),
	)
	return ret, nil
}

// remoteClient returns the map API client, or nil if no remote is
// configured.
func (m *Meta) remoteClient(ctx context.Context) (*remote.Client, error) {
	cfg, err := m.Config()
	if err != nil {
		return nil, err
	}
	if cfg.Remote.Address == "" {
		return nil, nil
	}
	return remote.New(ctx, remote.Config{
		Address:  cfg.Remote.Address,
		Retries:  cfg.Remote.Retries,
		Timeout:  cfg.Remote.Timeout,
		Headers:  cfg.Remote.Headers,
		Username: cfg.Remote.Username,
		Password: cfg.Remote.Password,
	})
}

// bundle returns the static fallback source: the configured file if there
// is one, otherwise the remote's bundle endpoint.
func (m *Meta) bundle(client *remote.Client) (resolver.BundleLoader, error) {
	cfg, err := m.Config()
	if err != nil {
		return nil, err
	}
	if cfg.Remote.Bundle != "" {
		return &remote.FileBundle{Fs: m.fs(), Path: cfg.Remote.Bundle}, nil
	}
	if client != nil {
		return client, nil
	}
	return nil, nil
}

// peerChannel connects to the configured relay for document, or returns
// nil if there is none. The returned function disconnects.
func (m *Meta) peerChannel(ctx context.Context, document string) (*peersync.Channel, func(), error) {
	cfg, err := m.Config()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Peer.Relay == "" {
		return nil, func() {}, nil
	}
	tr, err := peersync.Dial(ctx, cfg.Peer.Relay, document, cfg.Peer.Origin)
	if err != nil {
		return nil, nil, err
	}
	ch := peersync.NewChannel(tr, document, cfg.Peer.Origin)
	return ch, func() {
		ch.Close()
		if err := tr.Close(); err != nil {
			log.Printf("[DEBUG] closing relay connection: %s", err)
		}
	}, nil
}

// preferences loads the preferences stored in Tier A.
func (m *Meta) preferences(ctx context.Context, local *localStores) *prefs.Preferences {
	return prefs.Load(ctx, local.Fast)
}
