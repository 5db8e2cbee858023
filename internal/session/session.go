// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package session ties the persistence components together behind the
// small interface an editor needs: it tells the session about edits, and
// the session keeps the document saved and shared with peers.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/opentofu/mapsync/internal/autosave"
	"github.com/opentofu/mapsync/internal/logging"
	"github.com/opentofu/mapsync/internal/mapdoc"
	"github.com/opentofu/mapsync/internal/peersync"
	"github.com/opentofu/mapsync/internal/resolver"
	"github.com/opentofu/mapsync/internal/tiered"
	"github.com/opentofu/mapsync/internal/viewport"
)

// EditorCore is the editor the session serves.
type EditorCore interface {
	// Serialize returns the current document. The session does not keep
	// or modify it.
	Serialize() *mapdoc.Document

	// LoadData replaces the editor's document.
	LoadData(doc *mapdoc.Document)

	// ViewportWorldRect returns the world rectangle currently on screen,
	// or false if there is none.
	ViewportWorldRect() (viewport.Rect, bool)
}

// LocalStore is satisfied by [tiered.Store].
type LocalStore interface {
	resolver.LocalStore
}

// RemoteStore is satisfied by [remote.Client].
type RemoteStore interface {
	Load(ctx context.Context, name string) (*mapdoc.Document, error)
	Save(ctx context.Context, name string, doc *mapdoc.Document) error
	Beacon(name string, doc *mapdoc.Document)
}

// StatusFunc receives short informational messages for the user.
type StatusFunc func(msg string)

// Config describes the collaborators of a [Session]. Core and Local are
// required; everything else is optional.
type Config struct {
	Name  string
	Core  EditorCore
	Local LocalStore

	Remote RemoteStore
	Bundle resolver.BundleLoader
	Peers  *peersync.Channel
	Params resolver.ParamSink

	// AutoSave reports whether auto-save is on. Nil means always on.
	AutoSave func() bool

	// Window and Clock configure the auto-save debounce.
	Window time.Duration
	Clock  clock.WithDelayedExecution

	Status StatusFunc

	// OnViewport, if set, receives the viewports of other editors.
	OnViewport func(viewport.Rect)

	Logger hclog.Logger
}

// Session serves one editor of one document.
type Session struct {
	name       string
	core       EditorCore
	local      LocalStore
	remote     RemoteStore
	peers      *peersync.Channel
	resolver   *resolver.Resolver
	scheduler  *autosave.Scheduler
	status     StatusFunc
	onViewport func(viewport.Rect)
	logger     hclog.Logger

	stopPeers func()
	closeOnce sync.Once
}

// New returns a session for cfg. The session starts listening to peers
// immediately, but the editor should call [Session.ResolveOnOpen] before
// anything else.
func New(cfg Config) *Session {
	s := &Session{
		name:       cfg.Name,
		core:       cfg.Core,
		local:      cfg.Local,
		remote:     cfg.Remote,
		peers:      cfg.Peers,
		status:     cfg.Status,
		onViewport: cfg.OnViewport,
		logger:     cfg.Logger,
	}
	if s.name == "" {
		s.name = mapdoc.DefaultName
	}
	if s.logger == nil {
		s.logger = logging.NewLogger(nil, "session")
	}

	rcfg := resolver.Config{
		Name:   s.name,
		Local:  cfg.Local,
		Bundle: cfg.Bundle,
		Params: cfg.Params,
		Logger: s.logger.Named("resolver"),
	}
	if cfg.Remote != nil {
		rcfg.Remote = cfg.Remote
	}
	s.resolver = resolver.New(rcfg)

	s.scheduler = autosave.New(s.core.Serialize, s, autosave.Config{
		Window:  cfg.Window,
		Enabled: cfg.AutoSave,
		Clock:   cfg.Clock,
		Logger:  s.logger.Named("autosave"),
	})

	if s.peers != nil {
		s.stopPeers = s.peers.OnReceive(s.receive)
	}
	return s
}

// Name returns the name of the session's document.
func (s *Session) Name() string {
	return s.name
}

// ResolveOnOpen finds the current document and loads it into the editor.
// If there is none the editor gets an empty document.
func (s *Session) ResolveOnOpen(ctx context.Context) (resolver.Source, error) {
	doc, source, err := s.resolver.ResolveOnOpen(ctx)
	if err != nil {
		return resolver.SourceNone, err
	}
	if doc == nil {
		doc = mapdoc.New()
		s.report("No saved map found, starting a new one")
	} else {
		s.report(fmt.Sprintf("Loaded map %q (%s)", s.name, describeSource(source)))
	}
	s.core.LoadData(doc)
	return source, nil
}

// NotifyEdit tells the session the document changed. The document is
// saved once the edits pause.
func (s *Session) NotifyEdit() {
	s.scheduler.NotifyEdit()
}

// FlushNow saves the current document immediately, if auto-save is on.
func (s *Session) FlushNow(ctx context.Context) error {
	return s.scheduler.FlushNow(ctx)
}

// SaveAs saves a copy of the current document under name. The session
// keeps editing its own document.
func (s *Session) SaveAs(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("a map name is required")
	}
	return s.persist(ctx, name, s.core.Serialize())
}

// BroadcastFull sends the current document to the other editors. Editors
// call it after every structural edit.
func (s *Session) BroadcastFull(ctx context.Context) error {
	if s.peers == nil {
		return nil
	}
	return s.peers.BroadcastFull(ctx, s.core.Serialize())
}

// BroadcastViewport sends the editor's viewport to the other editors, if
// it has one.
func (s *Session) BroadcastViewport(ctx context.Context) error {
	if s.peers == nil {
		return nil
	}
	rect, ok := s.core.ViewportWorldRect()
	if !ok {
		return nil
	}
	return s.peers.BroadcastViewport(ctx, rect)
}

// Close cancels any pending auto-save, makes a last best-effort save and
// stops listening to peers.
func (s *Session) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		if s.stopPeers != nil {
			s.stopPeers()
		}
		err = s.scheduler.Close(ctx)
	})
	return err
}

// Wait blocks until all auto-saves started so far have finished.
func (s *Session) Wait() {
	s.scheduler.Wait()
}

// Persist implements [autosave.Pipeline].
func (s *Session) Persist(ctx context.Context, doc *mapdoc.Document) error {
	return s.persist(ctx, s.name, doc)
}

// PersistLocal implements [autosave.Pipeline].
func (s *Session) PersistLocal(ctx context.Context, doc *mapdoc.Document) error {
	_, err := s.saveLocal(ctx, s.name, doc)
	return err
}

// Beacon implements [autosave.Pipeline].
func (s *Session) Beacon(doc *mapdoc.Document) {
	if s.remote != nil {
		s.remote.Beacon(s.name, doc)
	}
}

// persist saves doc to the local tiers and the remote at the same time,
// so a slow remote never delays the local copy. A successful remote save
// is broadcast to peers.
func (s *Session) persist(ctx context.Context, name string, doc *mapdoc.Document) error {
	var localErr, remoteErr error
	var g errgroup.Group

	g.Go(func() error {
		_, localErr = s.saveLocal(ctx, name, doc)
		return nil
	})
	if s.remote != nil {
		g.Go(func() error {
			remoteErr = s.saveRemote(ctx, name, doc)
			return nil
		})
	}
	_ = g.Wait()

	var errs *multierror.Error
	if localErr != nil {
		errs = multierror.Append(errs, localErr)
	}
	if remoteErr != nil {
		errs = multierror.Append(errs, remoteErr)
	}
	return errs.ErrorOrNil()
}

func (s *Session) saveLocal(ctx context.Context, name string, doc *mapdoc.Document) (tiered.Tier, error) {
	tier, err := s.local.Save(ctx, name, doc)
	if err != nil {
		s.report("Could not save the map on this device")
		return tier, fmt.Errorf("saving %q locally: %w", name, err)
	}
	s.logger.Debug("saved document locally", "name", name, "tier", tier)
	return tier, nil
}

func (s *Session) saveRemote(ctx context.Context, name string, doc *mapdoc.Document) error {
	if err := s.remote.Save(ctx, name, doc); err != nil {
		s.report("Could not save the map to the server, it is still saved on this device")
		return fmt.Errorf("saving %q to the server: %w", name, err)
	}
	s.report(fmt.Sprintf("Saved map %q", name))

	if s.peers != nil && name == s.name {
		if err := s.peers.BroadcastFull(ctx, doc); err != nil {
			s.logger.Warn("failed to tell peers about the saved document", "error", err)
		}
	}
	return nil
}

func (s *Session) receive(msg peersync.Message) {
	switch msg.Kind {
	case peersync.KindFull:
		s.core.LoadData(msg.Full)
		s.report("Map updated by another editor")
	case peersync.KindViewport:
		if s.onViewport != nil {
			s.onViewport(*msg.Viewport)
		}
	}
}

func (s *Session) report(msg string) {
	s.logger.Info(msg)
	if s.status != nil {
		s.status(msg)
	}
}

func describeSource(source resolver.Source) string {
	switch source {
	case resolver.SourceLocal:
		return "from this device"
	case resolver.SourceRemote:
		return "from the server"
	case resolver.SourceStatic:
		return "from the built-in default"
	default:
		return "new"
	}
}
