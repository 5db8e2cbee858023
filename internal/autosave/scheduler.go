// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package autosave coalesces bursts of edits into a single save.
//
// Every edit restarts a quiescence timer. When the timer finally fires the
// document is read as it is at that moment and handed to the save pipeline,
// so a continuous stream of edits produces no saves until it pauses.
package autosave

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"k8s.io/utils/clock"

	"github.com/opentofu/mapsync/internal/logging"
	"github.com/opentofu/mapsync/internal/mapdoc"
	"github.com/opentofu/mapsync/internal/tracing"
)

// DefaultWindow is the quiescence window used when none is configured.
const DefaultWindow = 800 * time.Millisecond

// Pipeline persists documents on behalf of the scheduler.
type Pipeline interface {
	// Persist runs the full save: local tiers and remote.
	Persist(ctx context.Context, doc *mapdoc.Document) error

	// PersistLocal saves to the local tiers only.
	PersistLocal(ctx context.Context, doc *mapdoc.Document) error

	// Beacon starts a remote save that the caller does not wait for.
	Beacon(doc *mapdoc.Document)
}

// DocumentSource returns the current state of the document. It is called
// when a save actually happens, never when it is scheduled.
type DocumentSource func() *mapdoc.Document

// Config customizes a [Scheduler].
type Config struct {
	// Window is the quiescence window. Zero means [DefaultWindow].
	Window time.Duration

	// Enabled reports whether auto-save is switched on. It is consulted
	// when an edit is scheduled and again when the timer fires. Nil means
	// always enabled.
	Enabled func() bool

	// Clock provides timers. Nil means the real clock.
	Clock clock.WithDelayedExecution

	Logger hclog.Logger
}

// Scheduler debounces edit notifications. It is safe for concurrent use.
type Scheduler struct {
	source   DocumentSource
	pipeline Pipeline
	window   time.Duration
	enabled  func() bool
	clock    clock.WithDelayedExecution
	logger   hclog.Logger

	mu      sync.Mutex
	pending clock.Timer
	// gen is bumped whenever the pending timer is replaced or cancelled,
	// so a callback that lost the race with Stop can tell it is stale.
	gen    uint64
	closed bool

	// inflight counts running saves. It has its own lock because timer
	// callbacks may run while the clock holds its lock, and NotifyEdit
	// calls into the clock while holding mu.
	inflightMu sync.Mutex
	inflight   int
	idle       *sync.Cond
}

// New returns a scheduler that saves the documents returned by source
// through pipeline.
func New(source DocumentSource, pipeline Pipeline, cfg Config) *Scheduler {
	s := &Scheduler{
		source:   source,
		pipeline: pipeline,
		window:   cfg.Window,
		enabled:  cfg.Enabled,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
	}
	s.idle = sync.NewCond(&s.inflightMu)
	if s.window <= 0 {
		s.window = DefaultWindow
	}
	if s.enabled == nil {
		s.enabled = func() bool { return true }
	}
	if s.clock == nil {
		s.clock = clock.RealClock{}
	}
	if s.logger == nil {
		s.logger = logging.NewLogger(nil, "autosave")
	}
	return s
}

// Window returns the quiescence window.
func (s *Scheduler) Window() time.Duration {
	return s.window
}

// NotifyEdit records that the document changed. Any pending save is
// cancelled and a new one is scheduled one window from now.
func (s *Scheduler) NotifyEdit() {
	if !s.enabled() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.stopLocked()
	gen := s.gen
	// Timer callbacks may run while the clock holds its own lock, so all
	// real work happens on a new goroutine.
	s.pending = s.clock.AfterFunc(s.window, func() {
		s.startSave()
		go s.fire(gen)
	})
}

// Pending reports whether a save is scheduled.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

func (s *Scheduler) startSave() {
	s.inflightMu.Lock()
	s.inflight++
	s.inflightMu.Unlock()
}

func (s *Scheduler) finishSave() {
	s.inflightMu.Lock()
	s.inflight--
	if s.inflight == 0 {
		s.idle.Broadcast()
	}
	s.inflightMu.Unlock()
}

func (s *Scheduler) fire(gen uint64) {
	defer s.finishSave()

	s.mu.Lock()
	if gen != s.gen || s.closed {
		s.mu.Unlock()
		return
	}
	s.pending = nil
	s.mu.Unlock()

	if !s.enabled() {
		s.logger.Debug("auto-save disabled since the edit, skipping save")
		return
	}

	ctx, span := tracing.Tracer().Start(context.Background(), "Auto-save")
	defer span.End()

	doc := s.source()
	if doc == nil {
		return
	}
	if err := s.pipeline.Persist(ctx, doc); err != nil {
		// The next edit schedules another attempt.
		tracing.SetSpanError(span, err)
		s.logger.Warn("auto-save failed", "error", err)
	}
}

// FlushNow cancels any pending save and saves the current document
// immediately. It does nothing when auto-save is disabled.
func (s *Scheduler) FlushNow(ctx context.Context) error {
	if !s.enabled() {
		return nil
	}
	s.mu.Lock()
	s.stopLocked()
	s.mu.Unlock()

	doc := s.source()
	if doc == nil {
		return nil
	}
	return s.pipeline.Persist(ctx, doc)
}

// Close cancels any pending save so that it never fires. If auto-save is
// enabled it then starts a remote beacon without waiting for it, and saves
// the current document to the local tiers. Edits after Close are ignored.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.stopLocked()
	s.mu.Unlock()

	if !s.enabled() {
		return nil
	}
	doc := s.source()
	if doc == nil {
		return nil
	}
	s.pipeline.Beacon(doc)
	return s.pipeline.PersistLocal(ctx, doc)
}

// Wait blocks until no save started by a timer is running. It may be
// called while edits keep arriving.
func (s *Scheduler) Wait() {
	s.inflightMu.Lock()
	for s.inflight > 0 {
		s.idle.Wait()
	}
	s.inflightMu.Unlock()
}

func (s *Scheduler) stopLocked() {
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	s.gen++
}
