// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/opentofu/mapsync/internal/autosave"
	"github.com/opentofu/mapsync/internal/durable"
	"github.com/opentofu/mapsync/internal/durable/inmem"
	"github.com/opentofu/mapsync/internal/mapdoc"
	"github.com/opentofu/mapsync/internal/peersync"
	"github.com/opentofu/mapsync/internal/resolver"
	"github.com/opentofu/mapsync/internal/tiered"
	"github.com/opentofu/mapsync/internal/viewport"
)

type fakeCore struct {
	mu     sync.Mutex
	doc    *mapdoc.Document
	loaded chan *mapdoc.Document
	view   *viewport.Rect
}

func newFakeCore() *fakeCore {
	return &fakeCore{doc: mapdoc.New(), loaded: make(chan *mapdoc.Document, 8)}
}

func (c *fakeCore) Serialize() *mapdoc.Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc.Clone()
}

func (c *fakeCore) LoadData(doc *mapdoc.Document) {
	c.mu.Lock()
	c.doc = doc
	c.mu.Unlock()
	c.loaded <- doc
}

func (c *fakeCore) ViewportWorldRect() (viewport.Rect, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.view == nil {
		return viewport.Rect{}, false
	}
	return *c.view, true
}

func (c *fakeCore) place(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.doc.Chunks[id] = json.RawMessage(`{"placed":true}`)
}

type fakeRemote struct {
	mu      sync.Mutex
	docs    map[string]*mapdoc.Document
	saveErr error
	beacons []string

	// release, if set, holds every save until it is closed.
	release chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{docs: make(map[string]*mapdoc.Document)}
}

func (r *fakeRemote) Load(_ context.Context, name string) (*mapdoc.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[name]
	if !ok {
		return nil, durable.NotFoundError(name)
	}
	return doc.Clone(), nil
}

func (r *fakeRemote) Save(_ context.Context, name string, doc *mapdoc.Document) error {
	if r.release != nil {
		<-r.release
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.docs[name] = doc.Clone()
	return nil
}

func (r *fakeRemote) Beacon(name string, doc *mapdoc.Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beacons = append(r.beacons, name)
}

type testEnv struct {
	core   *fakeCore
	local  *tiered.Store
	remote *fakeRemote
	bus    *peersync.Bus
	clock  *clocktesting.FakeClock

	mu     sync.Mutex
	status []string
}

func (e *testEnv) statuses() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.status...)
}

func newTestEnv() *testEnv {
	return &testEnv{
		core:   newFakeCore(),
		local:  tiered.New(inmem.New(0), inmem.New(0)),
		remote: newFakeRemote(),
		bus:    peersync.NewBus(),
		clock:  clocktesting.NewFakeClock(time.Unix(0, 0)),
	}
}

func (e *testEnv) session(core EditorCore) *Session {
	return New(Config{
		Core:   core,
		Local:  e.local,
		Remote: e.remote,
		Peers:  peersync.NewChannel(e.bus, mapdoc.DefaultName, ""),
		Clock:  e.clock,
		Status: func(msg string) {
			e.mu.Lock()
			e.status = append(e.status, msg)
			e.mu.Unlock()
		},
	})
}

func TestResolveOnOpenEmpty(t *testing.T) {
	env := newTestEnv()
	s := env.session(env.core)

	source, err := s.ResolveOnOpen(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if source != resolver.SourceNone {
		t.Fatalf("wrong source %s", source)
	}
	got := <-env.core.loaded
	if diff := cmp.Diff(mapdoc.New(), got); diff != "" {
		t.Errorf("editor did not get an empty document\n%s", diff)
	}
	if len(env.statuses()) == 0 {
		t.Error("no status reported")
	}
}

func TestResolveOnOpenRemote(t *testing.T) {
	env := newTestEnv()
	doc := mapdoc.New()
	doc.Chunks["r"] = json.RawMessage(`{}`)
	env.remote.docs[mapdoc.DefaultName] = doc

	s := env.session(env.core)
	source, err := s.ResolveOnOpen(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if source != resolver.SourceRemote {
		t.Fatalf("wrong source %s", source)
	}
	if diff := cmp.Diff(doc, <-env.core.loaded); diff != "" {
		t.Errorf("wrong document\n%s", diff)
	}
}

func TestAutoSavePipeline(t *testing.T) {
	ctx := t.Context()
	env := newTestEnv()
	s := env.session(env.core)

	peerCore := newFakeCore()
	peer := env.session(peerCore)
	defer peer.Close(ctx)

	for i := range 3 {
		env.core.place(strconv.Itoa(i))
		s.NotifyEdit()
		env.clock.Step(100 * time.Millisecond)
	}
	env.clock.Step(autosave.DefaultWindow)
	s.Wait()

	want := env.core.Serialize()
	local, tier, err := env.local.Load(ctx, mapdoc.DefaultName)
	if err != nil {
		t.Fatal(err)
	}
	if tier != tiered.TierA {
		t.Errorf("saved to %s", tier)
	}
	if diff := cmp.Diff(want, local); diff != "" {
		t.Errorf("wrong local document\n%s", diff)
	}
	remote, err := env.remote.Load(ctx, mapdoc.DefaultName)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, remote); diff != "" {
		t.Errorf("wrong remote document\n%s", diff)
	}

	// The successful remote save is broadcast to the peer.
	select {
	case got := <-peerCore.loaded:
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("peer got wrong document\n%s", diff)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("peer never received the saved document")
	}
}

func TestSlowRemoteDoesNotBlockLocal(t *testing.T) {
	ctx := t.Context()
	env := newTestEnv()
	env.remote.release = make(chan struct{})
	s := env.session(env.core)

	env.core.place("a")
	done := make(chan error, 1)
	go func() { done <- s.FlushNow(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, _, err := env.local.Load(ctx, mapdoc.DefaultName); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("local save waited for the remote")
		}
		time.Sleep(time.Millisecond)
	}

	close(env.remote.release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

func TestRemoteFailureKeepsLocal(t *testing.T) {
	ctx := t.Context()
	env := newTestEnv()
	env.remote.saveErr = errors.New("503")
	s := env.session(env.core)

	env.core.place("a")
	if err := s.FlushNow(ctx); err == nil {
		t.Fatal("succeeded; want error")
	}
	if _, _, err := env.local.Load(ctx, mapdoc.DefaultName); err != nil {
		t.Fatalf("local copy missing: %s", err)
	}
}

func TestSaveAs(t *testing.T) {
	ctx := t.Context()
	env := newTestEnv()
	s := env.session(env.core)
	env.core.place("a")

	if err := s.SaveAs(ctx, "copy"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := env.local.Load(ctx, "copy"); err != nil {
		t.Errorf("local copy missing: %s", err)
	}
	if _, err := env.remote.Load(ctx, "copy"); err != nil {
		t.Errorf("remote copy missing: %s", err)
	}
	if _, _, err := env.local.Load(ctx, mapdoc.DefaultName); !errors.Is(err, durable.ErrNotFound) {
		t.Errorf("session document was saved too: %v", err)
	}
	if err := s.SaveAs(ctx, ""); err == nil {
		t.Error("empty name accepted")
	}
}

func TestBroadcastFullAndViewport(t *testing.T) {
	ctx := t.Context()
	env := newTestEnv()
	s := env.session(env.core)

	views := make(chan viewport.Rect, 1)
	peerCore := newFakeCore()
	peer := New(Config{
		Core:       peerCore,
		Local:      env.local,
		Peers:      peersync.NewChannel(env.bus, mapdoc.DefaultName, ""),
		Clock:      env.clock,
		OnViewport: func(r viewport.Rect) { views <- r },
	})
	defer peer.Close(ctx)

	env.core.place("live")
	if err := s.BroadcastFull(ctx); err != nil {
		t.Fatal(err)
	}
	select {
	case got := <-peerCore.loaded:
		if _, ok := got.Chunks["live"]; !ok {
			t.Errorf("peer got %v", got.Chunks)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("peer never received the document")
	}

	// No viewport yet, nothing is sent.
	if err := s.BroadcastViewport(ctx); err != nil {
		t.Fatal(err)
	}
	rect := viewport.Rect{X: 1, Y: 2, W: 3, H: 4}
	env.core.mu.Lock()
	env.core.view = &rect
	env.core.mu.Unlock()
	if err := s.BroadcastViewport(ctx); err != nil {
		t.Fatal(err)
	}
	select {
	case got := <-views:
		if got != rect {
			t.Errorf("wrong viewport %v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("peer never received the viewport")
	}
}

func TestClose(t *testing.T) {
	ctx := t.Context()
	env := newTestEnv()
	s := env.session(env.core)

	env.core.place("a")
	s.NotifyEdit()
	if err := s.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatal(err)
	}
	env.clock.Step(autosave.DefaultWindow)
	s.Wait()

	if _, _, err := env.local.Load(ctx, mapdoc.DefaultName); err != nil {
		t.Errorf("teardown did not save locally: %s", err)
	}
	if diff := cmp.Diff([]string{mapdoc.DefaultName}, env.remote.beacons); diff != "" {
		t.Errorf("wrong beacons\n%s", diff)
	}
	if _, err := env.remote.Load(ctx, mapdoc.DefaultName); !errors.Is(err, durable.ErrNotFound) {
		t.Errorf("cancelled auto-save still ran: %v", err)
	}
}

func TestAutoSaveDisabled(t *testing.T) {
	ctx := t.Context()
	env := newTestEnv()
	s := New(Config{
		Core:     env.core,
		Local:    env.local,
		Remote:   env.remote,
		Clock:    env.clock,
		AutoSave: func() bool { return false },
	})

	env.core.place("a")
	s.NotifyEdit()
	env.clock.Step(autosave.DefaultWindow)
	s.Wait()
	if err := s.Close(ctx); err != nil {
		t.Fatal(err)
	}

	if _, _, err := env.local.Load(ctx, mapdoc.DefaultName); !errors.Is(err, durable.ErrNotFound) {
		t.Errorf("saved while auto-save was off: %v", err)
	}
	if len(env.remote.beacons) != 0 {
		t.Errorf("sent beacons while auto-save was off")
	}
}
