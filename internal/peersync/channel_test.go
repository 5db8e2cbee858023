// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package peersync

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/opentofu/mapsync/internal/mapdoc"
	"github.com/opentofu/mapsync/internal/viewport"
)

// inbox collects the messages delivered to a channel.
type inbox struct {
	mu   sync.Mutex
	msgs []Message
	got  chan struct{}
}

func newInbox(c *Channel) *inbox {
	in := &inbox{got: make(chan struct{}, 64)}
	c.OnReceive(func(m Message) {
		in.mu.Lock()
		in.msgs = append(in.msgs, m)
		in.mu.Unlock()
		in.got <- struct{}{}
	})
	return in
}

func (in *inbox) wait(t *testing.T) {
	t.Helper()
	select {
	case <-in.got:
	case <-time.After(5 * time.Second):
		t.Fatal("no message arrived")
	}
}

func (in *inbox) messages() []Message {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]Message(nil), in.msgs...)
}

func testDocument() *mapdoc.Document {
	doc := mapdoc.New()
	doc.Chunks["1,1"] = json.RawMessage(`{"towns":["a"]}`)
	doc.HeroSpawn = json.RawMessage(`{"x":5,"y":6}`)
	return doc
}

func TestChannelScope(t *testing.T) {
	ctx := t.Context()
	bus := NewBus()

	sender := NewChannel(bus, "default", "http://editor")
	peer := NewChannel(bus, "default", "http://editor")
	otherDoc := NewChannel(bus, "other", "http://editor")
	otherOrigin := NewChannel(bus, "default", "http://elsewhere")

	self := newInbox(sender)
	inPeer := newInbox(peer)
	inOtherDoc := newInbox(otherDoc)
	inOtherOrigin := newInbox(otherOrigin)

	doc := testDocument()
	if err := sender.BroadcastFull(ctx, doc); err != nil {
		t.Fatal(err)
	}
	inPeer.wait(t)
	bus.Wait()

	got := inPeer.messages()[0]
	if got.Kind != KindFull || got.Sender != sender.Sender() {
		t.Fatalf("wrong message %#v", got)
	}
	if diff := cmp.Diff(doc, got.Full); diff != "" {
		t.Errorf("wrong document\n%s", diff)
	}
	for name, in := range map[string]*inbox{"self": self, "other document": inOtherDoc, "other origin": inOtherOrigin} {
		if n := len(in.messages()); n != 0 {
			t.Errorf("%s received %d messages", name, n)
		}
	}
}

func TestChannelReceivesCopies(t *testing.T) {
	ctx := t.Context()
	bus := NewBus()
	sender := NewChannel(bus, "default", "")
	peer := NewChannel(bus, "default", "")
	in := newInbox(peer)

	doc := testDocument()
	if err := sender.BroadcastFull(ctx, doc); err != nil {
		t.Fatal(err)
	}
	in.wait(t)

	// Changing the sender's document must not reach the receiver.
	doc.Chunks["1,1"][2] = 'X'
	doc.Chunks["2,2"] = json.RawMessage(`{}`)
	got := in.messages()[0].Full
	if diff := cmp.Diff(testDocument(), got); diff != "" {
		t.Errorf("received document shares memory with the sender\n%s", diff)
	}
}

func TestChannelViewport(t *testing.T) {
	ctx := t.Context()
	bus := NewBus()
	sender := NewChannel(bus, "default", "")
	peer := NewChannel(bus, "default", "")
	in := newInbox(peer)

	rect := viewport.Rect{X: 1, Y: 2, W: 3, H: 4}
	if err := sender.BroadcastViewport(ctx, rect); err != nil {
		t.Fatal(err)
	}
	in.wait(t)

	got := in.messages()[0]
	if got.Kind != KindViewport || got.Viewport == nil || *got.Viewport != rect {
		t.Fatalf("wrong message %#v", got)
	}
}

func TestChannelCancelAndClose(t *testing.T) {
	ctx := t.Context()
	bus := NewBus()
	sender := NewChannel(bus, "default", "")
	peer := NewChannel(bus, "default", "")

	calls := 0
	cancel := peer.OnReceive(func(Message) { calls++ })
	cancel()
	if err := sender.BroadcastFull(ctx, testDocument()); err != nil {
		t.Fatal(err)
	}
	bus.Wait()

	peer.Close()
	if err := sender.BroadcastFull(ctx, testDocument()); err != nil {
		t.Fatal(err)
	}
	bus.Wait()

	if calls != 0 {
		t.Fatalf("cancelled handler was called %d times", calls)
	}
}

func TestChannelNoReplay(t *testing.T) {
	ctx := t.Context()
	bus := NewBus()
	sender := NewChannel(bus, "default", "")
	if err := sender.BroadcastFull(ctx, testDocument()); err != nil {
		t.Fatal(err)
	}
	bus.Wait()

	late := NewChannel(bus, "default", "")
	in := newInbox(late)
	bus.Wait()
	if n := len(in.messages()); n != 0 {
		t.Fatalf("late joiner received %d old messages", n)
	}
}

func TestBroadcastFullNil(t *testing.T) {
	c := NewChannel(NewBus(), "default", "")
	if err := c.BroadcastFull(t.Context(), nil); err == nil {
		t.Fatal("succeeded; want error")
	}
}
