// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package tiered

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/mock/gomock"

	"github.com/opentofu/mapsync/internal/durable"
	"github.com/opentofu/mapsync/internal/durable/inmem"
	"github.com/opentofu/mapsync/internal/durable/mock_durable"
	"github.com/opentofu/mapsync/internal/mapdoc"
)

// sizedDoc returns a document whose canonical encoding is exactly size
// bytes long.
func sizedDoc(t *testing.T, size int) *mapdoc.Document {
	t.Helper()
	withParam := func(n int) *mapdoc.Document {
		doc := mapdoc.New()
		doc.ProceduralParam = json.RawMessage(`"` + strings.Repeat("x", n) + `"`)
		return doc
	}
	base, err := mapdoc.Size(withParam(0))
	if err != nil {
		t.Fatal(err)
	}
	if size < base {
		t.Fatalf("cannot build a document smaller than %d bytes", base)
	}
	doc := withParam(size - base)
	if got, _ := mapdoc.Size(doc); got != size {
		t.Fatalf("built a %d byte document, wanted %d", got, size)
	}
	return doc
}

func testStores(threshold int) (*inmem.Store, *inmem.Store, *Store) {
	fast := inmem.New(0)
	large := inmem.New(0)
	return fast, large, New(fast, large, WithThreshold(threshold))
}

func TestStore_impl(t *testing.T) {
	var _ durable.Store = new(Store)
}

func TestStoreConformance(t *testing.T) {
	_, _, s := testStores(16)
	durable.TestStore(t, s)
}

func TestSaveTierSelection(t *testing.T) {
	const threshold = 100

	tests := []struct {
		size int
		want Tier
	}{
		{50, TierA},
		{threshold - 1, TierA},
		{threshold, TierA},
		{threshold + 1, TierB},
		{threshold * 10, TierB},
	}

	for _, test := range tests {
		t.Run(test.want.String(), func(t *testing.T) {
			ctx := t.Context()
			fast, large, s := testStores(threshold)
			doc := sizedDoc(t, test.size)

			got, err := s.Save(ctx, mapdoc.DefaultName, doc)
			if err != nil {
				t.Fatal(err)
			}
			if got != test.want {
				t.Fatalf("size %d went to %s, want %s", test.size, got, test.want)
			}

			inA, inB := has(t, fast, mapdoc.DefaultName), has(t, large, mapdoc.DefaultName)
			if inA == inB {
				t.Fatalf("record must be in exactly one tier; in A: %t, in B: %t", inA, inB)
			}

			loaded, tier, err := s.Load(ctx, mapdoc.DefaultName)
			if err != nil {
				t.Fatal(err)
			}
			if tier != test.want {
				t.Errorf("loaded from %s, want %s", tier, test.want)
			}
			if diff := cmp.Diff(doc, loaded); diff != "" {
				t.Errorf("wrong document loaded\n%s", diff)
			}
		})
	}
}

func TestSaveCapacityFallback(t *testing.T) {
	ctx := t.Context()
	fast := inmem.New(60)
	large := inmem.New(0)
	s := New(fast, large, WithThreshold(1000))

	tier, err := s.Save(ctx, "big", sizedDoc(t, 100))
	if err != nil {
		t.Fatalf("capacity error was not recovered: %s", err)
	}
	if tier != TierB {
		t.Fatalf("went to %s, want %s", tier, TierB)
	}
	if has(t, fast, "big") {
		t.Fatal("record left in Tier A")
	}
}

func TestSaveMovesBetweenTiers(t *testing.T) {
	ctx := t.Context()
	fast, large, s := testStores(100)

	if tier, err := s.Save(ctx, "doc", sizedDoc(t, 500)); err != nil || tier != TierB {
		t.Fatalf("first save: tier %s, err %v", tier, err)
	}
	if tier, err := s.Save(ctx, "doc", sizedDoc(t, 50)); err != nil || tier != TierA {
		t.Fatalf("second save: tier %s, err %v", tier, err)
	}
	if has(t, large, "doc") {
		t.Fatal("Tier A write left a stale copy in Tier B")
	}

	if tier, err := s.Save(ctx, "doc", sizedDoc(t, 500)); err != nil || tier != TierB {
		t.Fatalf("third save: tier %s, err %v", tier, err)
	}
	if has(t, fast, "doc") {
		t.Fatal("Tier B write left a stale copy in Tier A")
	}
}

func TestLoadPrefersTierB(t *testing.T) {
	ctx := t.Context()
	fast, large, s := testStores(100)

	// Simulate divergent copies written behind the store's back.
	if err := fast.Put(ctx, "doc", []byte(`{"heroSpawn":"a"}`)); err != nil {
		t.Fatal(err)
	}
	if err := large.Put(ctx, "doc", []byte(`{"heroSpawn":"b"}`)); err != nil {
		t.Fatal(err)
	}

	doc, tier, err := s.Load(ctx, "doc")
	if err != nil {
		t.Fatal(err)
	}
	if tier != TierB || string(doc.HeroSpawn) != `"b"` {
		t.Fatalf("loaded %s from %s, want the Tier B copy", doc.HeroSpawn, tier)
	}
}

func TestLoadSkipsUndecodable(t *testing.T) {
	ctx := t.Context()
	fast, large, s := testStores(100)

	if err := large.Put(ctx, "doc", []byte(`not json`)); err != nil {
		t.Fatal(err)
	}
	if err := fast.Put(ctx, "doc", []byte(`{"heroSpawn":"a"}`)); err != nil {
		t.Fatal(err)
	}

	doc, tier, err := s.Load(ctx, "doc")
	if err != nil {
		t.Fatal(err)
	}
	if tier != TierA || string(doc.HeroSpawn) != `"a"` {
		t.Fatalf("loaded %s from %s, want the Tier A copy", doc.HeroSpawn, tier)
	}
}

func TestLoadAbsent(t *testing.T) {
	_, _, s := testStores(100)
	_, tier, err := s.Load(t.Context(), "missing")
	if !errors.Is(err, durable.ErrNotFound) {
		t.Fatalf("wrong error: %v", err)
	}
	if tier != TierNone {
		t.Fatalf("wrong tier %s", tier)
	}
}

func TestLoadReadErrorTreatedAsAbsent(t *testing.T) {
	ctx := t.Context()
	ctrl := gomock.NewController(t)
	large := mock_durable.NewMockStore(ctrl)
	fast := inmem.New(0)
	s := New(fast, large, WithThreshold(100))

	if err := fast.Put(ctx, "doc", []byte(`{"heroSpawn":"a"}`)); err != nil {
		t.Fatal(err)
	}
	large.EXPECT().Get(gomock.Any(), "doc").Return(nil, errors.New("disk on fire"))

	_, tier, err := s.Load(ctx, "doc")
	if err != nil {
		t.Fatal(err)
	}
	if tier != TierA {
		t.Fatalf("loaded from %s, want %s", tier, TierA)
	}
}

func TestSaveNonCapacityFailureFallsBack(t *testing.T) {
	ctx := t.Context()
	ctrl := gomock.NewController(t)
	fast := mock_durable.NewMockStore(ctrl)
	large := inmem.New(0)
	s := New(fast, large, WithThreshold(1000))

	fast.EXPECT().Put(gomock.Any(), "doc", gomock.Any()).Return(errors.New("quota check failed"))
	fast.EXPECT().Delete(gomock.Any(), "doc").Return(nil)

	tier, err := s.Save(ctx, "doc", sizedDoc(t, 100))
	if err != nil {
		t.Fatal(err)
	}
	if tier != TierB {
		t.Fatalf("went to %s, want %s", tier, TierB)
	}
}

func TestSaveStaleCopyDeleteFailure(t *testing.T) {
	ctx := t.Context()
	ctrl := gomock.NewController(t)
	fast := inmem.New(0)
	large := mock_durable.NewMockStore(ctrl)
	s := New(fast, large, WithThreshold(1000))

	gomock.InOrder(
		large.EXPECT().Delete(gomock.Any(), "doc").Return(errors.New("locked")),
		large.EXPECT().Put(gomock.Any(), "doc", gomock.Any()).Return(nil),
	)

	tier, err := s.Save(ctx, "doc", sizedDoc(t, 100))
	if err != nil {
		t.Fatal(err)
	}
	if tier != TierB {
		t.Fatalf("went to %s, want %s so that no stale copy can shadow it", tier, TierB)
	}
	if has(t, fast, "doc") {
		t.Fatal("record left in both tiers")
	}
}

func TestSaveBothTiersFail(t *testing.T) {
	ctx := t.Context()
	ctrl := gomock.NewController(t)
	fast := mock_durable.NewMockStore(ctrl)
	large := mock_durable.NewMockStore(ctrl)
	s := New(fast, large, WithThreshold(1000))

	fast.EXPECT().Put(gomock.Any(), "doc", gomock.Any()).Return(&durable.CapacityError{Key: "doc", Size: 2, Limit: 1})
	large.EXPECT().Put(gomock.Any(), "doc", gomock.Any()).Return(errors.New("database is locked"))

	tier, err := s.Save(ctx, "doc", sizedDoc(t, 100))
	if err == nil {
		t.Fatal("succeeded; want error")
	}
	if tier != TierNone {
		t.Fatalf("wrong tier %s", tier)
	}
	if !strings.Contains(err.Error(), "database is locked") || !errors.Is(err, durable.ErrCapacityExceeded) {
		t.Fatalf("error does not describe both failures: %s", err)
	}
}

func TestRemoveDeletesBothTiers(t *testing.T) {
	ctx := t.Context()
	fast, large, s := testStores(100)

	if err := fast.Put(ctx, "doc", []byte("{}")); err != nil {
		t.Fatal(err)
	}
	if err := large.Put(ctx, "doc", []byte("{}")); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove(ctx, "doc"); err != nil {
		t.Fatal(err)
	}
	if has(t, fast, "doc") || has(t, large, "doc") {
		t.Fatal("record survived Remove")
	}
}

func TestKeysUnion(t *testing.T) {
	ctx := t.Context()
	fast, large, s := testStores(100)

	for _, k := range []string{"a", "shared"} {
		if err := fast.Put(ctx, k, []byte("{}")); err != nil {
			t.Fatal(err)
		}
	}
	for _, k := range []string{"b", "shared"} {
		if err := large.Put(ctx, k, []byte("{}")); err != nil {
			t.Fatal(err)
		}
	}

	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"a", "b", "shared"}, keys); diff != "" {
		t.Errorf("wrong keys\n%s", diff)
	}
}

func TestGetTier(t *testing.T) {
	ctx := t.Context()
	_, _, s := testStores(4)

	tier, err := s.PutTier(ctx, "small", []byte("1234"))
	if err != nil || tier != TierA {
		t.Fatalf("small value: tier %s, err %v", tier, err)
	}
	_, got, err := s.GetTier(ctx, "small")
	if err != nil || got != TierA {
		t.Fatalf("GetTier: tier %s, err %v", got, err)
	}
}

func has(t *testing.T, s durable.Store, key string) bool {
	t.Helper()
	_, err := s.Get(t.Context(), key)
	if err == nil {
		return true
	}
	if !durable.IsNotFound(err) {
		t.Fatalf("unexpected error: %s", err)
	}
	return false
}
