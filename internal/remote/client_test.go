// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package remote

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/opentofu/mapsync/internal/durable"
	"github.com/opentofu/mapsync/internal/mapdoc"
)

// testMapHandler is a minimal implementation of the map API that keeps
// the raw mapData of each save.
type testMapHandler struct {
	mu      sync.Mutex
	maps    map[string]json.RawMessage
	headers []http.Header
	saves   chan string
}

func newTestMapHandler() *testMapHandler {
	return &testMapHandler{
		maps:  make(map[string]json.RawMessage),
		saves: make(chan string, 16),
	}
}

func (h *testMapHandler) Handle(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.headers = append(h.headers, r.Header.Clone())

	switch r.URL.Path {
	case "/api/load":
		data, ok := h.maps[r.URL.Query().Get("name")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(Response{Error: "not found"})
			return
		}
		_ = json.NewEncoder(w).Encode(Response{Success: true, Data: data})
	case "/api/save":
		var req SaveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		h.maps[req.Name] = req.MapData
		_ = json.NewEncoder(w).Encode(Response{Success: true})
		h.saves <- req.Name
	case "/api/list":
		var names []string
		for name := range h.maps {
			names = append(names, name)
		}
		slices.Sort(names)
		_ = json.NewEncoder(w).Encode(ListResponse{Maps: names})
	case "/api/delete":
		var req DeleteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		delete(h.maps, req.Name)
		_ = json.NewEncoder(w).Encode(Response{Success: true})
	case "/api/static/default-map.json":
		_, _ = w.Write([]byte(`{"chunks":[["b",{"v":2}],["a",{"v":1}]]}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func testClient(t *testing.T, h http.HandlerFunc, cfg Config) *Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	cfg.Address = ts.URL + "/api/"
	c, err := New(t.Context(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func testDoc() *mapdoc.Document {
	doc := mapdoc.New()
	doc.Chunks["0,0"] = json.RawMessage(`{"trees":[1]}`)
	doc.Chunks["0,1"] = json.RawMessage(`{"trees":[]}`)
	doc.HeroSpawn = json.RawMessage(`{"x":1,"y":2}`)
	return doc
}

func TestClientRoundTrip(t *testing.T) {
	ctx := t.Context()
	handler := newTestMapHandler()
	c := testClient(t, handler.Handle, Config{})

	if err := c.Save(ctx, "default", testDoc()); err != nil {
		t.Fatalf("save: %s", err)
	}

	// The server must have received the chunks in wire form.
	stored := string(handler.maps["default"])
	if !strings.HasPrefix(stored, `{"chunks":[["0,0",`) {
		t.Fatalf("chunks not sent as pairs: %s", stored)
	}

	got, err := c.Load(ctx, "default")
	if err != nil {
		t.Fatalf("load: %s", err)
	}
	if diff := cmp.Diff(testDoc(), got); diff != "" {
		t.Errorf("wrong document\n%s", diff)
	}

	names, err := c.List(ctx)
	if err != nil {
		t.Fatalf("list: %s", err)
	}
	if diff := cmp.Diff([]string{"default"}, names); diff != "" {
		t.Errorf("wrong list\n%s", diff)
	}

	if err := c.Delete(ctx, "default"); err != nil {
		t.Fatalf("delete: %s", err)
	}
	if _, err := c.Load(ctx, "default"); !errors.Is(err, durable.ErrNotFound) {
		t.Fatalf("wrong error loading deleted map: %v", err)
	}
}

func TestClientLoadNormalizesArrayChunks(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"data":{"chunks":[{"id":"c1","t":1},{"id":"c2","t":2},{"id":"c3","t":3}]}}`))
	}
	c := testClient(t, handler, Config{})

	doc, err := c.Load(t.Context(), "default")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"c1", "c2", "c3"}, doc.Chunks.IDs()); diff != "" {
		t.Errorf("wrong chunks\n%s", diff)
	}
	if got := string(doc.Chunks["c2"]); got != `{"id":"c2","t":2}` {
		t.Errorf("wrong payload for c2: %s", got)
	}
}

func TestClientLoadResponses(t *testing.T) {
	tests := map[string]struct {
		status   int
		body     string
		notFound bool
		wantErr  string
	}{
		"null data": {
			status:   http.StatusOK,
			body:     `{"success":true,"data":null}`,
			notFound: true,
		},
		"missing data": {
			status:   http.StatusOK,
			body:     `{"success":true}`,
			notFound: true,
		},
		"not found": {
			status:   http.StatusNotFound,
			body:     `{"success":false}`,
			notFound: true,
		},
		"server failure": {
			status:  http.StatusOK,
			body:    `{"success":false,"error":"disk full"}`,
			wantErr: "disk full",
		},
		"unauthorized": {
			status:  http.StatusUnauthorized,
			wantErr: "requires auth",
		},
		"garbage": {
			status:  http.StatusOK,
			body:    `<html>`,
			wantErr: "invalid load response",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(test.status)
				_, _ = w.Write([]byte(test.body))
			}, Config{})

			_, err := c.Load(t.Context(), "default")
			if err == nil {
				t.Fatal("succeeded; want error")
			}
			if got := errors.Is(err, durable.ErrNotFound); got != test.notFound {
				t.Fatalf("wrong error kind: %s", err)
			}
			if test.wantErr != "" && !strings.Contains(err.Error(), test.wantErr) {
				t.Fatalf("error %q does not contain %q", err, test.wantErr)
			}
		})
	}
}

func TestClientSaveFailure(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":"name is reserved"}`))
	}, Config{})

	err := c.Save(t.Context(), "default", testDoc())
	if err == nil || !strings.Contains(err.Error(), "name is reserved") {
		t.Fatalf("wrong error: %v", err)
	}
}

func TestClientServerErrorIsNotRetriedWithZeroRetries(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
	}, Config{Retries: 0})

	if err := c.Save(t.Context(), "default", testDoc()); err == nil {
		t.Fatal("succeeded; want error")
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("server was called %d times, want 1", calls)
	}
}

func TestClientHeadersAndAuth(t *testing.T) {
	handler := newTestMapHandler()
	c := testClient(t, handler.Handle, Config{
		Headers:  map[string]string{"X-Editor": "mapsync"},
		Username: "user",
		Password: "pass",
	})

	if _, err := c.List(t.Context()); err != nil {
		t.Fatal(err)
	}

	h := handler.headers[0]
	if got := h.Get("X-Editor"); got != "mapsync" {
		t.Errorf("wrong custom header %q", got)
	}
	req := &http.Request{Header: h}
	user, pass, ok := req.BasicAuth()
	if !ok || user != "user" || pass != "pass" {
		t.Errorf("wrong basic auth %q/%q (present: %t)", user, pass, ok)
	}
}

func TestClientBeacon(t *testing.T) {
	handler := newTestMapHandler()
	c := testClient(t, handler.Handle, Config{})

	c.Beacon("closing", testDoc())

	select {
	case name := <-handler.saves:
		if name != "closing" {
			t.Fatalf("beacon saved %q", name)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("beacon never arrived")
	}
}

func TestClientLoadBundle(t *testing.T) {
	handler := newTestMapHandler()
	c := testClient(t, handler.Handle, Config{})

	doc, err := c.LoadBundle(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"a", "b"}, doc.Chunks.IDs()); diff != "" {
		t.Errorf("wrong chunks\n%s", diff)
	}
}

func TestNewValidatesAddress(t *testing.T) {
	for _, addr := range []string{"", "ftp://example.com", "://bad"} {
		if _, err := New(t.Context(), Config{Address: addr}); err == nil {
			t.Errorf("%q: succeeded; want error", addr)
		}
	}
}
