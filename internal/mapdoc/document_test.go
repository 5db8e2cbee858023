// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package mapdoc

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func testDocument() *Document {
	return &Document{
		Chunks: Chunks{
			"0,0": json.RawMessage(`{"trees":[1,2,3]}`),
			"0,1": json.RawMessage(`{"rocks":[]}`),
			"5,-2": json.RawMessage(`"opaque"`),
		},
		HeroSpawn:         json.RawMessage(`{"x":12,"y":40}`),
		ProceduralParam:   json.RawMessage(`{"seed":42,"octaves":4}`),
		ManualTowns:       json.RawMessage(`[{"name":"Ashford"}]`),
		ManualStations:    json.RawMessage(`[]`),
		RailroadWaypoints: json.RawMessage(`[[0,0],[10,10]]`),
	}
}

func TestDecodeChunkForms(t *testing.T) {
	tests := map[string]struct {
		input string
		want  Chunks
	}{
		"object": {
			`{"chunks":{"a":{"v":1},"b":{"v":2}}}`,
			Chunks{"a": json.RawMessage(`{"v":1}`), "b": json.RawMessage(`{"v":2}`)},
		},
		"pairs": {
			`{"chunks":[["a",{"v":1}],["b",{"v":2}]]}`,
			Chunks{"a": json.RawMessage(`{"v":1}`), "b": json.RawMessage(`{"v":2}`)},
		},
		"objects with id": {
			`{"chunks":[{"id":"a","v":1},{"id":"b","v":2}]}`,
			Chunks{"a": json.RawMessage(`{"id":"a","v":1}`), "b": json.RawMessage(`{"id":"b","v":2}`)},
		},
		"numeric pair id": {
			`{"chunks":[[7,{"v":1}]]}`,
			Chunks{"7": json.RawMessage(`{"v":1}`)},
		},
		"numeric ids in different notations name one chunk": {
			`{"chunks":[[1,{"v":1}],[1.0,{"v":2}],[1e0,{"v":3}]]}`,
			Chunks{"1": json.RawMessage(`{"v":3}`)},
		},
		"fractional and negative numeric ids": {
			`{"chunks":[[2.50,{"v":1}],[-0,{"v":2}],[-3e1,{"v":3}]]}`,
			Chunks{
				"2.5": json.RawMessage(`{"v":1}`),
				"0":   json.RawMessage(`{"v":2}`),
				"-30": json.RawMessage(`{"v":3}`),
			},
		},
		"object with numeric id": {
			`{"chunks":[{"id":4.0,"v":1}]}`,
			Chunks{"4": json.RawMessage(`{"id":4.0,"v":1}`)},
		},
		"duplicate ids keep the last": {
			`{"chunks":[["a",{"v":1}],["a",{"v":2}]]}`,
			Chunks{"a": json.RawMessage(`{"v":2}`)},
		},
		"null chunks": {
			`{"chunks":null}`,
			Chunks{},
		},
		"absent chunks": {
			`{"heroSpawn":{"x":1}}`,
			Chunks{},
		},
		"empty array": {
			`{"chunks":[]}`,
			Chunks{},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			doc, err := Decode([]byte(test.input))
			if err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
			if doc.Chunks == nil {
				t.Fatal("Chunks is nil")
			}
			if diff := cmp.Diff(test.want, doc.Chunks); diff != "" {
				t.Errorf("wrong chunks\n%s", diff)
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := map[string]string{
		"not an object":      `[1,2,3]`,
		"chunks is a string": `{"chunks":"nope"}`,
		"short pair":         `{"chunks":[["a"]]}`,
		"object without id":  `{"chunks":[{"v":1}]}`,
		"bool id":            `{"chunks":[[true,{}]]}`,
		"id out of range":    `{"chunks":[[1e400,{}]]}`,
		"scalar entry":       `{"chunks":[1]}`,
		"malformed":          `{"chunks":`,
	}

	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Decode([]byte(input)); err == nil {
				t.Fatal("succeeded; want error")
			}
		})
	}

	if _, err := Decode([]byte(" null ")); !errors.Is(err, ErrNullDocument) {
		t.Fatalf("wrong error for null document: %v", err)
	}
}

func TestRoundTrip(t *testing.T) {
	want := testDocument()

	t.Run("canonical", func(t *testing.T) {
		buf, err := Encode(want)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(string(buf), `{"chunks":{`) {
			t.Fatalf("canonical encoding does not start with a chunk object: %s", buf)
		}
		got, err := Decode(buf)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("wrong result\n%s", diff)
		}
	})

	t.Run("wire", func(t *testing.T) {
		buf, err := EncodeWire(want)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(string(buf), `{"chunks":[["0,0",`) {
			t.Fatalf("wire encoding does not start with sorted chunk pairs: %s", buf)
		}
		got, err := DecodeWire(buf)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("wrong result\n%s", diff)
		}
	})

	t.Run("empty document", func(t *testing.T) {
		buf, err := Encode(New())
		if err != nil {
			t.Fatal(err)
		}
		if got, want := string(buf), `{"chunks":{}}`; got != want {
			t.Fatalf("wrong encoding\ngot:  %s\nwant: %s", got, want)
		}
		got, err := Decode(buf)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(New(), got, cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("wrong result\n%s", diff)
		}
	})
}

func TestToWireFromWireInverse(t *testing.T) {
	doc := testDocument()
	wire := ToWire(doc)

	var ids []string
	for _, entry := range wire.Chunks {
		ids = append(ids, entry.ID)
	}
	if diff := cmp.Diff([]string{"0,0", "0,1", "5,-2"}, ids); diff != "" {
		t.Errorf("wrong chunk order\n%s", diff)
	}

	if diff := cmp.Diff(doc, FromWire(wire)); diff != "" {
		t.Errorf("FromWire(ToWire(doc)) differs\n%s", diff)
	}
	if diff := cmp.Diff(wire, ToWire(FromWire(wire))); diff != "" {
		t.Errorf("ToWire(FromWire(wire)) differs\n%s", diff)
	}
}

func TestNormalize(t *testing.T) {
	input := []byte(`{"chunks":[{"id":"c1","v":1},{"id":"c2","v":2},{"id":"c3","v":3}],"heroSpawn":{"x":1}}`)

	once, err := Normalize(input)
	if err != nil {
		t.Fatal(err)
	}
	twice, err := Normalize(once)
	if err != nil {
		t.Fatal(err)
	}
	if string(once) != string(twice) {
		t.Fatalf("Normalize is not idempotent\nonce:  %s\ntwice: %s", once, twice)
	}

	doc, err := Decode(once)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"c1", "c2", "c3"}, doc.Chunks.IDs()); diff != "" {
		t.Errorf("wrong chunk ids\n%s", diff)
	}
}

func TestDecodeWireRejectsObjectChunks(t *testing.T) {
	if _, err := DecodeWire([]byte(`{"chunks":{"a":1}}`)); err == nil {
		t.Fatal("succeeded; want error")
	}
}

func TestClone(t *testing.T) {
	doc := testDocument()
	clone := doc.Clone()
	clone.Chunks["0,0"][2] = 'X'
	clone.HeroSpawn[0] = '['
	delete(clone.Chunks, "0,1")

	if diff := cmp.Diff(testDocument(), doc); diff != "" {
		t.Errorf("original was modified through the clone\n%s", diff)
	}
}

func TestHasProceduralParam(t *testing.T) {
	if New().HasProceduralParam() {
		t.Error("empty document reports procedural params")
	}
	if (&Document{ProceduralParam: json.RawMessage("null")}).HasProceduralParam() {
		t.Error("null procedural params reported as present")
	}
	if !testDocument().HasProceduralParam() {
		t.Error("procedural params not reported")
	}
}
