// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package mapdoc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
)

// DefaultName is the reserved name of the document an editor opens when no
// other name was requested.
const DefaultName = "default"

// Document is the full serializable state of one editable map.
type Document struct {
	Chunks            Chunks          `json:"chunks"`
	HeroSpawn         json.RawMessage `json:"heroSpawn,omitempty"`
	ProceduralParam   json.RawMessage `json:"proceduralParam,omitempty"`
	ManualTowns       json.RawMessage `json:"manualTowns,omitempty"`
	ManualStations    json.RawMessage `json:"manualStations,omitempty"`
	RailroadWaypoints json.RawMessage `json:"railroadWaypoints,omitempty"`
}

// New returns an empty document.
func New() *Document {
	return &Document{Chunks: Chunks{}}
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	ret := &Document{
		Chunks:            make(Chunks, len(d.Chunks)),
		HeroSpawn:         bytes.Clone(d.HeroSpawn),
		ProceduralParam:   bytes.Clone(d.ProceduralParam),
		ManualTowns:       bytes.Clone(d.ManualTowns),
		ManualStations:    bytes.Clone(d.ManualStations),
		RailroadWaypoints: bytes.Clone(d.RailroadWaypoints),
	}
	for id, payload := range d.Chunks {
		ret.Chunks[id] = bytes.Clone(payload)
	}
	return ret
}

// HasProceduralParam returns true if the document carries procedural
// generation parameters.
func (d *Document) HasProceduralParam() bool {
	return d != nil && len(d.ProceduralParam) != 0 && !bytes.Equal(d.ProceduralParam, []byte("null"))
}

// Chunks maps a chunk identifier to its opaque payload.
//
// In JSON, Chunks is written as an object. When decoding it also accepts an
// array of [id, payload] pairs or an array of objects that each carry an
// "id" member, in which case the whole object is the payload. If the same id
// appears more than once in an array, the later entry wins.
type Chunks map[string]json.RawMessage

// IDs returns the chunk identifiers in sorted order.
func (c Chunks) IDs() []string {
	return slices.Sorted(maps.Keys(c))
}

func (c Chunks) MarshalJSON() ([]byte, error) {
	if c == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]json.RawMessage(c))
}

func (c *Chunks) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = Chunks{}
		return nil
	}

	switch data[0] {
	case '{':
		var m map[string]json.RawMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		*c = Chunks(m)
		return nil
	case '[':
		var entries []json.RawMessage
		if err := json.Unmarshal(data, &entries); err != nil {
			return err
		}
		ret := make(Chunks, len(entries))
		for i, entry := range entries {
			id, payload, err := decodeChunkEntry(entry)
			if err != nil {
				return fmt.Errorf("chunk entry %d: %w", i, err)
			}
			ret[id] = payload
		}
		*c = ret
		return nil
	default:
		return fmt.Errorf("chunks must be an object or an array, not %s", jsonKind(data))
	}
}

func decodeChunkEntry(entry json.RawMessage) (string, json.RawMessage, error) {
	entry = bytes.TrimSpace(entry)
	if len(entry) == 0 {
		return "", nil, fmt.Errorf("empty entry")
	}

	switch entry[0] {
	case '[':
		var pair []json.RawMessage
		if err := json.Unmarshal(entry, &pair); err != nil {
			return "", nil, err
		}
		if len(pair) != 2 {
			return "", nil, fmt.Errorf("pair must have exactly two elements, not %d", len(pair))
		}
		id, err := decodeChunkID(pair[0])
		if err != nil {
			return "", nil, err
		}
		return id, pair[1], nil
	case '{':
		var withID struct {
			ID json.RawMessage `json:"id"`
		}
		if err := json.Unmarshal(entry, &withID); err != nil {
			return "", nil, err
		}
		if withID.ID == nil {
			return "", nil, fmt.Errorf("object entry has no \"id\" member")
		}
		id, err := decodeChunkID(withID.ID)
		if err != nil {
			return "", nil, err
		}
		return id, entry, nil
	default:
		return "", nil, fmt.Errorf("entry must be a pair or an object, not %s", jsonKind(entry))
	}
}

// decodeChunkID accepts either a JSON string or a JSON number, since chunk
// coordinates are sometimes written numerically.
func decodeChunkID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("chunk id must be a string or a number, not %s", jsonKind(raw))
	}
	f, err := n.Float64()
	if err != nil {
		return "", fmt.Errorf("chunk id %s: %w", n, err)
	}
	return canonicalNumber(f), nil
}

// canonicalNumber formats f in one way only, so that 1, 1.0 and 1e0 name
// the same chunk.
func canonicalNumber(f float64) string {
	if f == 0 {
		// Covers -0.
		return "0"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func jsonKind(data []byte) string {
	if len(data) == 0 {
		return "nothing"
	}
	switch data[0] {
	case '{':
		return "an object"
	case '[':
		return "an array"
	case '"':
		return "a string"
	case 't', 'f':
		return "a bool"
	case 'n':
		return "null"
	default:
		return "a number"
	}
}
