// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package mapdoc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// WireDocument is the shape of a document on the network API and in the
// static bundle, where chunks are an ordered list of pairs.
type WireDocument struct {
	Chunks            []ChunkEntry    `json:"chunks"`
	HeroSpawn         json.RawMessage `json:"heroSpawn,omitempty"`
	ProceduralParam   json.RawMessage `json:"proceduralParam,omitempty"`
	ManualTowns       json.RawMessage `json:"manualTowns,omitempty"`
	ManualStations    json.RawMessage `json:"manualStations,omitempty"`
	RailroadWaypoints json.RawMessage `json:"railroadWaypoints,omitempty"`
}

// ChunkEntry is one chunk in wire form, written as [id, payload].
type ChunkEntry struct {
	ID      string
	Payload json.RawMessage
}

func (e ChunkEntry) MarshalJSON() ([]byte, error) {
	payload := e.Payload
	if payload == nil {
		payload = json.RawMessage("null")
	}
	return json.Marshal([]any{e.ID, payload})
}

func (e *ChunkEntry) UnmarshalJSON(data []byte) error {
	id, payload, err := decodeChunkEntry(data)
	if err != nil {
		return err
	}
	e.ID = id
	e.Payload = payload
	return nil
}

// ToWire converts a document to its wire form. Chunks are sorted by id so
// that the result is deterministic.
func ToWire(doc *Document) *WireDocument {
	if doc == nil {
		return nil
	}
	ret := &WireDocument{
		Chunks:            make([]ChunkEntry, 0, len(doc.Chunks)),
		HeroSpawn:         doc.HeroSpawn,
		ProceduralParam:   doc.ProceduralParam,
		ManualTowns:       doc.ManualTowns,
		ManualStations:    doc.ManualStations,
		RailroadWaypoints: doc.RailroadWaypoints,
	}
	for _, id := range doc.Chunks.IDs() {
		ret.Chunks = append(ret.Chunks, ChunkEntry{ID: id, Payload: doc.Chunks[id]})
	}
	return ret
}

// FromWire converts a wire document back to the canonical form. If the same
// id appears more than once the later entry wins.
func FromWire(w *WireDocument) *Document {
	if w == nil {
		return nil
	}
	ret := &Document{
		Chunks:            make(Chunks, len(w.Chunks)),
		HeroSpawn:         w.HeroSpawn,
		ProceduralParam:   w.ProceduralParam,
		ManualTowns:       w.ManualTowns,
		ManualStations:    w.ManualStations,
		RailroadWaypoints: w.RailroadWaypoints,
	}
	for _, entry := range w.Chunks {
		ret.Chunks[entry.ID] = entry.Payload
	}
	return ret
}

// EncodeWire returns the wire JSON encoding of the document.
func EncodeWire(doc *Document) ([]byte, error) {
	if doc == nil {
		return nil, ErrNullDocument
	}
	return json.Marshal(ToWire(doc))
}

// DecodeWire parses a wire document. Since Decode already accepts every
// chunk representation this is only a stricter entry point that rejects
// documents whose chunks are not an array.
func DecodeWire(data []byte) (*Document, error) {
	var probe struct {
		Chunks json.RawMessage `json:"chunks"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("invalid wire document: %w", err)
	}
	chunks := bytes.TrimSpace(probe.Chunks)
	if len(chunks) > 0 && chunks[0] != '[' && !bytes.Equal(chunks, []byte("null")) {
		return nil, fmt.Errorf("invalid wire document: chunks must be an array, not %s", jsonKind(chunks))
	}
	return Decode(data)
}
