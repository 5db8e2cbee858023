// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package mapdoc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNullDocument is returned by Decode when the input is the JSON null
// value rather than a document.
var ErrNullDocument = errors.New("document is null")

// Encode returns the canonical JSON encoding of the document, with the
// chunks written as an object.
func Encode(doc *Document) ([]byte, error) {
	if doc == nil {
		return nil, ErrNullDocument
	}
	return json.Marshal(doc)
}

// Decode parses a document in either the canonical or the wire form.
//
// The result always has a non-nil Chunks map.
func Decode(data []byte) (*Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, ErrNullDocument
	}
	if trimmed[0] != '{' {
		return nil, fmt.Errorf("invalid map document: must be an object, not %s", jsonKind(trimmed))
	}

	doc := &Document{}
	if err := json.Unmarshal(trimmed, doc); err != nil {
		return nil, fmt.Errorf("invalid map document: %w", err)
	}
	if doc.Chunks == nil {
		doc.Chunks = Chunks{}
	}
	return doc, nil
}

// Normalize rewrites an encoded document so that its chunks are in the
// canonical object form. Applying Normalize to its own output returns the
// same bytes.
func Normalize(data []byte) ([]byte, error) {
	doc, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return Encode(doc)
}

// Size returns the length of the canonical encoding of doc.
func Size(doc *Document) (int, error) {
	buf, err := Encode(doc)
	if err != nil {
		return 0, err
	}
	return len(buf), nil
}
