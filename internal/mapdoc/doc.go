// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package mapdoc contains the in-memory representation of a map document
// along with its canonical and wire JSON encodings.
//
// A map document is always read and written as a whole. Chunk payloads and
// the other top-level members are opaque to this package and are preserved
// byte-for-byte (modulo JSON whitespace).
package mapdoc
