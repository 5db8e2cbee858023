// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package resolver

// Source identifies where a resolved document came from.
type Source int

//go:generate go tool golang.org/x/tools/cmd/stringer -type=Source

const (
	// SourceNone means no source had a document, and the editor should
	// start from an empty one.
	SourceNone Source = iota
	SourceLocal
	SourceRemote
	SourceStatic
)
