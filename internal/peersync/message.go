// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package peersync

import (
	"github.com/opentofu/mapsync/internal/mapdoc"
	"github.com/opentofu/mapsync/internal/viewport"
)

// Kind distinguishes the two kinds of peer message.
type Kind string

const (
	// KindFull carries a complete document that replaces the receiver's.
	KindFull Kind = "full"

	// KindViewport carries the world rectangle a peer is looking at.
	KindViewport Kind = "viewport"
)

// Message is one broadcast between peers.
type Message struct {
	Kind Kind `json:"kind"`

	// Document and Origin scope the message: a channel ignores messages
	// for any other document or from any other origin.
	Document string `json:"document"`
	Origin   string `json:"origin"`

	// Sender identifies the channel that published the message, so that
	// a channel never receives its own broadcasts.
	Sender string `json:"sender"`

	Full     *mapdoc.Document `json:"full,omitempty"`
	Viewport *viewport.Rect   `json:"viewport,omitempty"`
}
