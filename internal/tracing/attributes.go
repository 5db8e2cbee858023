// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package tracing

import "go.opentelemetry.io/otel/attribute"

const (
	// Common attributes names used across the codebase

	DocumentNameAttributeName = "mapsync.document.name"
	DocumentSizeAttributeName = "mapsync.document.size"
	StorageTierAttributeName  = "mapsync.storage.tier"
	SourceAttributeName       = "mapsync.resolve.source"
)

// DocumentName returns the attribute recording which map document a span
// is about.
func DocumentName(name string) attribute.KeyValue {
	return attribute.String(DocumentNameAttributeName, name)
}

// DocumentSize returns the attribute recording a serialized document size.
func DocumentSize(size int) attribute.KeyValue {
	return attribute.Int(DocumentSizeAttributeName, size)
}

// StorageTier returns the attribute recording which storage tier served a
// request.
func StorageTier(tier string) attribute.KeyValue {
	return attribute.String(StorageTierAttributeName, tier)
}

// Source returns the attribute recording which source a document was
// resolved from.
func Source(source string) attribute.KeyValue {
	return attribute.String(SourceAttributeName, source)
}
