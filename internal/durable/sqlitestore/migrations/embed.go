// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package migrations

import "embed"

// FS contains the embedded schema migrations for the document store.
//
//go:embed *.sql
var FS embed.FS
