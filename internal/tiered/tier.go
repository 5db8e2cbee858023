// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package tiered

// Tier identifies which of the two local stores holds a record.
type Tier int

//go:generate go tool golang.org/x/tools/cmd/stringer -type=Tier

const (
	// TierNone means the record was not found in either store.
	TierNone Tier = iota

	// TierA is the small, fast store with a low byte quota.
	TierA

	// TierB is the larger transactional store.
	TierB
)
