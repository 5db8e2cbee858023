// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

//go:generate go tool go.uber.org/mock/mockgen -destination mock.go github.com/opentofu/mapsync/internal/durable Store

package mock_durable
