// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package durable defines the byte-level key/value storage abstraction that
// every map document tier and server backend implements.
//
// The implementations live in subpackages. Callers that need to test against
// the whole contract can use [TestStore].
package durable
