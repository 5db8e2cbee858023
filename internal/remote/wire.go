// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package remote

import "encoding/json"

// These are the request and response bodies of the map API. The server in
// package mapserver uses the same types.

// Response is the envelope returned by the load, save and delete endpoints.
// Data is only present in load responses.
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// SaveRequest is the body of a save request. MapData holds a document in
// wire form.
type SaveRequest struct {
	Name    string          `json:"name"`
	MapData json.RawMessage `json:"mapData"`
}

// DeleteRequest is the body of a delete request.
type DeleteRequest struct {
	Name string `json:"name"`
}

// ListResponse is the body returned by the list endpoint.
type ListResponse struct {
	Maps []string `json:"maps"`
}

// Endpoint paths, relative to the base URL.
const (
	LoadPath   = "load"
	SavePath   = "save"
	ListPath   = "list"
	DeletePath = "delete"

	// BundlePath is the well-known location of the read-only fallback
	// document.
	BundlePath = "static/default-map.json"
)
