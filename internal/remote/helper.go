// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package remote

import (
	"io"
	"log"
	"net/http"
	"slices"
	"strings"
)

// maxLoggedBody bounds how much of an error response reaches the log. Map
// documents can be megabytes.
const maxLoggedBody = 4096

// bodyForLog reads at most maxLoggedBody bytes of the response body.
func bodyForLog(resp *http.Response) string {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxLoggedBody+1))
	if err != nil {
		log.Printf("[ERROR] remote: failed to read response body for logging: %v", err)
		return ""
	}
	if len(body) > maxLoggedBody {
		return string(body[:maxLoggedBody]) + "...(truncated)"
	}
	return string(body)
}

// headersForLog renders h as sorted "Name: value" pairs with credentials
// masked. Headers the client was configured to send are masked too, since
// map APIs commonly take their keys that way.
func (c *Client) headersForLog(h http.Header) string {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	slices.Sort(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(name)
		b.WriteString(": ")
		if c.isSensitiveHeader(name) {
			b.WriteString("[MASKED]")
		} else {
			b.WriteString(strings.Join(h.Values(name), ","))
		}
	}
	return b.String()
}

func (c *Client) isSensitiveHeader(name string) bool {
	switch strings.ToLower(name) {
	case "authorization", "proxy-authorization", "cookie", "set-cookie":
		return true
	}
	for configured := range c.headers {
		if strings.EqualFold(configured, name) {
			return true
		}
	}
	return false
}
