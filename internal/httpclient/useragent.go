// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package httpclient

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
)

const (
	appendUaEnvVar = "MAPSYNC_APPEND_USER_AGENT"
	customUaEnvVar = "MAPSYNC_USER_AGENT"

	DefaultApplicationName = "mapsync"
)

type userAgentRoundTripper struct {
	inner     http.RoundTripper
	userAgent string
}

func (rt *userAgentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if _, ok := req.Header["User-Agent"]; !ok {
		req.Header.Set("User-Agent", rt.userAgent)
	}
	log.Printf("[TRACE] HTTP client %s request to %s", req.Method, req.URL.String())
	return rt.inner.RoundTrip(req)
}

// UserAgent returns the User-Agent string sent with every request.
//
// MAPSYNC_USER_AGENT replaces the default entirely, and
// MAPSYNC_APPEND_USER_AGENT is appended to whichever base is in effect.
func UserAgent(version string) string {
	ua := fmt.Sprintf("%s/%s", DefaultApplicationName, version)
	if custom := os.Getenv(customUaEnvVar); custom != "" {
		ua = custom
		log.Printf("[DEBUG] Using custom User-Agent: %s", ua)
	}

	if add := strings.TrimSpace(os.Getenv(appendUaEnvVar)); add != "" {
		ua += " " + add
		log.Printf("[DEBUG] Using modified User-Agent: %s", ua)
	}

	return ua
}
