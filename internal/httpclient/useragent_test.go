// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package httpclient

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestUserAgentAppendViaEnvVar(t *testing.T) {
	expectedBase := "mapsync/0.0.0"

	testCases := []struct {
		envVarValue string
		expected    string
	}{
		{"", expectedBase},
		{" ", expectedBase},
		{" \n", expectedBase},
		{"test/1", expectedBase + " test/1"},
		{"test/1 (comment)", expectedBase + " test/1 (comment)"},
	}

	for i, tc := range testCases {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			t.Setenv(customUaEnvVar, "")
			t.Setenv(appendUaEnvVar, tc.envVarValue)
			givenUA := UserAgent("0.0.0")
			if givenUA != tc.expected {
				t.Fatalf("Expected User-Agent '%s' does not match '%s'", tc.expected, givenUA)
			}
		})
	}
}

func TestCustomUserAgentAndAppendViaEnvVar(t *testing.T) {
	testCases := []struct {
		customUaValue string
		appendUaValue string
		expected      string
	}{
		{"", "", "mapsync/0.0.0"},
		{"", "testy test", "mapsync/0.0.0 testy test"},
		{"editor", "", "editor"},
		{"editor", "preview", "editor preview"},
	}

	for i, tc := range testCases {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			t.Setenv(customUaEnvVar, tc.customUaValue)
			t.Setenv(appendUaEnvVar, tc.appendUaValue)
			givenUA := UserAgent("0.0.0")
			if givenUA != tc.expected {
				t.Fatalf("Expected User-Agent '%s' does not match '%s'", tc.expected, givenUA)
			}
		})
	}
}

func TestNewSendsUserAgent(t *testing.T) {
	t.Setenv(customUaEnvVar, "mapsync-test")
	t.Setenv(appendUaEnvVar, "")

	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	resp, err := New(t.Context()).Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if got != "mapsync-test" {
		t.Fatalf("wrong User-Agent %q", got)
	}
}
