// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package httpclient

import (
	"context"
	"net/http"

	cleanhttp "github.com/hashicorp/go-cleanhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	otelTrace "go.opentelemetry.io/otel/trace"

	"github.com/opentofu/mapsync/version"
)

// New returns the DefaultPooledClient from the cleanhttp package that will
// also send a mapsync User-Agent string.
//
// If the given context has an active OpenTelemetry trace span associated with
// it then the returned client is also configured to collect traces for
// outgoing requests. Those traces will be children of the span associated
// with the context passed in each individual request; this function only
// checks for a recording span as a hint that the caller has tracing
// plumbing in place.
func New(ctx context.Context) *http.Client {
	cli := cleanhttp.DefaultPooledClient()
	cli.Transport = &userAgentRoundTripper{
		userAgent: UserAgent(version.Version),
		inner:     cli.Transport,
	}

	if span := otelTrace.SpanFromContext(ctx); span != nil && span.IsRecording() {
		// Without an active span every request would start a trace of its
		// own, which is just noise for whoever consumes the traces.
		cli.Transport = otelhttp.NewTransport(cli.Transport)
	}

	return cli
}
