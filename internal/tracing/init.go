// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package tracing

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/go-logr/stdr"
	"go.opentelemetry.io/contrib/exporters/autoexport"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/opentofu/mapsync/version"
)

// OTELExporterEnvVar must be set to "otlp" for mapsync to export spans.
// The exporter itself is configured by the standard OTLP variables.
const OTELExporterEnvVar = "OTEL_TRACES_EXPORTER"

// A parent process, such as an editor that shells out to mapsync, can put
// its own span context in these to make our spans its children.
const (
	traceParentEnvVar = "TRACEPARENT"
	traceStateEnvVar  = "TRACESTATE"
)

var isTracingEnabled bool

// OpenTelemetryInit installs a global tracer provider when OTLP export was
// requested and otherwise does nothing, leaving the no-op provider in place.
//
// The returned context carries the parent span context from TRACEPARENT,
// if that is set.
func OpenTelemetryInit(ctx context.Context) (context.Context, error) {
	// autoexport falls back to an OTLP endpoint on localhost when nothing
	// is configured, which we never want implicitly.
	if os.Getenv(OTELExporterEnvVar) != "otlp" {
		log.Printf("[TRACE] OpenTelemetry: %s is not \"otlp\", tracing disabled", OTELExporterEnvVar)
		return ctx, nil
	}
	isTracingEnabled = true
	log.Printf("[TRACE] OpenTelemetry: enabled")

	res, err := newResource()
	if err != nil {
		return ctx, fmt.Errorf("failed to create resource: %w", err)
	}
	ctx = parentFromEnv(ctx)

	exporter, err := autoexport.NewSpanExporter(ctx)
	if err != nil {
		return ctx, err
	}
	otel.SetTracerProvider(sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBlocking()),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
	))
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	otel.SetLogger(stdr.New(log.New(os.Stderr, "", log.LstdFlags|log.Lshortfile)))
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		log.Printf("[WARN] OpenTelemetry error: %v", err)
	}))
	return ctx, nil
}

func newResource() (*resource.Resource, error) {
	return resource.New(context.Background(),
		resource.WithOS(),
		resource.WithHost(),
		resource.WithProcess(),
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(
			semconv.ServiceName("mapsync"),
			semconv.ServiceVersion(version.String()),
			// Without these the SDK adds its own schema URL, which clashes
			// with ours.
			semconv.TelemetrySDKName("opentelemetry"),
			semconv.TelemetrySDKLanguageGo,
			semconv.TelemetrySDKVersion(sdk.Version()),
		),
	)
}

func parentFromEnv(ctx context.Context) context.Context {
	parent := os.Getenv(traceParentEnvVar)
	if parent == "" {
		return ctx
	}
	log.Printf("[TRACE] OpenTelemetry: parent span from %s: %s", traceParentEnvVar, parent)

	// TraceContext only looks at lowercase keys.
	carrier := propagation.MapCarrier{"traceparent": parent}
	if state := os.Getenv(traceStateEnvVar); state != "" {
		carrier["tracestate"] = state
	}
	return propagation.TraceContext{}.Extract(ctx, carrier)
}
