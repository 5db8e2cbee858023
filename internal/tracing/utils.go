// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package tracing

import (
	"context"
	"log"
	"runtime"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Span is [trace.Span], so that packages outside this one need not import
// OpenTelemetry.
type Span = trace.Span

// Tracer returns a tracer named after the package of its caller, so spans
// show which of the stores, the resolver or the remote client made them.
func Tracer() trace.Tracer {
	if !isTracingEnabled {
		return otel.Tracer("")
	}
	pc, _, _, ok := runtime.Caller(1)
	fn := runtime.FuncForPC(pc)
	if !ok || fn == nil {
		return otel.Tracer("")
	}
	return otel.GetTracerProvider().Tracer(extractImportPath(fn.Name()))
}

// SpanAttributes is [trace.WithAttributes].
func SpanAttributes(attrs ...attribute.KeyValue) trace.SpanStartEventOption {
	return trace.WithAttributes(attrs...)
}

// SetSpanError marks span as failed with err. A nil span or error is
// ignored.
func SetSpanError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.SetStatus(codes.Error, err.Error())
	span.RecordError(err)
}

// ForceFlush exports buffered spans, waiting at most timeout. Call it before
// the process exits.
func ForceFlush(timeout time.Duration) {
	if !isTracingEnabled {
		return
	}
	provider, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	if !ok {
		log.Printf("[TRACE] OpenTelemetry: provider %T cannot be flushed", otel.GetTracerProvider())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	log.Printf("[TRACE] OpenTelemetry: flushing spans")
	if err := provider.ForceFlush(ctx); err != nil {
		log.Printf("[WARN] OpenTelemetry: error flushing spans: %v", err)
	}
}

// extractImportPath returns the package import path from a name reported
// by [runtime.FuncForPC], such as
//
//	main.run
//	github.com/opentofu/mapsync/internal/tiered.(*Store).Save
//	github.com/opentofu/mapsync/internal/resolver.New.func1
func extractImportPath(fullName string) string {
	slash := strings.LastIndex(fullName, "/")
	dot := strings.Index(fullName[slash+1:], ".")
	if dot == -1 {
		log.Printf("[WARN] no import path in function name %q, tracing may be incomplete", fullName)
		return "unknown"
	}
	return fullName[:slash+1+dot]
}
