//
// Tencent is pleased to support the open source community by making refly available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// refly is licensed under the Apache License Version 2.0.
//
//

// Package trace provides distributed tracing for the execution engine.
// It integrates with OpenTelemetry; the host application installs a real
// tracer provider, otherwise spans are no-ops.
package trace

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Span name constants used by the engine.
const (
	// SpanInvocation is the span covering one whole skill invocation.
	SpanInvocation = "invocation"
	// SpanPrefixExecuteTool prefixes per-tool-call spans.
	SpanPrefixExecuteTool = "execute_tool"
)

// TracerProvider is the global tracer provider for telemetry.
var TracerProvider trace.TracerProvider = noop.NewTracerProvider()

// Tracer is the global tracer instance for telemetry.
var Tracer trace.Tracer = TracerProvider.Tracer("")

// SetTracerProvider installs the tracer provider used by the engine and
// registers it as the otel global provider.
func SetTracerProvider(provider trace.TracerProvider) {
	TracerProvider = provider
	Tracer = provider.Tracer("")
	otel.SetTracerProvider(provider)
}
