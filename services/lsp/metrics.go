// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lsp

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("codeterm.lsp")
	meter  = otel.Meter("codeterm.lsp")
)

var (
	requestLatency       metric.Float64Histogram
	requestTotal         metric.Int64Counter
	serverSpawns         metric.Int64Counter
	diagnosticsPublished metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics creates the instruments once.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		requestLatency, err = meter.Float64Histogram(
			"lsp_request_duration_seconds",
			metric.WithDescription("Duration of LSP requests"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		requestTotal, err = meter.Int64Counter(
			"lsp_requests_total",
			metric.WithDescription("Total LSP requests by method and outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		serverSpawns, err = meter.Int64Counter(
			"lsp_server_spawns_total",
			metric.WithDescription("Total language server spawns"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		diagnosticsPublished, err = meter.Int64Counter(
			"lsp_diagnostics_published_total",
			metric.WithDescription("Diagnostics received from servers"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startRequestSpan creates a span for one request.
func startRequestSpan(ctx context.Context, language, method string, id int32) (context.Context, trace.Span) {
	return tracer.Start(ctx, "lsp."+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("lsp.language", language),
			attribute.String("lsp.method", method),
			attribute.Int("lsp.request_id", int(id)),
		),
	)
}

// endRequestSpan records the outcome and ends the span.
func endRequestSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// requestOutcome labels an error for metrics.
func requestOutcome(err error) string {
	var perr *ProtocolError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.As(err, &perr):
		return "protocol_error"
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}

func recordRequest(ctx context.Context, language, method string, elapsed time.Duration, err error) {
	if initMetrics() != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("language", language),
		attribute.String("method", method),
		attribute.String("outcome", requestOutcome(err)),
	)
	requestLatency.Record(ctx, elapsed.Seconds(), attrs)
	requestTotal.Add(ctx, 1, attrs)
}

func recordServerSpawn(ctx context.Context, language string, success bool) {
	if initMetrics() != nil {
		return
	}
	serverSpawns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("language", language),
		attribute.Bool("success", success),
	))
}

func recordDiagnostics(ctx context.Context, language string, count int) {
	if initMetrics() != nil {
		return
	}
	diagnosticsPublished.Add(ctx, int64(count), metric.WithAttributes(
		attribute.String("language", language),
	))
}
