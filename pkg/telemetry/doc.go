// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry wires OpenTelemetry providers and the metrics endpoint.
//
// Init installs global tracer and meter providers so that instrumented
// packages (services/lsp) export through the configured backends. Metrics
// from the OpenTelemetry prometheus exporter and from prometheus client
// collectors (services/policy_engine) share one registry, which Server
// exposes at /metrics.
//
// Usage:
//
//	reg := prometheus.NewRegistry()
//	shutdown, err := telemetry.Init(ctx, telemetry.Config{
//	    ServiceName:    "codeterm",
//	    MetricExporter: "prometheus",
//	    Registry:       reg,
//	})
//	if err != nil {
//	    return fmt.Errorf("init telemetry: %w", err)
//	}
//	defer shutdown(context.Background())
package telemetry
