// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/codeterm/pkg/telemetry"
	"github.com/AleutianAI/codeterm/services/policy_engine"
)

var (
	serveAddr string

	serveMetricsCmd = &cobra.Command{
		Use:   "serve-metrics",
		Short: "Serve health, status and Prometheus metrics over HTTP",
		Long: `Serve /healthz, /status and /metrics. The policy engine records its
decisions and reloads on the served registry; with policy.watch set the
policy file is reloaded when it changes.`,
		Args: cobra.NoArgs,
		RunE: runServeMetrics,
	}
)

func init() {
	serveMetricsCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default telemetry.metrics_addr)")
}

// ServeStatus is the /status payload.
type ServeStatus struct {
	Host    string         `json:"host"`
	Version string         `json:"version"`
	Started time.Time      `json:"started"`
	Policy  PolicyStatus   `json:"policy"`
	Servers []ServerStatus `json:"language_servers"`
}

// PolicyStatus summarises the policy in force.
type PolicyStatus struct {
	File            string `json:"file,omitempty"`
	DefaultMode     string `json:"default_mode"`
	Tools           int    `json:"tools"`
	EmergencyBypass bool   `json:"emergency_bypass"`
	Reloads         int    `json:"reloads"`
	LastReloadError string `json:"last_reload_error,omitempty"`
}

// reloadTracker remembers watcher outcomes for the status endpoint.
type reloadTracker struct {
	mu      sync.Mutex
	reloads int
	lastErr string
}

func (r *reloadTracker) record(_ policy_engine.Config, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reloads++
	r.lastErr = ""
	if err != nil {
		r.lastErr = err.Error()
	}
}

func (r *reloadTracker) snapshot() (int, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reloads, r.lastErr
}

func policyStatus(file string, engine *policy_engine.Engine, reloads *reloadTracker) PolicyStatus {
	cfg := engine.Config()
	n, lastErr := reloads.snapshot()
	return PolicyStatus{
		File:            file,
		DefaultMode:     string(cfg.DefaultMode),
		Tools:           len(cfg.Tools),
		EmergencyBypass: engine.EmergencyBypass(),
		Reloads:         n,
		LastReloadError: lastErr,
	}
}

func runServeMetrics(cmd *cobra.Command, args []string) error {
	addr := serveAddr
	if addr == "" {
		addr = app.cfg.Telemetry.MetricsAddr
	}
	if addr == "" {
		return &ExitError{Code: CLIExitError, Err: fmt.Errorf("serve-metrics needs --addr or telemetry.metrics_addr")}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    app.cfg.Host.Name,
		ServiceVersion: app.cfg.Host.Version,
		TraceExporter:  app.cfg.Telemetry.TraceExporter,
		MetricExporter: "prometheus",
		OTLPEndpoint:   app.cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:   true,
		Registry:       reg,
		Writer:         cmd.ErrOrStderr(),
	})
	if err != nil {
		return &ExitError{Code: CLIExitError, Err: err}
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			app.logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	metrics := policy_engine.NewMetrics(reg)
	engine, err := newPolicyEngine(policy_engine.WithMetrics(metrics))
	if err != nil {
		return &ExitError{Code: CLIExitError, Err: err}
	}

	started := time.Now()
	file := effectivePolicyFile()
	reloads := &reloadTracker{}
	servers := serverStatuses(app.cfg.ManagerConfig("").Servers, exec.LookPath)

	server := telemetry.NewServer(telemetry.ServerConfig{
		Addr:        addr,
		ServiceName: app.cfg.Host.Name,
		Registry:    reg,
		Logger:      app.logger.Slog(),
		Status: func(context.Context) any {
			return ServeStatus{
				Host:    app.cfg.Host.Name,
				Version: app.cfg.Host.Version,
				Started: started,
				Policy:  policyStatus(file, engine, reloads),
				Servers: servers,
			}
		},
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })

	if app.cfg.Policy.Watch && file != "" {
		watcher, err := policy_engine.NewWatcher(file, engine,
			policy_engine.WithWatcherLogger(app.logger.Slog()),
			policy_engine.WithWatcherMetrics(metrics),
			policy_engine.OnReload(reloads.record),
		)
		if err != nil {
			stop()
			_ = g.Wait()
			return &ExitError{Code: CLIExitError, Err: err}
		}
		g.Go(func() error { return watcher.Run(gctx) })
	}

	app.printer.Info(fmt.Sprintf("serving metrics on http://%s/metrics (Ctrl-C to stop)", addr))
	return g.Wait()
}
