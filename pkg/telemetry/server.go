// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// StatusFunc reports host state for the /status endpoint. The result is
// encoded as JSON.
type StatusFunc func(ctx context.Context) any

// ServerConfig configures the metrics server.
type ServerConfig struct {
	// Addr is the listen address, e.g. "127.0.0.1:9464".
	Addr string

	// ServiceName labels the otelgin spans.
	ServiceName string

	// Registry backs /metrics. Nil uses the prometheus default.
	Registry *prometheus.Registry

	// Status, when set, serves GET /status.
	Status StatusFunc

	Logger *slog.Logger
}

// Server exposes /metrics, /healthz and optionally /status.
type Server struct {
	cfg    ServerConfig
	router *gin.Engine
	logger *slog.Logger
}

// NewServer builds the router. Nothing listens until Run.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "codeterm"
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(MetricsHandler(cfg.Registry)))
	if cfg.Status != nil {
		status := cfg.Status
		router.GET("/status", func(c *gin.Context) {
			c.JSON(http.StatusOK, status(c.Request.Context()))
		})
	}

	return &Server{cfg: cfg, router: router, logger: logger}
}

// Router returns the underlying engine.
func (s *Server) Router() *gin.Engine { return s.router }

// Run serves until ctx is cancelled, then shuts down with a 5s grace.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("metrics server listening", slog.String("addr", s.cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown: %w", err)
		}
		return nil
	}
}
