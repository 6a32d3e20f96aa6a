// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds the codeterm host configuration.
package config

import (
	"time"

	"github.com/AleutianAI/codeterm/pkg/anim"
	"github.com/AleutianAI/codeterm/services/lsp"
)

// CurrentConfigVersion is written into newly created config files.
const CurrentConfigVersion = "1"

type Config struct {
	// Meta: schema version of the file
	Meta MetaConfig `yaml:"meta"`

	// Host: identity sent to language servers as clientInfo
	Host HostConfig `yaml:"host"`

	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	LSP       LSPConfig       `yaml:"lsp"`

	// Policy: where the permission policy lives
	Policy PolicyConfig `yaml:"policy"`

	Animation AnimationConfig `yaml:"animation"`
}

type MetaConfig struct {
	Version string `yaml:"version"`
}

type HostConfig struct {
	Name    string `yaml:"name" validate:"required"`
	Version string `yaml:"version" validate:"required,hostversion"` // e.g. 0.4.1 or v0.4.1
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Dir   string `yaml:"dir"` // empty disables file logging
	JSON  bool   `yaml:"json"`
}

type TelemetryConfig struct {
	TraceExporter  string `yaml:"trace_exporter" validate:"omitempty,oneof=none stdout otlp"`
	MetricExporter string `yaml:"metric_exporter" validate:"omitempty,oneof=none stdout prometheus"`
	OTLPEndpoint   string `yaml:"otlp_endpoint" validate:"required_if=TraceExporter otlp"`
	MetricsAddr    string `yaml:"metrics_addr" validate:"omitempty,hostname_port"`
}

type LSPConfig struct {
	Enabled        bool                    `yaml:"enabled"`
	TimeoutMS      int                     `yaml:"timeout_ms" validate:"gt=0"`
	InitTimeoutMS  int                     `yaml:"init_timeout_ms" validate:"gt=0"`
	MaxDiagnostics int                     `yaml:"max_diagnostics" validate:"gte=0"` // 0 = unlimited
	Servers        map[string]ServerConfig `yaml:"servers" validate:"dive,keys,required,endkeys"`
}

// ServerConfig is one entry of the language server table. Workspace is a
// pointer so an omitted value defaults to true.
type ServerConfig struct {
	Command    string   `yaml:"command" validate:"required"`
	Args       []string `yaml:"args,omitempty"`
	WorkingDir string   `yaml:"working_dir,omitempty"`
	Workspace  *bool    `yaml:"workspace,omitempty"`
	Extensions []string `yaml:"extensions,omitempty"`
}

type PolicyConfig struct {
	File  string `yaml:"file"` // empty = embedded default policy
	Watch bool   `yaml:"watch"`
}

type AnimationConfig struct {
	FPS        int `yaml:"fps" validate:"gt=0,lte=240"`
	LoadingFPS int `yaml:"loading_fps" validate:"gt=0,lte=240"`
}

// DefaultConfig returns the built-in configuration. The server table is
// seeded from lsp.DefaultServers.
func DefaultConfig() Config {
	servers := make(map[string]ServerConfig)
	for lang, s := range lsp.DefaultServers() {
		workspace := s.Workspace
		servers[lang] = ServerConfig{
			Command:    s.Command,
			Args:       s.Args,
			WorkingDir: s.WorkingDir,
			Workspace:  &workspace,
			Extensions: s.Extensions,
		}
	}

	return Config{
		Meta: MetaConfig{Version: CurrentConfigVersion},
		Host: HostConfig{Name: "codeterm", Version: "0.1.0"},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			TraceExporter:  "none",
			MetricExporter: "none",
			MetricsAddr:    "127.0.0.1:9464",
		},
		LSP: LSPConfig{
			Enabled:        true,
			TimeoutMS:      int(lsp.DefaultRequestTimeout / time.Millisecond),
			InitTimeoutMS:  int(lsp.DefaultInitTimeout / time.Millisecond),
			MaxDiagnostics: 100,
			Servers:        servers,
		},
		Animation: AnimationConfig{
			FPS:        anim.DefaultFPS,
			LoadingFPS: anim.DefaultLoadingFPS,
		},
	}
}

// =============================================================================
// Conversions
// =============================================================================

// LaunchConfig converts a table entry to the lsp launch configuration.
func (s ServerConfig) LaunchConfig() lsp.ServerConfig {
	workspace := true
	if s.Workspace != nil {
		workspace = *s.Workspace
	}
	return lsp.ServerConfig{
		Command:    s.Command,
		Args:       s.Args,
		WorkingDir: s.WorkingDir,
		Workspace:  workspace,
		Extensions: s.Extensions,
	}
}

// ManagerConfig builds the lsp manager configuration for a workspace root.
func (c Config) ManagerConfig(root string) lsp.ManagerConfig {
	servers := make(map[string]lsp.ServerConfig, len(c.LSP.Servers))
	for lang, s := range c.LSP.Servers {
		servers[lang] = s.LaunchConfig()
	}
	return lsp.ManagerConfig{
		RootPath:       root,
		Servers:        servers,
		RequestTimeout: time.Duration(c.LSP.TimeoutMS) * time.Millisecond,
		InitTimeout:    time.Duration(c.LSP.InitTimeoutMS) * time.Millisecond,
		MaxDiagnostics: c.LSP.MaxDiagnostics,
		ClientName:     c.Host.Name,
		ClientVersion:  c.Host.Version,
	}
}

// ClipConfig returns base into the configured frame rate. Clips running at
// the loading rate keep it.
func (c Config) ClipConfig(base anim.ClipConfig) anim.ClipConfig {
	if base.FPS == anim.DefaultLoadingFPS {
		base.FPS = c.Animation.LoadingFPS
		return base
	}
	base.FPS = c.Animation.FPS
	return base
}
