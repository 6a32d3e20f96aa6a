// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// =============================================================================
// Level Tests
// =============================================================================

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.level.String(); got != tt.want {
				t.Errorf("Level.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLevel_toSlogLevel(t *testing.T) {
	tests := []struct {
		level Level
		want  slog.Level
	}{
		{LevelDebug, slog.LevelDebug},
		{LevelInfo, slog.LevelInfo},
		{LevelWarn, slog.LevelWarn},
		{LevelError, slog.LevelError},
		{Level(-1), slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			if got := tt.level.toSlogLevel(); got != tt.want {
				t.Errorf("toSlogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{" Error ", LevelError, false},
		{"loud", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

// =============================================================================
// Constructor Tests
// =============================================================================

func TestNew_WritesToConfiguredWriter(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Writer: &buf, Service: "test-service"})
	defer logger.Close()

	logger.Info("server started", "server", "gopls")

	out := buf.String()
	if !strings.Contains(out, "server started") {
		t.Errorf("missing message in %q", out)
	}
	if !strings.Contains(out, "service=test-service") {
		t.Errorf("missing service attribute in %q", out)
	}
	if !strings.Contains(out, "server=gopls") {
		t.Errorf("missing server attribute in %q", out)
	}
}

func TestNew_JSONConsole(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Writer: &buf, JSON: true})
	defer logger.Close()

	logger.Warn("stderr line", "line", "panic: boom")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("console output is not JSON: %v (%q)", err, buf.String())
	}
	if record["msg"] != "stderr line" {
		t.Errorf("msg = %v", record["msg"])
	}
	if record["level"] != "WARN" {
		t.Errorf("level = %v", record["level"])
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Writer: &buf, Level: LevelWarn})
	defer logger.Close()

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	out := buf.String()
	for _, dropped := range []string{"debug message", "info message"} {
		if strings.Contains(out, dropped) {
			t.Errorf("%q should have been filtered: %q", dropped, out)
		}
	}
	for _, kept := range []string{"warn message", "error message"} {
		if !strings.Contains(out, kept) {
			t.Errorf("%q missing: %q", kept, out)
		}
	}
}

func TestNew_WithLogDir(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer
	logger := New(Config{Writer: &console, LogDir: dir, Service: "lsp"})

	logger.Info("file record", "uri", "file:///tmp/a.go")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	name := filepath.Join(dir, "lsp_"+time.Now().Format("2006-01-02")+".log")
	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"file record"`) {
		t.Errorf("file missing JSON record: %s", data)
	}
	if !strings.Contains(console.String(), "file record") {
		t.Errorf("console missing record: %s", console.String())
	}
}

func TestNew_WithLogDir_NoService(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{Quiet: true, LogDir: dir})
	logger.Info("x")
	_ = logger.Close()

	matches, err := filepath.Glob(filepath.Join(dir, "codeterm_*.log"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Errorf("expected one codeterm_*.log, got %v", matches)
	}
}

func TestNew_WithLogDir_InvalidPath(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	// A regular file in place of the directory: file logging is skipped.
	logger := New(Config{Quiet: true, LogDir: filepath.Join(blocker, "logs")})
	defer logger.Close()
	if logger.file != nil {
		t.Error("expected file logging to be disabled")
	}
	logger.Info("still works")
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	defer logger.Close()
	logger.Error("dropped")
	if logger.Slog() == nil {
		t.Fatal("Slog() returned nil")
	}
}

// =============================================================================
// Trace Correlation Tests
// =============================================================================

func TestLogger_TraceCorrelation(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Writer: &buf, JSON: true, Service: "policy"})
	defer logger.Close()

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x4b, 0xf9, 0x2f, 0x35, 0x77, 0xb3, 0x4d, 0xa6, 0xa3, 0xce, 0x92, 0x9d, 0x0e, 0x0e, 0x47, 0x36},
		SpanID:     trace.SpanID{0x00, 0xf0, 0x67, 0xaa, 0x0b, 0xa9, 0x02, 0xb7},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	logger.Slog().InfoContext(ctx, "decision", "tool", "bash")
	logger.Slog().Info("no span")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	var withSpan, without map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &withSpan); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &without); err != nil {
		t.Fatal(err)
	}
	if withSpan["trace_id"] != "4bf92f3577b34da6a3ce929d0e0e4736" || withSpan["span_id"] != "00f067aa0ba902b7" {
		t.Errorf("span ids missing: %v", withSpan)
	}
	if withSpan["service"] != "policy" {
		t.Errorf("service attr lost: %v", withSpan)
	}
	if _, ok := without["trace_id"]; ok {
		t.Errorf("unexpected trace_id without a span: %v", without)
	}
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Writer: &buf})
	defer logger.Close()

	child := logger.With("server", "rust-analyzer")
	child.Info("initialized")

	if !strings.Contains(buf.String(), "server=rust-analyzer") {
		t.Errorf("child attributes missing: %q", buf.String())
	}
}
