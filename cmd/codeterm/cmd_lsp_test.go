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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/codeterm/pkg/ux"
	"github.com/AleutianAI/codeterm/services/lsp"
)

func TestParsePosition(t *testing.T) {
	tests := []struct {
		in      string
		want    lsp.Position
		wantErr bool
	}{
		{in: "1:1", want: lsp.Position{Line: 0, Character: 0}},
		{in: "12:7", want: lsp.Position{Line: 11, Character: 6}},
		{in: "0:1", wantErr: true},
		{in: "1:0", wantErr: true},
		{in: "3", wantErr: true},
		{in: "a:b", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parsePosition(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSummarize(t *testing.T) {
	diags := []lsp.Diagnostic{
		{Severity: lsp.SeverityWarning},
		{Severity: lsp.SeverityError},
		{Severity: lsp.SeverityError},
		{Severity: lsp.SeverityHint},
	}
	assert.Equal(t, "2 errors, 1 warning, 1 hint", summarize(diags))
	assert.Equal(t, "", summarize(nil))
}

func TestWorstIcon(t *testing.T) {
	assert.Equal(t, ux.IconInfo, worstIcon([]lsp.Diagnostic{{Severity: lsp.SeverityHint}}))
	assert.Equal(t, ux.IconWarning, worstIcon([]lsp.Diagnostic{{Severity: lsp.SeverityInfo}, {Severity: lsp.SeverityWarning}}))
	assert.Equal(t, ux.IconError, worstIcon([]lsp.Diagnostic{{Severity: lsp.SeverityWarning}, {Severity: lsp.SeverityError}}))
}

func TestServerStatuses(t *testing.T) {
	servers := map[string]lsp.ServerConfig{
		"rust": {Command: "rust-analyzer", Extensions: []string{".rs"}},
		"go":   {Command: "gopls", Extensions: []string{".go"}},
	}
	lookPath := func(name string) (string, error) {
		if name == "gopls" {
			return "/usr/local/bin/gopls", nil
		}
		return "", errors.New("not found")
	}

	got := serverStatuses(servers, lookPath)
	require.Len(t, got, 2)
	assert.Equal(t, ServerStatus{
		Language:   "go",
		Command:    "gopls",
		Extensions: []string{".go"},
		Installed:  true,
		Path:       "/usr/local/bin/gopls",
	}, got[0])
	assert.Equal(t, "rust", got[1].Language)
	assert.False(t, got[1].Installed)
	assert.Empty(t, got[1].Path)
}

func TestWaitForPublications(t *testing.T) {
	t.Run("returns once every file published", func(t *testing.T) {
		published := make(chan string, 2)
		published <- "file:///a.go"
		published <- "file:///b.go"

		start := time.Now()
		waitForPublications(context.Background(), published,
			map[string]int{"file:///a.go": 0, "file:///b.go": 1}, 5*time.Second)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("gives up after the limit", func(t *testing.T) {
		published := make(chan string)
		start := time.Now()
		waitForPublications(context.Background(), published, map[string]int{"file:///a.go": 0}, 20*time.Millisecond)
		assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	})

	t.Run("stops on cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		published := make(chan string)
		start := time.Now()
		waitForPublications(ctx, published, map[string]int{"file:///a.go": 0}, 5*time.Second)
		assert.Less(t, time.Since(start), time.Second)
	})
}
