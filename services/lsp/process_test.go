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
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	helperServerEnv   = "CODETERM_LSP_HELPER_SERVER"
	helperURI         = "file:///ws/big.go"
	helperDiagnostics = 400
)

// TestHelperLanguageServer is not a real test. It is the child process
// for the ExecSpawner tests: it answers initialize, waits for a
// "test/finish" request, publishes one large diagnostics frame and exits
// without replying.
func TestHelperLanguageServer(t *testing.T) {
	if os.Getenv(helperServerEnv) != "1" {
		return
	}
	codec := NewCodec(os.Stdin, os.Stdout)
	for {
		body, err := codec.ReadFrame()
		if err != nil {
			os.Exit(3)
		}
		msg, err := DecodeMessage(body)
		if err != nil {
			os.Exit(4)
		}
		switch msg.Method {
		case MethodInitialize:
			resp, _ := NewResultResponse(*msg.ID, map[string]any{"capabilities": map[string]any{}})
			if err := codec.WriteMessage(resp); err != nil {
				os.Exit(5)
			}
		case "test/finish":
			note, _ := NewNotification(MethodPublishDiagnostics, helperPublication())
			if err := codec.WriteMessage(note); err != nil {
				os.Exit(6)
			}
			os.Exit(0)
		}
	}
}

// helperPublication is large enough to exceed a pipe buffer, so the child
// is still writing when the client starts reading.
func helperPublication() map[string]any {
	diags := make([]map[string]any, helperDiagnostics)
	for i := range diags {
		diags[i] = map[string]any{
			"range": map[string]any{
				"start": map[string]int{"line": i, "character": 0},
				"end":   map[string]int{"line": i, "character": 10},
			},
			"severity": 1,
			"message":  fmt.Sprintf("problem %d: %s", i, strings.Repeat("x", 200)),
		}
	}
	return map[string]any{"uri": helperURI, "diagnostics": diags}
}

func helperServerConfig() ServerConfig {
	return ServerConfig{
		Command: os.Args[0],
		Args:    []string{"-test.run=^TestHelperLanguageServer$"},
		Env:     []string{helperServerEnv + "=1"},
	}
}

func TestExecSpawner_LastFrameBeforeExitIsDelivered(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns a child process")
	}

	// Repeat to catch the reader racing the exit handling.
	for run := 0; run < 5; run++ {
		c := NewClient(ClientConfig{Name: "helper", Server: helperServerConfig()}, WithLogger(testLogger(io.Discard)))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)

		require.NoError(t, c.Start(ctx, t.TempDir()), "run %d", run)

		_, err := c.SendRequest(ctx, "test/finish", nil)
		assert.ErrorIs(t, err, ErrServerExited, "run %d", run)

		select {
		case <-c.Done():
		case <-ctx.Done():
			t.Fatalf("run %d: client not done after server exit", run)
		}
		cancel()

		assert.Len(t, c.Diagnostics(helperURI), helperDiagnostics, "run %d", run)
		assert.Equal(t, StateFailed, c.State(), "run %d", run)
		require.Error(t, c.Err())
		assert.ErrorIs(t, c.Err(), ErrServerExited, "run %d", run)
		assert.NotContains(t, c.Err().Error(), "file already closed", "run %d", run)
	}
}

func TestExecSpawner_MissingCommand(t *testing.T) {
	_, err := ExecSpawner(context.Background(), ServerConfig{Command: "codeterm-no-such-server"}, t.TempDir())
	var spawnErr *SpawnError
	require.ErrorAs(t, err, &spawnErr)
	assert.ErrorIs(t, err, ErrSpawnFailed)
}
