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
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFarm hands out a new fake server per spawn.
type fakeFarm struct {
	mu      sync.Mutex
	servers []*fakeServer
	spawns  atomic.Int32
}

func (f *fakeFarm) spawner() Spawner {
	return func(ctx context.Context, cfg ServerConfig, dir string) (Process, error) {
		f.spawns.Add(1)
		// Widen the race window for concurrent first requests.
		time.Sleep(10 * time.Millisecond)
		srv := newFakeServer(nil)
		f.mu.Lock()
		f.servers = append(f.servers, srv)
		f.mu.Unlock()
		return srv.spawner()(ctx, cfg, dir)
	}
}

func (f *fakeFarm) server(i int) *fakeServer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.servers[i]
}

func newTestManager(t *testing.T, farm *fakeFarm) *Manager {
	t.Helper()
	m := NewManager(ManagerConfig{
		RootPath: t.TempDir(),
		Servers: map[string]ServerConfig{
			"go":   {Command: "gopls", Extensions: []string{"go"}},
			"rust": {Command: "rust-analyzer", Extensions: []string{".rs"}},
		},
		RequestTimeout: time.Second,
	}, WithSpawner(farm.spawner()), WithLogger(testLogger(io.Discard)))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.ShutdownAll(ctx)
	})
	return m
}

func TestManager_DetectLanguage(t *testing.T) {
	m := NewManager(ManagerConfig{Servers: map[string]ServerConfig{
		"typescript": {Command: "typescript-language-server", Extensions: []string{"ts", "js"}},
	}})

	tests := map[string]string{
		"src/main.rs":     "rust",
		"app.py":          "python",
		"index.js":        "typescript",
		"component.tsx":   "typescript",
		"main.go":         "go",
		"Main.JAVA":       "java",
		"x.cc":            "cpp",
		"x.h":             "c",
		"Program.cs":      "csharp",
		"script.sh":       "bash",
		"config.yml":      "yaml",
		"README.md":       "markdown",
		"Makefile":        "",
		"archive.tar.zzz": "",
	}
	for path, want := range tests {
		assert.Equal(t, want, m.DetectLanguage(path), path)
	}
}

func TestPathToURI_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "with space", "main.go")

	uri := PathToURI(path)
	assert.True(t, len(uri) > len("file:///"))
	assert.Contains(t, uri, "with%20space")

	back, err := URIToPath(uri)
	require.NoError(t, err)
	assert.Equal(t, path, back)

	_, err = URIToPath("https://example.com/a.go")
	assert.Error(t, err)
}

func TestManager_UnknownLanguage(t *testing.T) {
	m := newTestManager(t, &fakeFarm{})

	_, err := m.ClientFor(context.Background(), "cobol")
	assert.ErrorIs(t, err, ErrUnknownLanguage)

	err = m.OpenFile(context.Background(), "notes.txt", "hello")
	assert.ErrorIs(t, err, ErrUnknownLanguage)

	// Known language without a configured server.
	err = m.OpenFile(context.Background(), "app.py", "print(1)")
	assert.ErrorIs(t, err, ErrUnknownLanguage)
}

func TestManager_SingleStartPerLanguage(t *testing.T) {
	farm := &fakeFarm{}
	m := newTestManager(t, farm)

	var wg sync.WaitGroup
	clients := make([]*Client, 10)
	for i := range clients {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := m.ClientFor(context.Background(), "go")
			if err != nil {
				t.Error(err)
				return
			}
			clients[i] = c
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, farm.spawns.Load())
	for _, c := range clients {
		assert.Same(t, clients[0], c)
	}
	assert.Equal(t, []string{"go"}, m.Running())
}

func TestManager_FileRouting(t *testing.T) {
	farm := &fakeFarm{}
	m := newTestManager(t, farm)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "main.go")

	require.NoError(t, m.OpenFile(ctx, path, "package main\n"))
	require.NoError(t, m.ChangeFile(ctx, path, "package main\n\n"))

	srv := farm.server(0)
	require.Eventually(t, func() bool { return srv.count(MethodDidChange) == 1 }, waitFor, tick)

	var open DidOpenTextDocumentParams
	decodeParams(t, srv.requests(MethodDidOpen)[0], &open)
	assert.Equal(t, PathToURI(path), open.TextDocument.URI)
	assert.Equal(t, "go", open.TextDocument.LanguageID)

	srv.notify(t, MethodPublishDiagnostics, map[string]any{
		"uri": PathToURI(path),
		"diagnostics": []any{map[string]any{
			"range":   map[string]any{"start": map[string]int{"line": 0, "character": 0}},
			"message": "expected declaration",
		}},
	})
	require.Eventually(t, func() bool { return len(m.Diagnostics(path)) == 1 }, waitFor, tick)
	assert.Len(t, m.AllDiagnostics(), 1)

	require.NoError(t, m.CloseFile(ctx, path))
	require.Eventually(t, func() bool { return srv.count(MethodDidClose) == 1 }, waitFor, tick)

	// Files of a language with no running client.
	assert.ErrorIs(t, m.ChangeFile(ctx, "lib.rs", "x"), ErrDocumentNotOpen)
	assert.NoError(t, m.CloseFile(ctx, "lib.rs"))
	assert.Empty(t, m.Diagnostics("lib.rs"))
}

func TestManager_ReplacesFailedClient(t *testing.T) {
	farm := &fakeFarm{}
	m := newTestManager(t, farm)
	ctx := context.Background()

	first, err := m.ClientFor(ctx, "go")
	require.NoError(t, err)
	farm.server(0).process().exit(io.ErrUnexpectedEOF)
	<-first.Done()

	second, err := m.ClientFor(ctx, "go")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.True(t, second.IsRunning())
	assert.EqualValues(t, 2, farm.spawns.Load())
}

func TestManager_RestartAllReopensDocuments(t *testing.T) {
	farm := &fakeFarm{}
	m := newTestManager(t, farm)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "main.go")

	require.NoError(t, m.OpenFile(ctx, path, "package main\n"))
	require.NoError(t, m.RestartAll(ctx))

	assert.EqualValues(t, 2, farm.spawns.Load())
	assert.Equal(t, 1, farm.server(0).count(MethodShutdown))

	restarted := farm.server(1)
	require.Eventually(t, func() bool { return restarted.count(MethodDidOpen) == 1 }, waitFor, tick)
	var open DidOpenTextDocumentParams
	decodeParams(t, restarted.requests(MethodDidOpen)[0], &open)
	assert.Equal(t, "package main\n", open.TextDocument.Text)
}

func TestManager_ShutdownAllIsIdempotent(t *testing.T) {
	farm := &fakeFarm{}
	m := newTestManager(t, farm)
	ctx := context.Background()

	c, err := m.ClientFor(ctx, "go")
	require.NoError(t, err)

	require.NoError(t, m.ShutdownAll(ctx))
	assert.Equal(t, StateStopped, c.State())
	require.NoError(t, m.ShutdownAll(ctx))

	_, err = m.ClientFor(ctx, "go")
	assert.ErrorIs(t, err, ErrManagerClosed)
	assert.ErrorIs(t, m.RestartAll(ctx), ErrManagerClosed)
	assert.Empty(t, m.Running())
}

func TestDefaultServers(t *testing.T) {
	servers := DefaultServers()
	assert.Equal(t, "gopls", servers["go"].Command)
	assert.Equal(t, []string{"--stdio"}, servers["python"].Args)
	assert.Equal(t, "clangd", servers["cpp"].Command)
	assert.Equal(t, "rust", LanguageForExtension(".RS"))
}
