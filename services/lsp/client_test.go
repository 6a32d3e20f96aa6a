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
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sourcegraph/jsonrpc2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

// =============================================================================
// Lifecycle
// =============================================================================

func TestClient_StartStop(t *testing.T) {
	srv := newFakeServer(nil)
	c := startClient(t, srv, ClientConfig{ClientName: "codeterm-test", ClientVersion: "1.2.3"})

	assert.Equal(t, StateRunning, c.State())
	assert.True(t, c.IsRunning())

	caps := c.Capabilities()
	assert.Equal(t, SyncFull, caps.Sync)
	assert.True(t, caps.Hover)
	assert.True(t, caps.Completion)
	assert.True(t, caps.Definition)
	assert.True(t, caps.References)
	assert.Equal(t, "fake-ls", caps.ServerName)
	assert.Equal(t, "0.1.0", caps.ServerVersion)

	require.Eventually(t, func() bool { return srv.count(MethodInitialized) == 1 }, waitFor, tick)
	methods := srv.methods()
	require.GreaterOrEqual(t, len(methods), 2)
	assert.Equal(t, MethodInitialize, methods[0])
	assert.Equal(t, MethodInitialized, methods[1])

	var params InitializeParams
	decodeParams(t, srv.requests(MethodInitialize)[0], &params)
	require.NotNil(t, params.RootURI)
	assert.Contains(t, *params.RootURI, "file://")
	require.NotNil(t, params.ClientInfo)
	assert.Equal(t, "codeterm-test", params.ClientInfo.Name)
	assert.Equal(t, "1.2.3", params.ClientInfo.Version)
	assert.True(t, params.Capabilities.TextDocument.Synchronization.DidOpen)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))

	assert.Equal(t, StateStopped, c.State())
	assert.NoError(t, c.Err())
	assert.Equal(t, 1, srv.count(MethodShutdown))
	assert.Equal(t, 1, srv.count(MethodExit))

	select {
	case <-c.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}

	// Idempotent.
	require.NoError(t, c.Stop(ctx))
	assert.Equal(t, StateStopped, c.State())
}

func TestClient_StartTwice(t *testing.T) {
	srv := newFakeServer(nil)
	c := startClient(t, srv, ClientConfig{})

	err := c.Start(context.Background(), "")
	assert.ErrorIs(t, err, ErrAlreadyStarted)
	assert.True(t, c.IsRunning())
}

func TestClient_StopIdle(t *testing.T) {
	c := NewClient(ClientConfig{Name: "go", Server: ServerConfig{Command: "gopls"}})
	require.NoError(t, c.Stop(context.Background()))
	assert.Equal(t, StateStopped, c.State())

	err := c.Start(context.Background(), "")
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestClient_RootURINullWithoutWorkspace(t *testing.T) {
	srv := newFakeServer(nil)
	c := NewClient(ClientConfig{Name: "go", Server: ServerConfig{Command: "fake-ls"}, ShutdownGrace: 100 * time.Millisecond},
		WithSpawner(srv.spawner()), WithLogger(testLogger(&syncBuffer{})))
	require.NoError(t, c.Start(context.Background(), ""))
	defer c.Stop(context.Background())

	req := srv.requests(MethodInitialize)[0]
	var raw map[string]json.RawMessage
	decodeParams(t, req, &raw)
	assert.JSONEq(t, "null", string(raw["rootUri"]))
}

func TestClient_SpawnFailure(t *testing.T) {
	t.Run("spawner error is wrapped", func(t *testing.T) {
		spawner := func(context.Context, ServerConfig, string) (Process, error) {
			return nil, errors.New("no such file")
		}
		c := NewClient(ClientConfig{Name: "go", Server: ServerConfig{Command: "gopls"}},
			WithSpawner(spawner), WithLogger(testLogger(&syncBuffer{})))

		err := c.Start(context.Background(), "")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSpawnFailed)

		var spawnErr *SpawnError
		require.ErrorAs(t, err, &spawnErr)
		assert.Equal(t, "gopls", spawnErr.Command)
		assert.Equal(t, StateFailed, c.State())
		assert.ErrorIs(t, c.Err(), ErrSpawnFailed)

		select {
		case <-c.Done():
		case <-time.After(waitFor):
			t.Fatal("Done not closed after spawn failure")
		}
	})

	t.Run("missing executable", func(t *testing.T) {
		c := NewClient(ClientConfig{Name: "go", Server: ServerConfig{Command: "codeterm-no-such-language-server"}},
			WithLogger(testLogger(&syncBuffer{})))
		err := c.Start(context.Background(), "")
		assert.ErrorIs(t, err, ErrSpawnFailed)
		assert.Equal(t, StateFailed, c.State())
	})
}

func TestClient_NotRunning(t *testing.T) {
	c := NewClient(ClientConfig{Name: "go", Server: ServerConfig{Command: "gopls"}})
	ctx := context.Background()

	_, err := c.SendRequest(ctx, MethodHover, nil)
	assert.ErrorIs(t, err, ErrNotRunning)
	assert.ErrorIs(t, c.Notify(ctx, MethodDidOpen, nil), ErrNotRunning)
	assert.ErrorIs(t, c.OpenFile(ctx, "file:///a.go", "go", ""), ErrNotRunning)

	_, err = c.Hover(ctx, "file:///a.go", Position{})
	assert.ErrorIs(t, err, ErrNotRunning)
}

// =============================================================================
// Requests
// =============================================================================

func TestClient_RequestIDsAreSequential(t *testing.T) {
	srv := newFakeServer(nil)
	c := startClient(t, srv, ClientConfig{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.SendRequest(ctx, "test/echo", map[string]int{"n": i})
		require.NoError(t, err)
	}

	assert.Equal(t, []uint64{1, 2, 3, 4}, srv.requestIDs())
}

func TestClient_SendRequest_Echo(t *testing.T) {
	srv := newFakeServer(nil)
	c := startClient(t, srv, ClientConfig{})

	result, err := c.SendRequest(context.Background(), "test/echo", map[string]string{"hello": "world"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"hello":"world"}`, string(result))
}

func TestClient_ConcurrentRequests(t *testing.T) {
	srv := newFakeServer(nil)
	c := startClient(t, srv, ClientConfig{})

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			result, err := c.SendRequest(context.Background(), "test/echo", map[string]int{"n": n})
			if err != nil {
				errs <- err
				return
			}
			var got map[string]int
			if err := json.Unmarshal(result, &got); err != nil || got["n"] != n {
				errs <- errors.New("response routed to the wrong caller")
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	assert.Zero(t, c.pending.len())
}

func TestClient_RequestTimeout(t *testing.T) {
	srv := newFakeServer(nil)
	c := startClient(t, srv, ClientConfig{})

	start := time.Now()
	_, err := c.SendRequestWithTimeout(context.Background(), "test/slow", nil, 50*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "test/slow", timeoutErr.Method)
	assert.Zero(t, c.pending.len(), "timed-out slot must be removed")

	require.Eventually(t, func() bool { return srv.count(methodCancelRequest) == 1 }, waitFor, tick)
	assert.True(t, c.IsRunning(), "a timeout does not fail the client")
}

func TestClient_RequestContextCancelled(t *testing.T) {
	srv := newFakeServer(nil)
	c := startClient(t, srv, ClientConfig{})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := c.SendRequest(ctx, "test/slow", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, c.pending.len())
}

func TestClient_ProtocolError(t *testing.T) {
	srv := newFakeServer(nil)
	c := startClient(t, srv, ClientConfig{})

	_, err := c.SendRequest(context.Background(), "test/error", nil)
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, CodeInvalidParams, perr.Code)
	assert.Equal(t, "bad params", perr.Message)
	assert.Equal(t, "test/error", perr.Method)

	_, err = c.SendRequest(context.Background(), "test/unknown", nil)
	require.ErrorAs(t, err, &perr)
	assert.True(t, perr.IsMethodNotFound())
}

// =============================================================================
// Optional capabilities
// =============================================================================

func TestClient_UnsupportedCapabilities(t *testing.T) {
	srv := newFakeServer(map[string]any{"textDocumentSync": 2, "hoverProvider": false})
	c := startClient(t, srv, ClientConfig{})
	ctx := context.Background()
	uri := "file:///ws/main.go"

	_, err := c.Hover(ctx, uri, Position{})
	var unsupported *UnsupportedError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, MethodHover, unsupported.Method)

	_, err = c.Completion(ctx, uri, Position{})
	assert.ErrorIs(t, err, ErrUnsupported)
	_, err = c.Definition(ctx, uri, Position{})
	assert.ErrorIs(t, err, ErrUnsupported)
	_, err = c.References(ctx, uri, Position{}, true)
	assert.ErrorIs(t, err, ErrUnsupported)

	// Round-trip something so every earlier write would have arrived.
	_, err = c.SendRequest(ctx, "test/echo", nil)
	require.NoError(t, err)
	for _, m := range []string{MethodHover, MethodCompletion, MethodDefinition, MethodReferences} {
		assert.Zero(t, srv.count(m), "%s must not reach the wire", m)
	}
	assert.Equal(t, SyncIncremental, c.Capabilities().Sync)
}

func TestClient_Hover(t *testing.T) {
	srv := newFakeServer(nil)
	c := startClient(t, srv, ClientConfig{})

	hover, err := c.Hover(context.Background(), "file:///ws/main.go", Position{Line: 2, Character: 4})
	require.NoError(t, err)
	require.NotNil(t, hover)
	assert.Equal(t, "markdown", hover.Contents.Kind)
	assert.Equal(t, "**func Foo()**", hover.Contents.Value)

	var params TextDocumentPositionParams
	decodeParams(t, srv.requests(MethodHover)[0], &params)
	assert.Equal(t, Position{Line: 2, Character: 4}, params.Position)
	assert.Equal(t, "file:///ws/main.go", params.TextDocument.URI)
}

func TestClient_CompletionAndDefinition(t *testing.T) {
	srv := newFakeServer(nil)
	c := startClient(t, srv, ClientConfig{})
	ctx := context.Background()

	list, err := c.Completion(ctx, "file:///ws/main.go", Position{})
	require.NoError(t, err)
	require.Len(t, list.Items, 2)
	assert.Equal(t, "Foo", list.Items[0].Label)

	locs, err := c.Definition(ctx, "file:///ws/main.go", Position{})
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, "file:///ws/def.go", locs[0].URI)
	assert.Equal(t, Position{Line: 3, Character: 5}, locs[0].Range.Start)
}

// =============================================================================
// Documents
// =============================================================================

func TestClient_DocumentLifecycle(t *testing.T) {
	srv := newFakeServer(nil)
	c := startClient(t, srv, ClientConfig{})
	ctx := context.Background()
	uri := "file:///ws/main.go"

	require.NoError(t, c.OpenFile(ctx, uri, "go", "package main\n"))
	assert.True(t, c.IsOpen(uri))

	require.NoError(t, c.ChangeFile(ctx, uri, "package main\n\nfunc main() {}\n"))
	require.NoError(t, c.ChangeFile(ctx, uri, "package main\n"))

	docs := c.OpenDocuments()
	require.Len(t, docs, 1)
	assert.Equal(t, 3, docs[0].Version)

	require.NoError(t, c.CloseFile(ctx, uri))
	assert.False(t, c.IsOpen(uri))
	require.NoError(t, c.CloseFile(ctx, uri), "closing twice is a no-op")

	require.Eventually(t, func() bool { return srv.count(MethodDidClose) == 1 }, waitFor, tick)

	var open DidOpenTextDocumentParams
	decodeParams(t, srv.requests(MethodDidOpen)[0], &open)
	assert.Equal(t, 1, open.TextDocument.Version)
	assert.Equal(t, "go", open.TextDocument.LanguageID)

	changes := srv.requests(MethodDidChange)
	require.Len(t, changes, 2)
	var change DidChangeTextDocumentParams
	decodeParams(t, changes[0], &change)
	assert.Equal(t, 2, change.TextDocument.Version)
	require.Len(t, change.ContentChanges, 1)
	assert.Nil(t, change.ContentChanges[0].Range)
	assert.Contains(t, change.ContentChanges[0].Text, "func main")
	decodeParams(t, changes[1], &change)
	assert.Equal(t, 3, change.TextDocument.Version)
}

func TestClient_ChangeUnopenedDocument(t *testing.T) {
	srv := newFakeServer(nil)
	c := startClient(t, srv, ClientConfig{})

	err := c.ChangeFile(context.Background(), "file:///ws/never.go", "x")
	assert.ErrorIs(t, err, ErrDocumentNotOpen)
	assert.Zero(t, srv.count(MethodDidChange))
}

func TestClient_ReopenSendsChange(t *testing.T) {
	srv := newFakeServer(nil)
	c := startClient(t, srv, ClientConfig{})
	ctx := context.Background()
	uri := "file:///ws/main.go"

	require.NoError(t, c.OpenFile(ctx, uri, "go", "a"))
	require.NoError(t, c.OpenFile(ctx, uri, "go", "b"))

	require.Eventually(t, func() bool { return srv.count(MethodDidChange) == 1 }, waitFor, tick)
	assert.Equal(t, 1, srv.count(MethodDidOpen))
}

// =============================================================================
// Notifications
// =============================================================================

func TestClient_PublishDiagnostics(t *testing.T) {
	srv := newFakeServer(nil)
	c := startClient(t, srv, ClientConfig{})
	uri := "file:///ws/main.go"

	srv.notify(t, MethodPublishDiagnostics, map[string]any{
		"uri": uri,
		"diagnostics": []any{
			map[string]any{
				"range":    map[string]any{"start": map[string]int{"line": 4, "character": 1}, "end": map[string]int{"line": 4, "character": 9}},
				"severity": 1,
				"source":   "compiler",
				"code":     "E0308",
				"message":  "mismatched types",
			},
			map[string]any{
				"range":   map[string]any{"start": map[string]int{"line": 0}},
				"message": "missing character, dropped",
			},
			map[string]any{
				"range":    map[string]any{"start": map[string]int{"line": 9, "character": 0}},
				"severity": 7,
				"code":     42,
				"message":  "odd severity",
			},
		},
	})

	require.Eventually(t, func() bool { return len(c.Diagnostics(uri)) == 2 }, waitFor, tick)
	diags := c.Diagnostics(uri)
	assert.Equal(t, "mismatched types", diags[0].Message)
	assert.Equal(t, SeverityError, diags[0].Severity)
	assert.Equal(t, "compiler", diags[0].Source)
	assert.Equal(t, "E0308", diags[0].Code)
	require.NotNil(t, diags[0].End)
	assert.Equal(t, 9, diags[0].End.Character)
	assert.Equal(t, SeverityHint, diags[1].Severity)
	assert.Equal(t, "42", diags[1].Code)

	// An empty publication clears the set.
	srv.notify(t, MethodPublishDiagnostics, map[string]any{"uri": uri, "diagnostics": []any{}})
	require.Eventually(t, func() bool { return len(c.Diagnostics(uri)) == 0 }, waitFor, tick)
	assert.Empty(t, c.AllDiagnostics())
}

func TestClient_MaxDiagnostics(t *testing.T) {
	srv := newFakeServer(nil)
	c := startClient(t, srv, ClientConfig{MaxDiagnostics: 1})
	uri := "file:///ws/main.go"

	diag := func(msg string) map[string]any {
		return map[string]any{
			"range":   map[string]any{"start": map[string]int{"line": 0, "character": 0}},
			"message": msg,
		}
	}
	srv.notify(t, MethodPublishDiagnostics, map[string]any{"uri": uri, "diagnostics": []any{diag("first"), diag("second")}})

	require.Eventually(t, func() bool { return len(c.Diagnostics(uri)) == 1 }, waitFor, tick)
	assert.Equal(t, "first", c.Diagnostics(uri)[0].Message)
}

func TestClient_NotificationHandlers(t *testing.T) {
	srv := newFakeServer(nil)
	got := make(chan json.RawMessage, 2)
	c := startClient(t, srv, ClientConfig{},
		WithNotificationHandler("custom/event", func(_ string, params json.RawMessage) { got <- params }))

	var diagSeen sync.WaitGroup
	diagSeen.Add(1)
	var once sync.Once
	c.OnNotification(MethodPublishDiagnostics, func(string, json.RawMessage) { once.Do(diagSeen.Done) })

	srv.notify(t, "custom/event", map[string]int{"n": 7})
	srv.notify(t, MethodPublishDiagnostics, map[string]any{"uri": "file:///x", "diagnostics": []any{}})

	select {
	case params := <-got:
		assert.JSONEq(t, `{"n":7}`, string(params))
	case <-time.After(waitFor):
		t.Fatal("custom notification not delivered")
	}
	diagSeen.Wait()
}

func TestClient_ServerRequestsAreAnswered(t *testing.T) {
	srv := newFakeServer(nil)
	startClient(t, srv, ClientConfig{})
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	conn := srv.connection()

	var config []any
	err := conn.Call(ctx, "workspace/configuration", map[string]any{
		"items": []any{map[string]string{"section": "gopls"}, map[string]string{"section": "go"}},
	}, &config)
	require.NoError(t, err)
	assert.Equal(t, []any{nil, nil}, config)

	var result any
	require.NoError(t, conn.Call(ctx, "client/registerCapability", map[string]any{"registrations": []any{}}, &result))
	assert.Nil(t, result)
	require.NoError(t, conn.Call(ctx, "window/workDoneProgress/create", map[string]string{"token": "t1"}, &result))

	err = conn.Call(ctx, "custom/unknown", nil, &result)
	var rpcErr *jsonrpc2.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.EqualValues(t, CodeMethodNotFound, rpcErr.Code)
}

func TestClient_StderrIsLogged(t *testing.T) {
	srv := newFakeServer(nil)
	logs := &syncBuffer{}
	startClient(t, srv, ClientConfig{}, WithLogger(testLogger(logs)))

	_, err := srv.process().stderrW.Write([]byte("panic: something broke\r\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		out := logs.String()
		return strings.Contains(out, "language server stderr") && strings.Contains(out, "panic: something broke")
	}, waitFor, tick)
}

// =============================================================================
// Failure
// =============================================================================

func TestClient_ServerCrash(t *testing.T) {
	srv := newFakeServer(nil)
	c := startClient(t, srv, ClientConfig{})

	errc := make(chan error, 1)
	go func() {
		_, err := c.SendRequestWithTimeout(context.Background(), "test/slow", nil, 10*time.Second)
		errc <- err
	}()
	require.Eventually(t, func() bool { return srv.count("test/slow") == 1 }, waitFor, tick)

	srv.process().exit(errors.New("exit status 2"))

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrServerExited)
	case <-time.After(waitFor):
		t.Fatal("pending request not failed on crash")
	}

	select {
	case <-c.Done():
	case <-time.After(waitFor):
		t.Fatal("Done not closed after crash")
	}
	assert.Equal(t, StateFailed, c.State())
	assert.ErrorIs(t, c.Err(), ErrServerExited)
	assert.Empty(t, c.OpenDocuments())

	_, err := c.SendRequest(context.Background(), "test/echo", nil)
	assert.ErrorIs(t, err, ErrNotRunning)

	// Stop on a failed client is a no-op.
	assert.NoError(t, c.Stop(context.Background()))
	assert.Equal(t, StateFailed, c.State())
}

func TestClient_StopCancelsPending(t *testing.T) {
	srv := newFakeServer(nil)
	c := startClient(t, srv, ClientConfig{})

	errc := make(chan error, 1)
	go func() {
		_, err := c.SendRequestWithTimeout(context.Background(), "test/slow", nil, 10*time.Second)
		errc <- err
	}()
	require.Eventually(t, func() bool { return srv.count("test/slow") == 1 }, waitFor, tick)

	require.NoError(t, c.Stop(context.Background()))
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(waitFor):
		t.Fatal("pending request not cancelled by Stop")
	}
}

func TestClient_StopTerminatesStubbornServer(t *testing.T) {
	srv := newFakeServer(nil)
	srv.ignoreExit = true
	c := startClient(t, srv, ClientConfig{ShutdownGrace: 20 * time.Millisecond})

	require.NoError(t, c.Stop(context.Background()))
	assert.Equal(t, StateStopped, c.State())
	assert.True(t, srv.process().terminated.Load())
}
