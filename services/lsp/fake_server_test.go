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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sourcegraph/jsonrpc2"
)

// =============================================================================
// In-memory process
// =============================================================================

// pipeProcess is a Process backed by io.Pipes. Exiting closes every pipe,
// as the OS does for a real child.
type pipeProcess struct {
	stdinR  *io.PipeReader
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter
	stderrR *io.PipeReader
	stderrW *io.PipeWriter

	exited     chan struct{}
	exitOnce   sync.Once
	exitErr    error
	terminated atomic.Bool
	killed     atomic.Bool
}

func newPipeProcess() *pipeProcess {
	p := &pipeProcess{exited: make(chan struct{})}
	p.stdinR, p.stdinW = io.Pipe()
	p.stdoutR, p.stdoutW = io.Pipe()
	p.stderrR, p.stderrW = io.Pipe()
	return p
}

func (p *pipeProcess) Stdin() io.WriteCloser { return p.stdinW }
func (p *pipeProcess) Stdout() io.Reader     { return p.stdoutR }
func (p *pipeProcess) Stderr() io.Reader     { return p.stderrR }
func (p *pipeProcess) Pid() int              { return 4242 }

func (p *pipeProcess) Wait() error {
	<-p.exited
	return p.exitErr
}

func (p *pipeProcess) Terminate() error {
	p.terminated.Store(true)
	p.exit(errors.New("signal: terminated"))
	return nil
}

func (p *pipeProcess) Kill() error {
	p.killed.Store(true)
	p.exit(errors.New("signal: killed"))
	return nil
}

func (p *pipeProcess) exit(err error) {
	p.exitOnce.Do(func() {
		p.exitErr = err
		_ = p.stdoutW.Close()
		_ = p.stderrW.Close()
		_ = p.stdinR.Close()
		close(p.exited)
	})
}

// serverStream joins the server ends of stdin and stdout.
type serverStream struct {
	io.Reader
	io.Writer
	closers []io.Closer
}

func (s serverStream) Close() error {
	for _, c := range s.closers {
		_ = c.Close()
	}
	return nil
}

// =============================================================================
// Fake language server
// =============================================================================

// fakeServer is a language server built on jsonrpc2. It records every
// inbound message and answers a fixed set of methods.
type fakeServer struct {
	caps map[string]any

	mu       sync.Mutex
	received []*jsonrpc2.Request
	proc     *pipeProcess
	conn     *jsonrpc2.Conn

	// ignoreExit keeps the process alive after the exit notification.
	ignoreExit bool
}

func newFakeServer(caps map[string]any) *fakeServer {
	if caps == nil {
		caps = fullCapabilities()
	}
	return &fakeServer{caps: caps}
}

func fullCapabilities() map[string]any {
	return map[string]any{
		"textDocumentSync":   1,
		"hoverProvider":      true,
		"completionProvider": map[string]any{"triggerCharacters": []string{"."}},
		"definitionProvider": true,
		"referencesProvider": map[string]any{},
	}
}

// spawner returns a Spawner that connects this server to a new process.
func (s *fakeServer) spawner() Spawner {
	return func(context.Context, ServerConfig, string) (Process, error) {
		p := newPipeProcess()
		stream := jsonrpc2.NewBufferedStream(
			serverStream{Reader: p.stdinR, Writer: p.stdoutW, closers: []io.Closer{p.stdinR, p.stdoutW}},
			jsonrpc2.VSCodeObjectCodec{},
		)
		s.mu.Lock()
		s.proc = p
		s.conn = jsonrpc2.NewConn(context.Background(), stream, s)
		s.mu.Unlock()
		return p, nil
	}
}

func (s *fakeServer) process() *pipeProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc
}

func (s *fakeServer) connection() *jsonrpc2.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// Handle implements jsonrpc2.Handler.
func (s *fakeServer) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	s.mu.Lock()
	s.received = append(s.received, req)
	ignoreExit := s.ignoreExit
	proc := s.proc
	s.mu.Unlock()

	if req.Notif {
		if req.Method == MethodExit && !ignoreExit {
			go proc.exit(nil)
		}
		return
	}

	switch req.Method {
	case MethodInitialize:
		_ = conn.Reply(ctx, req.ID, map[string]any{
			"capabilities": s.caps,
			"serverInfo":   map[string]any{"name": "fake-ls", "version": "0.1.0"},
		})
	case MethodShutdown:
		_ = conn.Reply(ctx, req.ID, nil)
	case MethodHover:
		_ = conn.Reply(ctx, req.ID, map[string]any{
			"contents": map[string]any{"kind": "markdown", "value": "**func Foo()**"},
		})
	case MethodCompletion:
		_ = conn.Reply(ctx, req.ID, []map[string]any{{"label": "Foo"}, {"label": "Bar"}})
	case MethodDefinition:
		_ = conn.Reply(ctx, req.ID, map[string]any{
			"uri":   "file:///ws/def.go",
			"range": map[string]any{"start": map[string]int{"line": 3, "character": 5}, "end": map[string]int{"line": 3, "character": 8}},
		})
	case "test/echo":
		_ = conn.Reply(ctx, req.ID, req.Params)
	case "test/error":
		_ = conn.ReplyWithError(ctx, req.ID, &jsonrpc2.Error{Code: CodeInvalidParams, Message: "bad params"})
	case "test/slow":
		// Never answered.
	default:
		_ = conn.ReplyWithError(ctx, req.ID, &jsonrpc2.Error{Code: CodeMethodNotFound, Message: "unknown method"})
	}
}

// methods returns the inbound method names in arrival order.
func (s *fakeServer) methods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.received))
	for _, r := range s.received {
		out = append(out, r.Method)
	}
	return out
}

// requests returns the inbound messages named method.
func (s *fakeServer) requests(method string) []*jsonrpc2.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*jsonrpc2.Request
	for _, r := range s.received {
		if r.Method == method {
			out = append(out, r)
		}
	}
	return out
}

// requestIDs returns the ids of inbound requests in arrival order.
func (s *fakeServer) requestIDs() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uint64
	for _, r := range s.received {
		if !r.Notif {
			ids = append(ids, r.ID.Num)
		}
	}
	return ids
}

func (s *fakeServer) count(method string) int {
	return len(s.requests(method))
}

// notify pushes a notification to the client.
func (s *fakeServer) notify(t *testing.T, method string, params any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.connection().Notify(ctx, method, params); err != nil {
		t.Fatalf("server notify %s: %v", method, err)
	}
}

func decodeParams(t *testing.T, req *jsonrpc2.Request, v any) {
	t.Helper()
	if req.Params == nil {
		t.Fatalf("%s has no params", req.Method)
	}
	if err := json.Unmarshal(*req.Params, v); err != nil {
		t.Fatalf("decode %s params: %v", req.Method, err)
	}
}

// =============================================================================
// Helpers
// =============================================================================

// syncBuffer is a goroutine-safe log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// startClient starts a client against srv and stops it on cleanup.
func startClient(t *testing.T, srv *fakeServer, cfg ClientConfig, opts ...Option) *Client {
	t.Helper()
	if cfg.Name == "" {
		cfg.Name = "go"
	}
	if cfg.Server.Command == "" {
		cfg.Server.Command = "fake-ls"
	}
	if cfg.ShutdownGrace == 0 {
		cfg.ShutdownGrace = 200 * time.Millisecond
	}
	opts = append([]Option{WithSpawner(srv.spawner()), WithLogger(testLogger(io.Discard))}, opts...)
	c := NewClient(cfg, opts...)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Start(ctx, t.TempDir()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.Stop(ctx)
	})
	return c
}
