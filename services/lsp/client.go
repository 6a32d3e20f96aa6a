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
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Default client timing and sizing.
const (
	DefaultRequestTimeout = 5 * time.Second
	DefaultInitTimeout    = 10 * time.Second
	DefaultShutdownGrace  = 2 * time.Second
	DefaultWriteQueueSize = 64

	stderrLinesPerSecond = 20
	stderrBurst          = 40
	maxStderrLine        = 64 * 1024
)

// =============================================================================
// Configuration
// =============================================================================

// ServerConfig describes how to launch one language server.
type ServerConfig struct {
	Command    string   `yaml:"command" validate:"required"`
	Args       []string `yaml:"args"`
	WorkingDir string   `yaml:"working_dir"`
	Env        []string `yaml:"env"`
	Workspace  bool     `yaml:"workspace"`
	Extensions []string `yaml:"extensions"`
}

func (s ServerConfig) commandLine() string {
	return strings.TrimSpace(s.Command + " " + strings.Join(s.Args, " "))
}

// ClientConfig configures a Client.
type ClientConfig struct {
	// Name is the language id this client serves, used in logs and metrics.
	Name string

	// Server is the process to launch.
	Server ServerConfig

	// RequestTimeout bounds ordinary requests. Default 5s.
	RequestTimeout time.Duration

	// InitTimeout bounds the initialize request. Default 10s.
	InitTimeout time.Duration

	// ShutdownGrace is how long the server gets to exit on its own before
	// it is terminated, and again before it is killed. Default 2s.
	ShutdownGrace time.Duration

	// WriteQueueSize bounds outbound messages waiting for the writer.
	WriteQueueSize int

	// MaxDiagnostics caps the diagnostics kept per URI. Zero keeps all.
	MaxDiagnostics int

	// ClientName and ClientVersion are sent in clientInfo.
	ClientName    string
	ClientVersion string
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.InitTimeout <= 0 {
		c.InitTimeout = DefaultInitTimeout
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = DefaultShutdownGrace
	}
	if c.WriteQueueSize <= 0 {
		c.WriteQueueSize = DefaultWriteQueueSize
	}
	if c.ClientName == "" {
		c.ClientName = "codeterm"
	}
	if c.Name == "" {
		c.Name = c.Server.Command
	}
	return c
}

// NotificationHandler receives server notifications for one method. It
// runs on the reader task and must not block.
type NotificationHandler func(method string, params json.RawMessage)

// Option configures a Client or Manager.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	spawner  Spawner
	handlers map[string][]NotificationHandler
}

func buildOptions(opts []Option) options {
	o := options{
		logger:   slog.Default(),
		spawner:  ExecSpawner,
		handlers: make(map[string][]NotificationHandler),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger. Server stderr is forwarded here.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithSpawner replaces process creation, e.g. with an in-memory server.
func WithSpawner(spawner Spawner) Option {
	return func(o *options) {
		if spawner != nil {
			o.spawner = spawner
		}
	}
}

// WithNotificationHandler registers h for notifications named method.
func WithNotificationHandler(method string, h NotificationHandler) Option {
	return func(o *options) {
		o.handlers[method] = append(o.handlers[method], h)
	}
}

// =============================================================================
// State
// =============================================================================

// State is the client lifecycle state.
//
// Transitions: Idle -> Initializing -> Running -> Stopping -> Stopped.
// Any non-terminal state may move to Failed on spawn, I/O or process
// failure. Stopped and Failed are terminal; a new client is needed to
// restart.
type State int32

const (
	StateIdle State = iota
	StateInitializing
	StateRunning
	StateStopping
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// =============================================================================
// Client
// =============================================================================

// outgoing is one message queued for the writer task.
type outgoing struct {
	msg  *Message
	errc chan error
}

// Client talks to a single language server process over stdio.
//
// Description:
//
//	Four tasks run per client: a writer draining the outbound queue, a
//	reader dispatching inbound frames, a stderr drainer and a supervisor
//	owning the child process. They share one errgroup; the first failure
//	cancels the rest and the client becomes Failed.
//
// Thread Safety:
//
//	All exported methods are safe for concurrent use.
type Client struct {
	cfg    ClientConfig
	logger *slog.Logger
	spawn  Spawner

	// lifeMu serialises Start's setup with Stop.
	lifeMu sync.Mutex

	mu    sync.RWMutex
	state State
	caps  Capabilities
	err   error

	handlersMu sync.RWMutex
	handlers   map[string][]NotificationHandler

	pending *pendingTable
	docs    *documentStore
	diags   *diagnosticStore
	docOps  sync.Mutex

	proc   Process
	codec  *Codec
	outbox chan outgoing
	runCtx context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	// readDone closes when the reader has drained stdout.
	readDone chan struct{}

	done     chan struct{}
	doneOnce sync.Once
}

// NewClient creates an idle client. Call Start to launch the server.
func NewClient(cfg ClientConfig, opts ...Option) *Client {
	cfg = cfg.withDefaults()
	o := buildOptions(opts)
	return &Client{
		cfg:      cfg,
		logger:   o.logger.With("server", cfg.Name),
		spawn:    o.spawner,
		handlers: o.handlers,
		pending:  newPendingTable(),
		docs:     newDocumentStore(),
		diags:    newDiagnosticStore(cfg.MaxDiagnostics),
		outbox:   make(chan outgoing, cfg.WriteQueueSize),
		runCtx:   context.Background(),
		cancel:   func() {},
		done:     make(chan struct{}),
	}
}

// Name returns the language id this client serves.
func (c *Client) Name() string { return c.cfg.Name }

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsRunning reports whether requests can be sent.
func (c *Client) IsRunning() bool { return c.State() == StateRunning }

// Capabilities returns the record captured from the initialize response.
// It is the zero value before initialization completes.
func (c *Client) Capabilities() Capabilities {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.caps
}

// Done is closed once the client reaches Stopped or Failed and its tasks
// have exited.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns the cause of failure, or nil.
func (c *Client) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Start spawns the server and performs the initialize handshake.
//
// Description:
//
//	Spawns the configured command, starts the client tasks, sends
//	initialize (bounded by InitTimeout) and, once the server answers,
//	records its capabilities, sends initialized and moves to Running.
//
// Inputs:
//
//	ctx - Bounds the handshake only; the server outlives it.
//	workspaceRoot - Project root sent as rootUri. Empty sends null.
//
// Outputs:
//
//	error - ErrAlreadyStarted, *SpawnError, or a handshake failure. On any
//	        failure the client is Failed.
func (c *Client) Start(ctx context.Context, workspaceRoot string) error {
	c.lifeMu.Lock()

	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		c.lifeMu.Unlock()
		return ErrAlreadyStarted
	}
	c.state = StateInitializing
	c.mu.Unlock()

	root := ""
	if workspaceRoot != "" {
		abs, err := filepath.Abs(workspaceRoot)
		if err != nil {
			c.lifeMu.Unlock()
			err = fmt.Errorf("resolve workspace root: %w", err)
			c.finish(err)
			return err
		}
		root = abs
	}

	dir := c.cfg.Server.WorkingDir
	if dir == "" && c.cfg.Server.Workspace {
		dir = root
	}

	proc, err := c.spawn(ctx, c.cfg.Server, dir)
	if err != nil {
		c.lifeMu.Unlock()
		recordServerSpawn(ctx, c.cfg.Name, false)
		var spawnErr *SpawnError
		if !errors.As(err, &spawnErr) {
			err = &SpawnError{Command: c.cfg.Server.commandLine(), Err: err}
		}
		c.logger.Error("failed to spawn language server", "command", c.cfg.Server.commandLine(), "error", err)
		c.finish(err)
		return err
	}
	recordServerSpawn(ctx, c.cfg.Name, true)
	c.logger.Info("language server spawned", "command", c.cfg.Server.commandLine(), "pid", proc.Pid())

	runCtx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(runCtx)

	c.mu.Lock()
	c.proc = proc
	c.codec = NewCodec(proc.Stdout(), proc.Stdin())
	c.readDone = make(chan struct{})
	c.runCtx = gctx
	c.cancel = cancel
	c.group = group
	c.mu.Unlock()

	group.Go(func() error { return c.writeLoop(gctx) })
	group.Go(c.readLoop)
	group.Go(c.drainStderr)
	group.Go(func() error { return c.supervise(gctx) })
	go c.reap()

	c.lifeMu.Unlock()

	return c.initialize(ctx, root)
}

// initialize runs the handshake on a started client.
func (c *Client) initialize(ctx context.Context, root string) error {
	raw, err := c.call(ctx, MethodInitialize, c.initializeParams(root), c.cfg.InitTimeout, StateInitializing)
	if err != nil {
		err = fmt.Errorf("initialize %s: %w", c.cfg.Name, err)
		c.fail(err)
		return err
	}

	var result InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		err = fmt.Errorf("initialize %s: decode result: %w", c.cfg.Name, err)
		c.fail(err)
		return err
	}
	caps := capabilitiesFromResult(result)

	c.mu.Lock()
	c.caps = caps
	c.mu.Unlock()

	if err := c.notify(ctx, MethodInitialized, struct{}{}, StateInitializing); err != nil {
		err = fmt.Errorf("initialized %s: %w", c.cfg.Name, err)
		c.fail(err)
		return err
	}

	c.mu.Lock()
	if c.state != StateInitializing {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("initialize %s: client is %s: %w", c.cfg.Name, state, ErrCancelled)
	}
	c.state = StateRunning
	c.mu.Unlock()

	c.logger.Info("language server initialized",
		"server_name", caps.ServerName,
		"server_version", caps.ServerVersion,
		"hover", caps.Hover,
		"completion", caps.Completion,
		"definition", caps.Definition,
		"references", caps.References,
	)
	return nil
}

func (c *Client) initializeParams(root string) InitializeParams {
	params := InitializeParams{
		ProcessID: os.Getpid(),
		ClientInfo: &ClientInfo{
			Name:    c.cfg.ClientName,
			Version: c.cfg.ClientVersion,
		},
		Capabilities: ClientCapabilities{
			TextDocument: TextDocumentClientCapabilities{
				Synchronization: SynchronizationCapabilities{DidOpen: true, DidClose: true, DidChange: true},
				Hover:           &HoverClientCapabilities{ContentFormat: []string{"markdown", "plaintext"}},
				Completion:      &CompletionClientCapabilities{},
				PublishDiagnostics: &PublishDiagnosticsCapabilities{
					RelatedInformation: false,
				},
			},
			Workspace: WorkspaceClientCapabilities{WorkspaceFolders: true, Configuration: true},
		},
	}
	if root != "" {
		uri := PathToURI(root)
		params.RootURI = &uri
		params.WorkspaceFolders = []WorkspaceFolder{{URI: uri, Name: filepath.Base(root)}}
	}
	return params
}

// Stop shuts the server down and waits for the client tasks to exit.
//
// Description:
//
//	From Running, sends shutdown and exit, then closes the server's stdin.
//	Outstanding requests fail with ErrCancelled. The server is terminated
//	if it has not exited after ShutdownGrace, and killed after a second
//	grace period. Calling Stop again, or on a failed client, is a no-op
//	that waits for teardown.
//
// Outputs:
//
//	error - Only ctx.Err() if ctx ends before teardown completes.
func (c *Client) Stop(ctx context.Context) error {
	c.lifeMu.Lock()
	c.mu.Lock()
	switch c.state {
	case StateIdle:
		c.state = StateStopped
		c.mu.Unlock()
		c.lifeMu.Unlock()
		c.closeDone()
		return nil
	case StateStopping, StateStopped, StateFailed:
		c.mu.Unlock()
		c.lifeMu.Unlock()
		return c.waitDone(ctx)
	}
	wasRunning := c.state == StateRunning
	c.state = StateStopping
	cancel := c.cancel
	c.mu.Unlock()
	c.lifeMu.Unlock()

	c.logger.Info("stopping language server", "open_documents", len(c.docs.list()))

	if wasRunning {
		if _, err := c.call(ctx, MethodShutdown, nil, c.cfg.RequestTimeout, StateStopping); err != nil {
			c.logger.Debug("shutdown request failed", "error", err)
		}
		if err := c.notify(ctx, MethodExit, nil, StateStopping); err != nil {
			c.logger.Debug("exit notification failed", "error", err)
		}
	}

	c.pending.failAll(ErrCancelled)
	cancel()
	return c.waitDone(ctx)
}

// fail moves a live client to Failed, fails pending requests with err
// and cancels the client tasks. It is a no-op once stopping or terminal.
func (c *Client) fail(err error) {
	c.mu.Lock()
	switch c.state {
	case StateStopping, StateStopped, StateFailed:
		c.mu.Unlock()
		return
	}
	c.state = StateFailed
	c.err = err
	cancel := c.cancel
	c.mu.Unlock()

	c.logger.Error("language server failed", "error", err)
	c.pending.failAll(err)
	cancel()
}

// finish marks a client that never started its tasks as Failed.
func (c *Client) finish(err error) {
	c.mu.Lock()
	c.state = StateFailed
	c.err = err
	c.mu.Unlock()
	c.pending.failAll(err)
	c.closeDone()
}

// reap waits for the client tasks and settles the terminal state.
func (c *Client) reap() {
	groupErr := c.group.Wait()

	c.mu.Lock()
	switch c.state {
	case StateStopping:
		c.state = StateStopped
	case StateStopped, StateFailed:
	default:
		c.state = StateFailed
		if c.err == nil {
			c.err = ErrServerExited
			if groupErr != nil {
				c.err = groupErr
			}
		}
	}
	cause := c.err
	state := c.state
	c.mu.Unlock()

	if cause == nil {
		cause = ErrCancelled
	}
	c.pending.failAll(cause)
	c.docs.clear()
	c.logger.Info("language server client finished", "state", state.String())
	c.closeDone()
}

func (c *Client) closeDone() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *Client) waitDone(ctx context.Context) error {
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stopping reports whether a clean stop is in progress or complete.
func (c *Client) stopping() bool {
	s := c.State()
	return s == StateStopping || s == StateStopped
}

// requireState returns ErrNotRunning unless the state is one of allowed.
func (c *Client) requireState(allowed ...State) error {
	c.mu.RLock()
	state := c.state
	c.mu.RUnlock()
	for _, a := range allowed {
		if state == a {
			return nil
		}
	}
	return fmt.Errorf("%w (state %s)", ErrNotRunning, state)
}

// closedErr explains why the transport is gone.
func (c *Client) closedErr() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.err != nil {
		return c.err
	}
	if c.state == StateStopping || c.state == StateStopped {
		return ErrCancelled
	}
	return ErrNotRunning
}

// =============================================================================
// Tasks
// =============================================================================

// writeLoop is the only writer of the server's stdin. It closes stdin on
// exit so the server sees EOF.
func (c *Client) writeLoop(ctx context.Context) error {
	defer func() {
		if err := c.proc.Stdin().Close(); err != nil {
			c.logger.Debug("close server stdin", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case out := <-c.outbox:
			err := c.codec.WriteMessage(out.msg)
			out.errc <- err
			if err != nil {
				err = fmt.Errorf("write to server: %w", err)
				c.fail(err)
				return err
			}
		}
	}
}

// readLoop decodes frames from the server's stdout and dispatches them.
func (c *Client) readLoop() error {
	defer close(c.readDone)
	for {
		body, err := c.codec.ReadFrame()
		if err != nil {
			if c.stopping() {
				return nil
			}
			if errors.Is(err, ErrFraming) {
				c.fail(err)
				return err
			}
			c.fail(fmt.Errorf("%w: output closed: %v", ErrServerExited, err))
			return nil
		}

		msg, err := DecodeMessage(body)
		if err != nil {
			ferr := &FramingError{Detail: "undecodable message body", Err: err}
			c.fail(ferr)
			return ferr
		}
		c.dispatch(msg)
	}
}

// drainStderr forwards server stderr lines to the logger, throttled.
func (c *Client) drainStderr() error {
	stderr := c.proc.Stderr()
	limiter := rate.NewLimiter(rate.Limit(stderrLinesPerSecond), stderrBurst)
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 4096), maxStderrLine)

	suppressed := 0
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		if !limiter.Allow() {
			suppressed++
			continue
		}
		if suppressed > 0 {
			c.logger.Warn("language server stderr throttled", "suppressed", suppressed)
			suppressed = 0
		}
		c.logger.Warn("language server stderr", "line", line)
	}
	if suppressed > 0 {
		c.logger.Warn("language server stderr throttled", "suppressed", suppressed)
	}

	if errors.Is(scanner.Err(), bufio.ErrTooLong) {
		c.logger.Warn("language server stderr line too long, discarding remainder")
		_, _ = io.Copy(io.Discard, stderr)
	}
	return nil
}

// supervise owns the child process: it observes exit, and on cancellation
// escalates from waiting to terminate to kill.
func (c *Client) supervise(ctx context.Context) error {
	exited := make(chan error, 1)
	go func() {
		err := c.proc.Wait()
		c.awaitReader()
		exited <- err
	}()

	select {
	case err := <-exited:
		c.onExit(err)
		return nil
	case <-ctx.Done():
	}

	grace := time.NewTimer(c.cfg.ShutdownGrace)
	defer grace.Stop()
	select {
	case err := <-exited:
		c.onExit(err)
		return nil
	case <-grace.C:
	}

	c.logger.Warn("language server still running, terminating", "pid", c.proc.Pid())
	if err := c.proc.Terminate(); err != nil {
		c.logger.Debug("terminate failed", "error", err)
	}
	grace.Reset(c.cfg.ShutdownGrace)
	select {
	case err := <-exited:
		c.onExit(err)
		return nil
	case <-grace.C:
	}

	c.logger.Warn("language server ignored terminate, killing", "pid", c.proc.Pid())
	if err := c.proc.Kill(); err != nil {
		c.logger.Debug("kill failed", "error", err)
	}
	c.onExit(<-exited)
	return nil
}

// awaitReader gives the reader up to ShutdownGrace to dispatch whatever
// the server wrote before exiting. A grandchild holding stdout open
// would otherwise delay exit handling forever.
func (c *Client) awaitReader() {
	timer := time.NewTimer(c.cfg.ShutdownGrace)
	defer timer.Stop()
	select {
	case <-c.readDone:
	case <-timer.C:
		c.logger.Warn("language server output still open after exit", "pid", c.proc.Pid())
	}
}

func (c *Client) onExit(err error) {
	if c.stopping() {
		c.logger.Debug("language server exited", "error", err)
		return
	}
	if err == nil {
		err = errors.New("exit status 0")
	}
	c.fail(fmt.Errorf("%w: %v", ErrServerExited, err))
}

// =============================================================================
// Dispatch
// =============================================================================

func (c *Client) dispatch(msg *Message) {
	switch msg.Kind() {
	case KindResponse:
		c.handleResponse(msg)
	case KindNotification:
		c.handleNotification(msg)
	case KindRequest:
		// Replies go through the writer; never block the reader on it.
		go c.replyToServer(msg)
	default:
		c.logger.Warn("dropping invalid message", "method", msg.Method)
	}
}

func (c *Client) handleResponse(msg *Message) {
	id, ok := msg.ID.Number()
	if !ok {
		c.logger.Debug("dropping response with string id", "id", msg.ID.String())
		return
	}
	if !c.pending.resolve(id, callResult{msg: msg}) {
		c.logger.Debug("dropping response for unknown request", "id", id)
	}
}

func (c *Client) handleNotification(msg *Message) {
	switch msg.Method {
	case MethodPublishDiagnostics:
		c.handleDiagnostics(msg.Params)
	case methodLogMessage:
		c.handleLogMessage(msg.Params)
	}

	c.handlersMu.RLock()
	handlers := append([]NotificationHandler(nil), c.handlers[msg.Method]...)
	c.handlersMu.RUnlock()
	for _, h := range handlers {
		h(msg.Method, msg.Params)
	}
}

func (c *Client) handleDiagnostics(params json.RawMessage) {
	uri, diags, dropped, err := parsePublishDiagnostics(params)
	if err != nil {
		c.logger.Warn("invalid publishDiagnostics", "error", err)
		return
	}
	if dropped > 0 {
		c.logger.Debug("dropped malformed diagnostics", "uri", uri, "dropped", dropped)
	}
	c.diags.replace(uri, diags)
	recordDiagnostics(context.Background(), c.cfg.Name, len(diags))
}

func (c *Client) handleLogMessage(params json.RawMessage) {
	var p struct {
		Type    int    `json:"type"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return
	}
	switch p.Type {
	case 1:
		c.logger.Error("language server message", "message", p.Message)
	case 2:
		c.logger.Warn("language server message", "message", p.Message)
	case 3:
		c.logger.Info("language server message", "message", p.Message)
	default:
		c.logger.Debug("language server message", "message", p.Message)
	}
}

// replyToServer answers requests the server sends to the client.
func (c *Client) replyToServer(req *Message) {
	var (
		resp *Message
		err  error
	)
	switch req.Method {
	case methodWorkspaceConfiguration:
		var p struct {
			Items []json.RawMessage `json:"items"`
		}
		_ = json.Unmarshal(req.Params, &p)
		resp, err = NewResultResponse(*req.ID, make([]any, len(p.Items)))
	case methodRegisterCapability, methodUnregisterCapability,
		methodWorkDoneProgressCreate, methodShowMessageRequest:
		resp, err = NewResultResponse(*req.ID, nil)
	default:
		resp = NewErrorResponse(*req.ID, CodeMethodNotFound, "method not found: "+req.Method)
	}
	if err != nil {
		c.logger.Warn("build reply to server request", "method", req.Method, "error", err)
		return
	}

	c.mu.RLock()
	ctx := c.runCtx
	c.mu.RUnlock()
	if err := c.enqueue(ctx, resp); err != nil {
		c.logger.Debug("reply to server request not sent", "method", req.Method, "error", err)
	}
}

// =============================================================================
// Sending
// =============================================================================

// enqueue hands msg to the writer and waits until it is written.
func (c *Client) enqueue(ctx context.Context, msg *Message) error {
	c.mu.RLock()
	runCtx := c.runCtx
	c.mu.RUnlock()

	out := outgoing{msg: msg, errc: make(chan error, 1)}
	select {
	case c.outbox <- out:
	case <-ctx.Done():
		return ctx.Err()
	case <-runCtx.Done():
		return c.closedErr()
	}

	select {
	case err := <-out.errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-runCtx.Done():
		return c.closedErr()
	}
}

// call sends a request and waits for its response.
func (c *Client) call(ctx context.Context, method string, params any, timeout time.Duration, allowed ...State) (json.RawMessage, error) {
	if err := c.requireState(allowed...); err != nil {
		return nil, err
	}

	pc, err := c.pending.register(method)
	if err != nil {
		return nil, err
	}

	ctx, span := startRequestSpan(ctx, c.cfg.Name, method, pc.id)
	result, err := c.await(ctx, pc, params, timeout)
	endRequestSpan(span, err)
	recordRequest(ctx, c.cfg.Name, method, time.Since(pc.started), err)
	return result, err
}

func (c *Client) await(ctx context.Context, pc *pendingCall, params any, timeout time.Duration) (json.RawMessage, error) {
	msg, err := NewRequest(pc.id, pc.method, params)
	if err != nil {
		c.pending.remove(pc.id)
		return nil, fmt.Errorf("%s: %w", pc.method, err)
	}
	if err := c.enqueue(ctx, msg); err != nil {
		c.pending.remove(pc.id)
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-pc.done:
		return responseResult(pc, res)
	case <-timer.C:
		if c.pending.remove(pc.id) {
			c.cancelOnServer(pc.id)
			return nil, &TimeoutError{Method: pc.method, ID: pc.id, Elapsed: time.Since(pc.started)}
		}
		return responseResult(pc, <-pc.done)
	case <-ctx.Done():
		if c.pending.remove(pc.id) {
			c.cancelOnServer(pc.id)
			return nil, ctx.Err()
		}
		return responseResult(pc, <-pc.done)
	}
}

func responseResult(pc *pendingCall, res callResult) (json.RawMessage, error) {
	if res.err != nil {
		return nil, res.err
	}
	if e := res.msg.Error; e != nil {
		var data any
		if len(e.Data) > 0 {
			_ = json.Unmarshal(e.Data, &data)
		}
		return nil, &ProtocolError{
			Method:  pc.method,
			Code:    e.Code,
			Message: e.Message,
			Data:    data,
			Elapsed: time.Since(pc.started),
		}
	}
	return res.msg.Result, nil
}

// cancelOnServer tells the server an abandoned request can be dropped.
// Best effort: skipped if the write queue is full.
func (c *Client) cancelOnServer(id int32) {
	msg, err := NewNotification(methodCancelRequest, map[string]int32{"id": id})
	if err != nil {
		return
	}
	select {
	case c.outbox <- outgoing{msg: msg, errc: make(chan error, 1)}:
	default:
	}
}

// notify sends a notification in one of the allowed states.
func (c *Client) notify(ctx context.Context, method string, params any, allowed ...State) error {
	if err := c.requireState(allowed...); err != nil {
		return err
	}
	msg, err := NewNotification(method, params)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return c.enqueue(ctx, msg)
}
