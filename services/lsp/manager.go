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
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// =============================================================================
// MANAGER CONFIG
// =============================================================================

// ManagerConfig configures the LSP manager.
type ManagerConfig struct {
	// RootPath is the workspace root sent to every server.
	RootPath string

	// Servers maps language id to launch configuration.
	Servers map[string]ServerConfig

	// RequestTimeout and InitTimeout are passed to each client.
	RequestTimeout time.Duration
	InitTimeout    time.Duration

	// MaxDiagnostics caps the diagnostics kept per URI. Zero keeps all.
	MaxDiagnostics int

	ClientName    string
	ClientVersion string
}

// =============================================================================
// MANAGER
// =============================================================================

// Manager owns one Client per language, started on first use.
//
// Description:
//
//	Files are routed to a language by extension: configured server
//	extensions first, then the built-in extension table. Concurrent
//	first requests for a language share a single start. Failed clients
//	are replaced on the next request.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Manager struct {
	cfg    ManagerConfig
	opts   []Option
	logger *slog.Logger

	extensions map[string]string

	mu      sync.RWMutex
	clients map[string]*Client
	closed  bool

	starts singleflight.Group
}

// NewManager creates a manager. No server is started until a file of its
// language is opened or ClientFor is called.
func NewManager(cfg ManagerConfig, opts ...Option) *Manager {
	o := buildOptions(opts)

	extensions := make(map[string]string)
	languages := make([]string, 0, len(cfg.Servers))
	for lang := range cfg.Servers {
		languages = append(languages, lang)
	}
	// Sorted so overlapping extension claims resolve deterministically.
	sort.Strings(languages)
	for _, lang := range languages {
		for _, ext := range cfg.Servers[lang].Extensions {
			ext = normalizeExt(ext)
			if _, taken := extensions[ext]; !taken && ext != "" {
				extensions[ext] = lang
			}
		}
	}

	return &Manager{
		cfg:        cfg,
		opts:       opts,
		logger:     o.logger,
		extensions: extensions,
		clients:    make(map[string]*Client),
	}
}

// DetectLanguage returns the language for path, preferring configured
// server extensions over the built-in table. Empty if unknown.
func (m *Manager) DetectLanguage(path string) string {
	ext := extOf(path)
	if lang, ok := m.extensions[ext]; ok {
		return lang
	}
	return extensionLanguages[ext]
}

// ClientFor returns a running client for language, starting one if needed.
//
// Outputs:
//
//	*Client - A Running client.
//	error - ErrManagerClosed, ErrUnknownLanguage or the start failure.
func (m *Manager) ClientFor(ctx context.Context, language string) (*Client, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, ErrManagerClosed
	}
	client, ok := m.clients[language]
	m.mu.RUnlock()
	if ok && client.IsRunning() {
		return client, nil
	}

	serverCfg, ok := m.cfg.Servers[language]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLanguage, language)
	}

	// The start is shared by concurrent callers, so it must not die with
	// the first caller's context.
	startCtx := context.WithoutCancel(ctx)
	v, err, _ := m.starts.Do(language, func() (any, error) {
		m.mu.RLock()
		existing, ok := m.clients[language]
		closed := m.closed
		m.mu.RUnlock()
		if closed {
			return nil, ErrManagerClosed
		}
		if ok && existing.IsRunning() {
			return existing, nil
		}
		if ok {
			m.logger.Info("replacing language server client", "language", language, "state", existing.State().String())
			_ = existing.Stop(startCtx)
		}

		c := NewClient(m.clientConfig(language, serverCfg), m.opts...)
		if err := c.Start(startCtx, m.cfg.RootPath); err != nil {
			m.mu.Lock()
			if m.clients[language] == existing {
				delete(m.clients, language)
			}
			m.mu.Unlock()
			return nil, err
		}

		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			_ = c.Stop(startCtx)
			return nil, ErrManagerClosed
		}
		m.clients[language] = c
		m.mu.Unlock()
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Client), nil
}

func (m *Manager) clientConfig(language string, server ServerConfig) ClientConfig {
	return ClientConfig{
		Name:           language,
		Server:         server,
		RequestTimeout: m.cfg.RequestTimeout,
		InitTimeout:    m.cfg.InitTimeout,
		MaxDiagnostics: m.cfg.MaxDiagnostics,
		ClientName:     m.cfg.ClientName,
		ClientVersion:  m.cfg.ClientVersion,
	}
}

// existing returns the client for the language of path without starting
// one.
func (m *Manager) existing(path string) (*Client, bool) {
	lang := m.DetectLanguage(path)
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[lang]
	return c, ok
}

// OpenFile opens path on the server for its language.
func (m *Manager) OpenFile(ctx context.Context, path, text string) error {
	lang := m.DetectLanguage(path)
	if lang == "" {
		return fmt.Errorf("%w: %s", ErrUnknownLanguage, path)
	}
	client, err := m.ClientFor(ctx, lang)
	if err != nil {
		return err
	}
	languageID := extensionLanguages[extOf(path)]
	if languageID == "" {
		languageID = lang
	}
	return client.OpenFile(ctx, PathToURI(path), languageID, text)
}

// ChangeFile sends new full text for an open file.
func (m *Manager) ChangeFile(ctx context.Context, path, text string) error {
	client, ok := m.existing(path)
	if !ok {
		return fmt.Errorf("change %s: %w", path, ErrDocumentNotOpen)
	}
	return client.ChangeFile(ctx, PathToURI(path), text)
}

// CloseFile closes path. Closing a file that is not open does nothing.
func (m *Manager) CloseFile(ctx context.Context, path string) error {
	client, ok := m.existing(path)
	if !ok {
		return nil
	}
	return client.CloseFile(ctx, PathToURI(path))
}

// Diagnostics returns the latest diagnostics for path.
func (m *Manager) Diagnostics(path string) []Diagnostic {
	client, ok := m.existing(path)
	if !ok {
		return nil
	}
	return client.Diagnostics(PathToURI(path))
}

// AllDiagnostics merges the diagnostics of every client by URI.
func (m *Manager) AllDiagnostics() map[string][]Diagnostic {
	out := make(map[string][]Diagnostic)
	for _, c := range m.snapshot() {
		for uri, diags := range c.AllDiagnostics() {
			out[uri] = append(out[uri], diags...)
		}
	}
	return out
}

// Running returns the languages with a running client, sorted.
func (m *Manager) Running() []string {
	var langs []string
	for _, c := range m.snapshot() {
		if c.IsRunning() {
			langs = append(langs, c.Name())
		}
	}
	sort.Strings(langs)
	return langs
}

func (m *Manager) snapshot() []*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	clients := make([]*Client, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	return clients
}

// ShutdownAll stops every client and closes the manager. Safe to call
// more than once.
func (m *Manager) ShutdownAll(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	clients := m.clients
	m.clients = make(map[string]*Client)
	m.mu.Unlock()

	return stopClients(ctx, clients)
}

// RestartAll stops every client and starts a fresh one per language,
// reopening the documents that were open.
func (m *Manager) RestartAll(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	clients := m.clients
	m.clients = make(map[string]*Client)
	m.mu.Unlock()

	reopen := make(map[string][]Document, len(clients))
	for lang, c := range clients {
		reopen[lang] = c.OpenDocuments()
	}
	if err := stopClients(ctx, clients); err != nil {
		return err
	}

	var errs []error
	for lang, docs := range reopen {
		c, err := m.ClientFor(ctx, lang)
		if err != nil {
			errs = append(errs, fmt.Errorf("restart %s: %w", lang, err))
			continue
		}
		for _, d := range docs {
			if err := c.OpenFile(ctx, d.URI, d.LanguageID, d.Text); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func stopClients(ctx context.Context, clients map[string]*Client) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range clients {
		g.Go(func() error { return c.Stop(gctx) })
	}
	return g.Wait()
}

// =============================================================================
// URIs
// =============================================================================

// PathToURI converts a filesystem path to a file:// URI. Relative paths
// are made absolute first.
func PathToURI(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	slashed := filepath.ToSlash(abs)
	if !strings.HasPrefix(slashed, "/") {
		slashed = "/" + slashed
	}
	return (&url.URL{Scheme: "file", Path: slashed}).String()
}

// URIToPath converts a file:// URI back to a filesystem path.
func URIToPath(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("parse uri %q: %w", uri, err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("uri %q: unsupported scheme %q", uri, u.Scheme)
	}
	p := u.Path
	if runtime.GOOS == "windows" && len(p) >= 3 && p[0] == '/' && p[2] == ':' {
		p = p[1:]
	}
	return filepath.FromSlash(p), nil
}
