// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package policy_engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PromptResponse is the user's answer to a Prompt decision.
type PromptResponse struct {
	Allow bool
	// Remember keeps the approval for the rest of the session.
	Remember bool
}

// PromptHandler asks the user to confirm an operation.
type PromptHandler interface {
	Confirm(ctx context.Context, pctx Context, reason string) (PromptResponse, error)
}

// PromptFunc adapts a function to PromptHandler.
type PromptFunc func(ctx context.Context, pctx Context, reason string) (PromptResponse, error)

// Confirm calls f.
func (f PromptFunc) Confirm(ctx context.Context, pctx Context, reason string) (PromptResponse, error) {
	return f(ctx, pctx, reason)
}

// Session layers user approvals on top of an Engine.
//
// Description:
//
//	Prompt decisions are resolved in order: a matching session grant, then
//	the prompt handler. Without a handler a Prompt becomes Deny. Allow and
//	Deny decisions from the engine are returned unchanged, so a grant can
//	never override a denial.
//
//	Grants are keyed "tool:operation:target", where target is the path,
//	else the command, else "*". A remembered grant lasts until revoked;
//	a one-shot grant is consumed by the next matching request.
//
// Thread Safety:
//
//	Safe for concurrent use. The handler is called without holding locks.
type Session struct {
	id      string
	engine  *Engine
	handler PromptHandler
	logger  *slog.Logger
	audit   AuditLogger

	mu     sync.Mutex
	grants map[string]bool // key -> remembered
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithPromptHandler sets the handler used for Prompt decisions.
func WithPromptHandler(h PromptHandler) SessionOption {
	return func(s *Session) { s.handler = h }
}

// WithSessionLogger sets the session logger.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAuditLogger records every resolved request on a.
func WithAuditLogger(a AuditLogger) SessionOption {
	return func(s *Session) {
		if a != nil {
			s.audit = a
		}
	}
}

// NewSession starts a session with a fresh id.
func NewSession(engine *Engine, opts ...SessionOption) *Session {
	s := &Session{
		id:     uuid.NewString(),
		engine: engine,
		logger: slog.Default(),
		audit:  NopAuditLogger{},
		grants: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("session", s.id)
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// GrantKey returns the key under which a grant for pctx is stored.
func GrantKey(pctx Context) string {
	return fmt.Sprintf("%s:%s:%s", pctx.Tool, pctx.Operation, pctx.target())
}

// Grant records approval for operations matching pctx.
func (s *Session) Grant(pctx Context, remember bool) {
	key := GrantKey(pctx)
	s.mu.Lock()
	if !s.grants[key] {
		s.grants[key] = remember
	}
	s.mu.Unlock()
	s.logger.Debug("permission granted", "key", key, "remember", remember)
}

// Revoke removes the grant for pctx, if any.
func (s *Session) Revoke(pctx Context) {
	s.mu.Lock()
	delete(s.grants, GrantKey(pctx))
	s.mu.Unlock()
}

// ClearGrants removes every grant.
func (s *Session) ClearGrants() {
	s.mu.Lock()
	s.grants = make(map[string]bool)
	s.mu.Unlock()
}

// Grants returns the current grant keys in lexical order.
func (s *Session) Grants() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.grants))
	for k := range s.grants {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// takeGrant reports whether a grant exists, consuming it if one-shot.
func (s *Session) takeGrant(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	remembered, ok := s.grants[key]
	if !ok {
		return false
	}
	if !remembered {
		delete(s.grants, key)
	}
	return true
}

// Request resolves pctx to Allow or Deny.
//
// Inputs:
//
//	ctx - Passed to the prompt handler.
//	pctx - The operation.
//
// Outputs:
//
//	Decision - Never Prompt.
//	error - The handler's error, if it failed. The decision is Deny then.
func (s *Session) Request(ctx context.Context, pctx Context) (Decision, error) {
	d, source, err := s.resolve(ctx, pctx)
	s.record(ctx, pctx, d, source)
	return d, err
}

func (s *Session) resolve(ctx context.Context, pctx Context) (Decision, AuditSource, error) {
	d := s.engine.Check(pctx)
	if d.Kind != Prompt {
		return d, SourceEngine, nil
	}

	key := GrantKey(pctx)
	if s.takeGrant(key) {
		return allow(RuleSessionGrant, "Previously approved in this session"), SourceGrant, nil
	}

	if s.handler == nil {
		return deny(d.Rule, "No prompt handler available: "+d.Reason), SourceNoHandler, nil
	}

	resp, err := s.handler.Confirm(ctx, pctx, d.Reason)
	if err != nil {
		s.logger.Warn("permission prompt failed", "key", key, "error", err)
		return deny(RuleUserDecision, "Prompt failed: "+err.Error()), SourceUser, fmt.Errorf("prompt for %s: %w", key, err)
	}
	if !resp.Allow {
		return deny(RuleUserDecision, "Denied by user"), SourceUser, nil
	}
	if resp.Remember {
		s.Grant(pctx, true)
	}
	return allow(RuleUserDecision, "Approved by user"), SourceUser, nil
}

func (s *Session) record(ctx context.Context, pctx Context, d Decision, source AuditSource) {
	ev := AuditEvent{
		Timestamp: time.Now().UTC(),
		SessionID: s.id,
		Tool:      pctx.Tool,
		Operation: pctx.Operation,
		Target:    pctx.target(),
		Risk:      pctx.RiskLevel(),
		Decision:  d.Kind,
		Rule:      d.Rule,
		Reason:    d.Reason,
		Source:    source,
	}
	s.logger.DebugContext(ctx, "permission resolved",
		"tool", pctx.Tool, "decision", d.Kind.String(), "rule", string(d.Rule), "source", string(source))
	if err := s.audit.Log(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "audit log failed", "tool", pctx.Tool, "error", err)
	}
}

// Enforce is Request with the decision converted to an error.
func (s *Session) Enforce(ctx context.Context, pctx Context) error {
	d, err := s.Request(ctx, pctx)
	if err != nil {
		return err
	}
	if d.Kind == Deny {
		return &PermissionDeniedError{Tool: pctx.Tool, Rule: d.Rule, Reason: d.Reason}
	}
	return nil
}
