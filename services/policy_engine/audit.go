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
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// AuditSource says which stage of a session resolved a request.
type AuditSource string

const (
	// SourceEngine: the engine allowed or denied outright.
	SourceEngine AuditSource = "engine"
	// SourceGrant: an earlier session approval was reused.
	SourceGrant AuditSource = "grant"
	// SourceUser: the prompt handler answered.
	SourceUser AuditSource = "user"
	// SourceNoHandler: a prompt was denied because nobody could be asked.
	SourceNoHandler AuditSource = "no_handler"
)

// AuditEvent records one resolved permission request.
//
// # Description
//
// Written by Session.Request after every resolution, including denials
// caused by a failing prompt handler. Target is the grant target: the
// path, else the command, else "*".
type AuditEvent struct {
	Timestamp time.Time    `json:"timestamp"`
	SessionID string       `json:"session_id"`
	Tool      string       `json:"tool"`
	Operation string       `json:"operation"`
	Target    string       `json:"target"`
	Risk      RiskLevel    `json:"risk"`
	Decision  DecisionKind `json:"decision"`
	Rule      Rule         `json:"rule"`
	Reason    string       `json:"reason,omitempty"`
	Source    AuditSource  `json:"source"`
}

// AuditFilter selects events in Query. Zero fields match everything.
type AuditFilter struct {
	SessionID string
	Tool      string
	// Decision restricts results to one kind when non-nil.
	Decision *DecisionKind
	// Since is inclusive.
	Since time.Time
	// Limit caps the result to the newest events. Zero means no cap.
	Limit int
}

func (f AuditFilter) match(ev AuditEvent) bool {
	switch {
	case f.SessionID != "" && ev.SessionID != f.SessionID:
		return false
	case f.Tool != "" && ev.Tool != f.Tool:
		return false
	case f.Decision != nil && ev.Decision != *f.Decision:
		return false
	case !f.Since.IsZero() && ev.Timestamp.Before(f.Since):
		return false
	}
	return true
}

// AuditLogger persists permission decisions.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; sessions log from
// whichever goroutine calls Request.
type AuditLogger interface {
	// Log records ev. A failure is reported but never changes the decision.
	Log(ctx context.Context, ev AuditEvent) error

	// Query returns matching events, oldest first.
	Query(ctx context.Context, filter AuditFilter) ([]AuditEvent, error)

	// Flush persists anything buffered.
	Flush(ctx context.Context) error
}

// =============================================================================
// Implementations
// =============================================================================

// NopAuditLogger discards every event.
type NopAuditLogger struct{}

func (NopAuditLogger) Log(context.Context, AuditEvent) error { return nil }

func (NopAuditLogger) Query(context.Context, AuditFilter) ([]AuditEvent, error) {
	return []AuditEvent{}, nil
}

func (NopAuditLogger) Flush(context.Context) error { return nil }

// MemoryAuditLogger keeps the most recent events in memory.
type MemoryAuditLogger struct {
	mu     sync.Mutex
	events []AuditEvent
	max    int
}

// NewMemoryAuditLogger keeps at most max events; max <= 0 keeps all.
func NewMemoryAuditLogger(max int) *MemoryAuditLogger {
	return &MemoryAuditLogger{max: max}
}

// Log appends ev, evicting the oldest event when full.
func (l *MemoryAuditLogger) Log(_ context.Context, ev AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	if l.max > 0 && len(l.events) > l.max {
		l.events = append([]AuditEvent(nil), l.events[len(l.events)-l.max:]...)
	}
	return nil
}

// Query filters the retained events.
func (l *MemoryAuditLogger) Query(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AuditEvent, 0, len(l.events))
	for _, ev := range l.events {
		if filter.match(ev) {
			out = append(out, ev)
		}
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[len(out)-filter.Limit:]
	}
	return out, nil
}

func (l *MemoryAuditLogger) Flush(context.Context) error { return nil }

// JSONLAuditLogger writes one JSON object per line. It cannot be queried.
type JSONLAuditLogger struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONLAuditLogger writes events to w.
func NewJSONLAuditLogger(w io.Writer) *JSONLAuditLogger {
	return &JSONLAuditLogger{enc: json.NewEncoder(w)}
}

func (l *JSONLAuditLogger) Log(_ context.Context, ev AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enc.Encode(ev); err != nil {
		return fmt.Errorf("write audit event: %w", err)
	}
	return nil
}

// Query always fails; read the file instead.
func (l *JSONLAuditLogger) Query(context.Context, AuditFilter) ([]AuditEvent, error) {
	return nil, fmt.Errorf("jsonl audit log does not support queries")
}

func (l *JSONLAuditLogger) Flush(context.Context) error { return nil }

var (
	_ AuditLogger = NopAuditLogger{}
	_ AuditLogger = (*MemoryAuditLogger)(nil)
	_ AuditLogger = (*JSONLAuditLogger)(nil)
)
