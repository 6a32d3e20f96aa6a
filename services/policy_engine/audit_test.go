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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_AuditsEveryResolution(t *testing.T) {
	audit := NewMemoryAuditLogger(0)
	h := &scriptedPrompt{resp: PromptResponse{Allow: true, Remember: true}}
	s := NewSession(newTestEngine(t, DefaultConfig()),
		WithSessionLogger(quietLogger()),
		WithPromptHandler(h),
		WithAuditLogger(audit))
	ctx := context.Background()
	build := NewContext("bash", "run").WithCommand("make")

	_, err := s.Request(ctx, NewContext("file", "read").WithPath("/tmp/a"))
	require.NoError(t, err)
	_, err = s.Request(ctx, build)
	require.NoError(t, err)
	_, err = s.Request(ctx, build)
	require.NoError(t, err)

	events, err := audit.Query(ctx, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, events, 3)

	sources := []AuditSource{events[0].Source, events[1].Source, events[2].Source}
	assert.Equal(t, []AuditSource{SourceEngine, SourceUser, SourceGrant}, sources)
	for _, ev := range events {
		assert.Equal(t, s.ID(), ev.SessionID)
		assert.Equal(t, Allow, ev.Decision)
		assert.False(t, ev.Timestamp.IsZero())
	}
	assert.Equal(t, "/tmp/a", events[0].Target)
	assert.Equal(t, "make", events[1].Target)
	assert.Equal(t, RiskExecute, events[1].Risk)
}

func TestSession_AuditsHandlerFailure(t *testing.T) {
	audit := NewMemoryAuditLogger(0)
	h := &scriptedPrompt{err: errors.New("tty closed")}
	s := NewSession(newTestEngine(t, DefaultConfig()),
		WithSessionLogger(quietLogger()),
		WithPromptHandler(h),
		WithAuditLogger(audit))

	_, err := s.Request(context.Background(), NewContext("edit", "write").WithPath("/src/x.go"))
	require.Error(t, err)

	deny := Deny
	events, err := audit.Query(context.Background(), AuditFilter{Decision: &deny})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, SourceUser, events[0].Source)
	assert.Equal(t, RuleUserDecision, events[0].Rule)
}

func TestMemoryAuditLogger_FilterAndEviction(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryAuditLogger(3)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, tool := range []string{"bash", "edit", "bash", "file", "bash"} {
		require.NoError(t, l.Log(ctx, AuditEvent{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Tool:      tool,
			Decision:  Allow,
		}))
	}

	all, err := l.Query(ctx, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, base.Add(2*time.Minute), all[0].Timestamp)

	bash, err := l.Query(ctx, AuditFilter{Tool: "bash"})
	require.NoError(t, err)
	assert.Len(t, bash, 2)

	recent, err := l.Query(ctx, AuditFilter{Since: base.Add(3 * time.Minute)})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	last, err := l.Query(ctx, AuditFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, "bash", last[0].Tool)
	assert.Equal(t, base.Add(4*time.Minute), last[0].Timestamp)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = l.Query(cancelled, AuditFilter{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestJSONLAuditLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSONLAuditLogger(&buf)
	ctx := context.Background()
	require.NoError(t, l.Log(ctx, AuditEvent{Tool: "bash", Decision: Deny, Rule: RuleCriticalCommand, Source: SourceEngine}))
	require.NoError(t, l.Log(ctx, AuditEvent{Tool: "edit", Decision: Allow, Rule: RuleUserDecision, Source: SourceUser}))
	require.NoError(t, l.Flush(ctx))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "deny", first["decision"])
	assert.Equal(t, "critical_command", first["rule"])
	assert.Equal(t, "engine", first["source"])

	var second AuditEvent
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, Allow, second.Decision)

	_, err := l.Query(ctx, AuditFilter{})
	assert.Error(t, err)
}

func TestNopAuditLogger(t *testing.T) {
	var l NopAuditLogger
	require.NoError(t, l.Log(context.Background(), AuditEvent{Tool: "bash"}))
	events, err := l.Query(context.Background(), AuditFilter{})
	require.NoError(t, err)
	assert.Empty(t, events)
}
