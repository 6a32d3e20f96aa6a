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
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
)

// Severity is the diagnostic severity.
type Severity int

const (
	SeverityError Severity = iota + 1
	SeverityWarning
	SeverityInfo
	SeverityHint
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	case SeverityHint:
		return "hint"
	default:
		return "unknown"
	}
}

// severityFromWire maps the numeric LSP severity. Missing and out-of-range
// values become hints.
func severityFromWire(v *int) Severity {
	if v == nil {
		return SeverityHint
	}
	switch *v {
	case 1:
		return SeverityError
	case 2:
		return SeverityWarning
	case 3:
		return SeverityInfo
	default:
		return SeverityHint
	}
}

// Diagnostic is a parsed server diagnostic.
type Diagnostic struct {
	Message  string
	Severity Severity
	Start    Position
	End      *Position
	Source   string
	Code     string
}

func (d Diagnostic) String() string {
	loc := fmt.Sprintf("%d:%d", d.Start.Line+1, d.Start.Character+1)
	if d.Source != "" {
		return fmt.Sprintf("%s %s [%s] %s", loc, d.Severity, d.Source, d.Message)
	}
	return fmt.Sprintf("%s %s %s", loc, d.Severity, d.Message)
}

// parseDiagnostic converts one wire diagnostic. It returns false when the
// required members (range.start.line, range.start.character, message) are
// missing; such entries are dropped.
func parseDiagnostic(raw json.RawMessage) (Diagnostic, bool) {
	var w wireDiagnostic
	if err := json.Unmarshal(raw, &w); err != nil {
		return Diagnostic{}, false
	}
	if w.Message == nil || w.Range == nil || w.Range.Start == nil ||
		w.Range.Start.Line == nil || w.Range.Start.Character == nil {
		return Diagnostic{}, false
	}

	d := Diagnostic{
		Message:  *w.Message,
		Severity: severityFromWire(w.Severity),
		Start:    Position{Line: *w.Range.Start.Line, Character: *w.Range.Start.Character},
		Code:     parseCode(w.Code),
	}
	if end := w.Range.End; end != nil && end.Line != nil && end.Character != nil {
		d.End = &Position{Line: *end.Line, Character: *end.Character}
	}
	if w.Source != nil {
		d.Source = *w.Source
	}
	return d, true
}

// parseCode accepts string and integer codes.
func parseCode(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return s
	}
	var n int64
	if err := json.Unmarshal(trimmed, &n); err == nil {
		return strconv.FormatInt(n, 10)
	}
	return ""
}

// parsePublishDiagnostics decodes publishDiagnostics params, preserving the
// server's order. dropped counts entries that failed validation.
func parsePublishDiagnostics(params json.RawMessage) (uri string, diags []Diagnostic, dropped int, err error) {
	var p publishDiagnosticsParams
	if err := json.Unmarshal(params, &p); err != nil {
		return "", nil, 0, fmt.Errorf("decode publishDiagnostics: %w", err)
	}
	if p.URI == "" {
		return "", nil, 0, fmt.Errorf("decode publishDiagnostics: missing uri")
	}
	diags = make([]Diagnostic, 0, len(p.Diagnostics))
	for _, raw := range p.Diagnostics {
		d, ok := parseDiagnostic(raw)
		if !ok {
			dropped++
			continue
		}
		diags = append(diags, d)
	}
	return p.URI, diags, dropped, nil
}

// =============================================================================
// Store
// =============================================================================

// diagnosticStore holds the latest publication per URI. A publication
// replaces the previous set wholesale.
type diagnosticStore struct {
	mu   sync.RWMutex
	sets map[string][]Diagnostic
	max  int
}

func newDiagnosticStore(max int) *diagnosticStore {
	return &diagnosticStore{sets: make(map[string][]Diagnostic), max: max}
}

// replace installs diags for uri. An empty publication clears the entry.
func (s *diagnosticStore) replace(uri string, diags []Diagnostic) {
	if s.max > 0 && len(diags) > s.max {
		diags = diags[:s.max]
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(diags) == 0 {
		delete(s.sets, uri)
		return
	}
	s.sets[uri] = diags
}

// get returns a copy of the set for uri. Never nil.
func (s *diagnosticStore) get(uri string) []Diagnostic {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Diagnostic, len(s.sets[uri]))
	copy(out, s.sets[uri])
	return out
}

// all returns a copy of every set.
func (s *diagnosticStore) all() map[string][]Diagnostic {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]Diagnostic, len(s.sets))
	for uri, set := range s.sets {
		cp := make([]Diagnostic, len(set))
		copy(cp, set)
		out[uri] = cp
	}
	return out
}

func (s *diagnosticStore) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets = make(map[string][]Diagnostic)
}

// SortedURIs returns the keys of a diagnostics map in lexical order.
func SortedURIs(all map[string][]Diagnostic) []string {
	uris := make([]string, 0, len(all))
	for uri := range all {
		uris = append(uris, uri)
	}
	sort.Strings(uris)
	return uris
}
