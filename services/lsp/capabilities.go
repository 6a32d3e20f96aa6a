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
)

// SyncKind is how the server wants document changes delivered.
type SyncKind int

const (
	SyncNone        SyncKind = 0
	SyncFull        SyncKind = 1
	SyncIncremental SyncKind = 2
)

// Capabilities is the immutable capability record captured from the
// initialize response.
type Capabilities struct {
	Sync          SyncKind
	OpenClose     bool
	Hover         bool
	Completion    bool
	Definition    bool
	References    bool
	ServerName    string
	ServerVersion string
}

// Supports reports whether an optional request method was advertised.
// Methods outside the optional set are always reported as supported.
func (c Capabilities) Supports(method string) bool {
	switch method {
	case MethodHover:
		return c.Hover
	case MethodCompletion:
		return c.Completion
	case MethodDefinition:
		return c.Definition
	case MethodReferences:
		return c.References
	default:
		return true
	}
}

// capabilitiesFromResult reduces the raw server capability object to the
// boolean record the client consults.
func capabilitiesFromResult(res InitializeResult) Capabilities {
	caps := Capabilities{
		Hover:      providerEnabled(res.Capabilities.HoverProvider),
		Completion: providerEnabled(res.Capabilities.CompletionProvider),
		Definition: providerEnabled(res.Capabilities.DefinitionProvider),
		References: providerEnabled(res.Capabilities.ReferencesProvider),
	}
	if res.ServerInfo != nil {
		caps.ServerName = res.ServerInfo.Name
		caps.ServerVersion = res.ServerInfo.Version
	}
	caps.Sync, caps.OpenClose = parseSync(res.Capabilities.TextDocumentSync)
	return caps
}

// providerEnabled treats absent, null and false as unsupported; true or an
// options object means supported.
func providerEnabled(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return false
	}
	switch string(trimmed) {
	case "false", "null":
		return false
	}
	return true
}

// parseSync accepts either the numeric kind or the options object form.
func parseSync(raw json.RawMessage) (SyncKind, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return SyncNone, false
	}

	var kind int
	if err := json.Unmarshal(trimmed, &kind); err == nil {
		return SyncKind(kind), kind != int(SyncNone)
	}

	var opts struct {
		OpenClose bool `json:"openClose"`
		Change    int  `json:"change"`
	}
	if err := json.Unmarshal(trimmed, &opts); err != nil {
		return SyncNone, false
	}
	return SyncKind(opts.Change), opts.OpenClose
}
