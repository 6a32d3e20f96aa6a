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
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// Raw Messaging
// =============================================================================

// SendRequest sends a request and waits up to RequestTimeout for the
// response.
//
// Outputs:
//
//	json.RawMessage - The result member, possibly "null".
//	error - ErrNotRunning, *TimeoutError, *ProtocolError, ctx.Err(), or the
//	        failure cause if the server goes away while waiting.
func (c *Client) SendRequest(ctx context.Context, method string, params any) (json.RawMessage, error) {
	return c.call(ctx, method, params, c.cfg.RequestTimeout, StateRunning)
}

// SendRequestWithTimeout is SendRequest with an explicit timeout.
func (c *Client) SendRequestWithTimeout(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = c.cfg.RequestTimeout
	}
	return c.call(ctx, method, params, timeout, StateRunning)
}

// Notify sends a notification. It returns once the message is written.
func (c *Client) Notify(ctx context.Context, method string, params any) error {
	return c.notify(ctx, method, params, StateRunning)
}

// OnNotification registers h for server notifications named method.
// Built-in handling (diagnostics, log messages) runs first.
func (c *Client) OnNotification(method string, h NotificationHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers[method] = append(c.handlers[method], h)
}

// =============================================================================
// Documents
// =============================================================================

// OpenFile sends didOpen with version 1 and records the document.
// Opening an already open URI sends its text as a change instead.
func (c *Client) OpenFile(ctx context.Context, uri, languageID, text string) error {
	if languageID == "" {
		languageID = c.cfg.Name
	}

	c.docOps.Lock()
	defer c.docOps.Unlock()

	if _, ok := c.docs.get(uri); ok {
		return c.changeLocked(ctx, uri, text)
	}

	err := c.Notify(ctx, MethodDidOpen, DidOpenTextDocumentParams{
		TextDocument: TextDocumentItem{URI: uri, LanguageID: languageID, Version: 1, Text: text},
	})
	if err != nil {
		return fmt.Errorf("open %s: %w", uri, err)
	}
	c.docs.open(uri, languageID, text)
	return nil
}

// ChangeFile sends the full new text with the next version.
//
// Outputs:
//
//	error - ErrDocumentNotOpen if uri was never opened.
func (c *Client) ChangeFile(ctx context.Context, uri, text string) error {
	c.docOps.Lock()
	defer c.docOps.Unlock()
	return c.changeLocked(ctx, uri, text)
}

func (c *Client) changeLocked(ctx context.Context, uri, text string) error {
	doc, ok := c.docs.get(uri)
	if !ok {
		return fmt.Errorf("change %s: %w", uri, ErrDocumentNotOpen)
	}

	err := c.Notify(ctx, MethodDidChange, DidChangeTextDocumentParams{
		TextDocument:   VersionedTextDocumentIdentifier{URI: uri, Version: doc.Version + 1},
		ContentChanges: []TextDocumentContentChangeEvent{{Text: text}},
	})
	if err != nil {
		return fmt.Errorf("change %s: %w", uri, err)
	}
	c.docs.change(uri, text)
	return nil
}

// CloseFile forgets the document and sends didClose. Closing a URI that
// is not open does nothing.
func (c *Client) CloseFile(ctx context.Context, uri string) error {
	c.docOps.Lock()
	defer c.docOps.Unlock()

	if !c.docs.close(uri) {
		return nil
	}
	err := c.Notify(ctx, MethodDidClose, DidCloseTextDocumentParams{
		TextDocument: TextDocumentIdentifier{URI: uri},
	})
	if err != nil {
		return fmt.Errorf("close %s: %w", uri, err)
	}
	return nil
}

// IsOpen reports whether uri is open on this client.
func (c *Client) IsOpen(uri string) bool {
	_, ok := c.docs.get(uri)
	return ok
}

// OpenDocuments returns the open documents ordered by URI.
func (c *Client) OpenDocuments() []Document {
	return c.docs.list()
}

// Diagnostics returns the latest diagnostics published for uri, in server
// order. Empty if none were published.
func (c *Client) Diagnostics(uri string) []Diagnostic {
	return c.diags.get(uri)
}

// AllDiagnostics returns a copy of every non-empty diagnostic set.
func (c *Client) AllDiagnostics() map[string][]Diagnostic {
	return c.diags.all()
}

// =============================================================================
// Optional Capabilities
// =============================================================================

// optionalRequest refuses methods the server did not advertise without
// writing anything.
func (c *Client) optionalRequest(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if err := c.requireState(StateRunning); err != nil {
		return nil, err
	}
	if !c.Capabilities().Supports(method) {
		return nil, &UnsupportedError{Method: method}
	}
	return c.SendRequest(ctx, method, params)
}

// Hover returns hover information at pos, or nil if the server has none.
func (c *Client) Hover(ctx context.Context, uri string, pos Position) (*Hover, error) {
	raw, err := c.optionalRequest(ctx, MethodHover, TextDocumentPositionParams{
		TextDocument: TextDocumentIdentifier{URI: uri},
		Position:     pos,
	})
	if err != nil || isNull(raw) {
		return nil, err
	}
	return parseHover(raw)
}

// Completion returns completion candidates at pos.
func (c *Client) Completion(ctx context.Context, uri string, pos Position) (*CompletionList, error) {
	raw, err := c.optionalRequest(ctx, MethodCompletion, TextDocumentPositionParams{
		TextDocument: TextDocumentIdentifier{URI: uri},
		Position:     pos,
	})
	if err != nil {
		return nil, err
	}
	if isNull(raw) {
		return &CompletionList{}, nil
	}
	return parseCompletion(raw)
}

// Definition returns the definition locations of the symbol at pos.
func (c *Client) Definition(ctx context.Context, uri string, pos Position) ([]Location, error) {
	raw, err := c.optionalRequest(ctx, MethodDefinition, TextDocumentPositionParams{
		TextDocument: TextDocumentIdentifier{URI: uri},
		Position:     pos,
	})
	if err != nil || isNull(raw) {
		return nil, err
	}
	return parseLocations(raw)
}

// References returns the references to the symbol at pos.
func (c *Client) References(ctx context.Context, uri string, pos Position, includeDeclaration bool) ([]Location, error) {
	raw, err := c.optionalRequest(ctx, MethodReferences, ReferenceParams{
		TextDocumentPositionParams: TextDocumentPositionParams{
			TextDocument: TextDocumentIdentifier{URI: uri},
			Position:     pos,
		},
		Context: ReferenceContext{IncludeDeclaration: includeDeclaration},
	})
	if err != nil || isNull(raw) {
		return nil, err
	}
	return parseLocations(raw)
}

// =============================================================================
// Result Parsing
// =============================================================================

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

// parseHover normalises the three hover content shapes (MarkupContent,
// MarkedString and MarkedString arrays) into MarkupContent.
func parseHover(raw json.RawMessage) (*Hover, error) {
	var wire struct {
		Contents json.RawMessage `json:"contents"`
		Range    *Range          `json:"range"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("decode hover: %w", err)
	}
	contents, err := normalizeHoverContents(wire.Contents)
	if err != nil {
		return nil, err
	}
	return &Hover{Contents: contents, Range: wire.Range}, nil
}

func normalizeHoverContents(raw json.RawMessage) (MarkupContent, error) {
	if isNull(raw) {
		return MarkupContent{Kind: "plaintext"}, nil
	}

	if isArray(raw) {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return MarkupContent{}, fmt.Errorf("decode hover contents: %w", err)
		}
		parts := make([]string, 0, len(items))
		for _, item := range items {
			mc, err := normalizeHoverContents(item)
			if err != nil {
				return MarkupContent{}, err
			}
			if mc.Value != "" {
				parts = append(parts, mc.Value)
			}
		}
		return MarkupContent{Kind: "markdown", Value: strings.Join(parts, "\n\n")}, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return MarkupContent{Kind: "markdown", Value: s}, nil
	}

	var obj struct {
		Kind     string `json:"kind"`
		Language string `json:"language"`
		Value    string `json:"value"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return MarkupContent{}, fmt.Errorf("decode hover contents: %w", err)
	}
	if obj.Kind != "" {
		return MarkupContent{Kind: obj.Kind, Value: obj.Value}, nil
	}
	return MarkupContent{
		Kind:  "markdown",
		Value: fmt.Sprintf("```%s\n%s\n```", obj.Language, obj.Value),
	}, nil
}

// parseCompletion accepts either a CompletionList or a bare item array.
func parseCompletion(raw json.RawMessage) (*CompletionList, error) {
	if isArray(raw) {
		var items []CompletionItem
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("decode completion items: %w", err)
		}
		return &CompletionList{Items: items}, nil
	}
	var list CompletionList
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode completion list: %w", err)
	}
	return &list, nil
}

// parseLocations accepts Location, Location[] or LocationLink[].
func parseLocations(raw json.RawMessage) ([]Location, error) {
	if !isArray(raw) {
		var loc Location
		if err := json.Unmarshal(raw, &loc); err != nil {
			return nil, fmt.Errorf("decode location: %w", err)
		}
		return []Location{loc}, nil
	}

	var items []struct {
		URI                  string `json:"uri"`
		Range                Range  `json:"range"`
		TargetURI            string `json:"targetUri"`
		TargetRange          Range  `json:"targetRange"`
		TargetSelectionRange *Range `json:"targetSelectionRange"`
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode locations: %w", err)
	}

	locs := make([]Location, 0, len(items))
	for _, it := range items {
		if it.TargetURI == "" {
			locs = append(locs, Location{URI: it.URI, Range: it.Range})
			continue
		}
		r := it.TargetRange
		if it.TargetSelectionRange != nil {
			r = *it.TargetSelectionRange
		}
		locs = append(locs, Location{URI: it.TargetURI, Range: r})
	}
	return locs, nil
}
