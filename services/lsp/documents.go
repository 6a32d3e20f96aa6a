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
	"sort"
	"sync"
)

// Document is a file the client has opened on the server.
type Document struct {
	URI        string
	LanguageID string
	Version    int
	Text       string
}

// documentStore tracks open documents. The client's copy of the text is
// authoritative until the document is closed.
type documentStore struct {
	mu   sync.RWMutex
	docs map[string]*Document
}

func newDocumentStore() *documentStore {
	return &documentStore{docs: make(map[string]*Document)}
}

// open inserts the document at version 1. Reopening an open URI resets it.
func (s *documentStore) open(uri, languageID, text string) Document {
	doc := &Document{URI: uri, LanguageID: languageID, Version: 1, Text: text}
	s.mu.Lock()
	s.docs[uri] = doc
	s.mu.Unlock()
	return *doc
}

// change replaces the text and bumps the version.
func (s *documentStore) change(uri, text string) (Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[uri]
	if !ok {
		return Document{}, false
	}
	doc.Version++
	doc.Text = text
	return *doc, true
}

// close removes the document and reports whether it was open.
func (s *documentStore) close(uri string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[uri]; !ok {
		return false
	}
	delete(s.docs, uri)
	return true
}

func (s *documentStore) get(uri string) (Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[uri]
	if !ok {
		return Document{}, false
	}
	return *doc, true
}

// list returns open documents ordered by URI.
func (s *documentStore) list() []Document {
	s.mu.RLock()
	out := make([]Document, 0, len(s.docs))
	for _, doc := range s.docs {
		out = append(out, *doc)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].URI < out[j].URI })
	return out
}

func (s *documentStore) clear() {
	s.mu.Lock()
	s.docs = make(map[string]*Document)
	s.mu.Unlock()
}
