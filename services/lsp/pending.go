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
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var errIDSpaceExhausted = errors.New("lsp request id space exhausted")

// callResult is delivered exactly once to a pending call.
type callResult struct {
	msg *Message
	err error
}

// pendingCall is a single-shot completion slot.
type pendingCall struct {
	id      int32
	method  string
	started time.Time
	done    chan callResult
}

// pendingTable correlates responses with outstanding requests.
//
// Removal and fulfilment happen under one lock acquisition, so a slot is
// completed at most once whether by response, timeout or shutdown.
type pendingTable struct {
	nextID atomic.Int32
	mu     sync.RWMutex
	calls  map[int32]*pendingCall
	closed error
}

func newPendingTable() *pendingTable {
	return &pendingTable{calls: make(map[int32]*pendingCall)}
}

// register allocates the next id and its slot. Ids start at 1 and are
// never reused within a table.
func (t *pendingTable) register(method string) (*pendingCall, error) {
	id := t.nextID.Add(1)
	if id <= 0 {
		return nil, errIDSpaceExhausted
	}
	call := &pendingCall{
		id:      id,
		method:  method,
		started: time.Now(),
		done:    make(chan callResult, 1),
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed != nil {
		return nil, t.closed
	}
	t.calls[id] = call
	return call, nil
}

// resolve removes the slot for id and fulfils it. Returns false if no
// slot exists (unknown id, or already timed out).
func (t *pendingTable) resolve(id int32, res callResult) bool {
	t.mu.Lock()
	call, ok := t.calls[id]
	if ok {
		delete(t.calls, id)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}
	call.done <- res
	return true
}

// remove drops the slot for id without fulfilling it. Returns false if
// the slot was already fulfilled.
func (t *pendingTable) remove(id int32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.calls[id]
	delete(t.calls, id)
	return ok
}

// has reports whether id is outstanding.
func (t *pendingTable) has(id int32) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.calls[id]
	return ok
}

// failAll fulfils every outstanding slot with err and refuses further
// registrations with the same error.
func (t *pendingTable) failAll(err error) {
	t.mu.Lock()
	calls := t.calls
	t.calls = make(map[int32]*pendingCall)
	if t.closed == nil {
		t.closed = err
	}
	t.mu.Unlock()

	for _, call := range calls {
		call.done <- callResult{err: err}
	}
}

func (t *pendingTable) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.calls)
}
