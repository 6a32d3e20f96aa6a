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
	"fmt"
	"time"
)

// Sentinel errors for LSP operations.
var (
	// ErrNotRunning indicates the client is not in the Running state.
	ErrNotRunning = errors.New("lsp client not running")

	// ErrAlreadyStarted indicates Start was called more than once.
	ErrAlreadyStarted = errors.New("lsp client already started")

	// ErrSpawnFailed indicates the server process could not be started.
	ErrSpawnFailed = errors.New("lsp server spawn failed")

	// ErrFraming indicates a malformed Content-Length frame.
	ErrFraming = errors.New("lsp framing error")

	// ErrTimeout indicates a request did not receive a response in time.
	ErrTimeout = errors.New("lsp request timeout")

	// ErrCancelled indicates the operation was aborted by shutdown.
	ErrCancelled = errors.New("lsp operation cancelled")

	// ErrServerExited indicates the server process terminated unexpectedly.
	ErrServerExited = errors.New("lsp server exited")

	// ErrUnsupported indicates the server did not advertise a capability.
	ErrUnsupported = errors.New("lsp capability not supported")

	// ErrDocumentNotOpen indicates a change was submitted for an unopened URI.
	ErrDocumentNotOpen = errors.New("lsp document not open")

	// ErrUnknownLanguage indicates no server is configured for a language.
	ErrUnknownLanguage = errors.New("no lsp server configured for language")

	// ErrManagerClosed indicates the manager has been shut down.
	ErrManagerClosed = errors.New("lsp manager closed")
)

// JSON-RPC and LSP error codes.
const (
	CodeParseError           = -32700
	CodeInvalidRequest       = -32600
	CodeMethodNotFound       = -32601
	CodeInvalidParams        = -32602
	CodeInternalError        = -32603
	CodeServerNotInitialized = -32002
	CodeUnknownErrorCode     = -32001
	CodeRequestCancelled     = -32800
	CodeContentModified      = -32801
)

// SpawnError reports a server process that could not be started.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %q: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Is reports ErrSpawnFailed.
func (e *SpawnError) Is(target error) bool { return target == ErrSpawnFailed }

// FramingError reports a bad header or body on the wire. The reader stops
// after a framing error because the protocol has no resync point.
type FramingError struct {
	Detail string
	Err    error
}

func (e *FramingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("lsp framing: %s: %v", e.Detail, e.Err)
	}
	return "lsp framing: " + e.Detail
}

func (e *FramingError) Unwrap() error { return e.Err }

// Is reports ErrFraming.
func (e *FramingError) Is(target error) bool { return target == ErrFraming }

// TimeoutError reports a request whose deadline elapsed.
type TimeoutError struct {
	Method  string
	ID      int32
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("lsp request %s (id %d) timeout after %s", e.Method, e.ID, e.Elapsed.Round(time.Millisecond))
}

// Is reports ErrTimeout.
func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// ProtocolError is a JSON-RPC error returned by the server.
type ProtocolError struct {
	Method  string
	Code    int
	Message string
	Data    any
	Elapsed time.Duration
}

func (e *ProtocolError) Error() string {
	base := fmt.Sprintf("lsp %s failed after %s: error %d: %s",
		e.Method, e.Elapsed.Round(time.Millisecond), e.Code, e.Message)
	if e.Data != nil {
		return fmt.Sprintf("%s (data: %v)", base, e.Data)
	}
	return base
}

// IsMethodNotFound reports whether the server does not implement the method.
func (e *ProtocolError) IsMethodNotFound() bool {
	return e.Code == CodeMethodNotFound
}

// IsRequestCancelled reports whether the server cancelled the request.
func (e *ProtocolError) IsRequestCancelled() bool {
	return e.Code == CodeRequestCancelled
}

// IsServerNotInitialized reports whether the server rejected the request
// because initialize has not completed.
func (e *ProtocolError) IsServerNotInitialized() bool {
	return e.Code == CodeServerNotInitialized
}

// UnsupportedError reports a request for a capability the server did not
// advertise. Nothing is written to the wire.
type UnsupportedError struct {
	Method string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("lsp server does not support %s", e.Method)
}

// Is reports ErrUnsupported.
func (e *UnsupportedError) Is(target error) bool { return target == ErrUnsupported }
