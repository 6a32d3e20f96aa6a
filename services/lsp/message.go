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
	"errors"
	"fmt"
	"strconv"
)

const jsonrpcVersion = "2.0"

// Method names used by the client.
const (
	MethodInitialize         = "initialize"
	MethodInitialized        = "initialized"
	MethodShutdown           = "shutdown"
	MethodExit               = "exit"
	MethodDidOpen            = "textDocument/didOpen"
	MethodDidChange          = "textDocument/didChange"
	MethodDidClose           = "textDocument/didClose"
	MethodPublishDiagnostics = "textDocument/publishDiagnostics"
	MethodHover              = "textDocument/hover"
	MethodCompletion         = "textDocument/completion"
	MethodDefinition         = "textDocument/definition"
	MethodReferences         = "textDocument/references"

	methodWorkspaceConfiguration = "workspace/configuration"
	methodRegisterCapability     = "client/registerCapability"
	methodUnregisterCapability   = "client/unregisterCapability"
	methodWorkDoneProgressCreate = "window/workDoneProgress/create"
	methodShowMessageRequest     = "window/showMessageRequest"
	methodLogMessage             = "window/logMessage"
	methodCancelRequest          = "$/cancelRequest"
)

// =============================================================================
// Request IDs
// =============================================================================

// ID is a JSON-RPC request id. The client only issues numeric ids; string
// ids appear on requests initiated by the server and are echoed unchanged.
type ID struct {
	num      int32
	str      string
	isString bool
}

// NumberID returns a numeric id.
func NumberID(n int32) ID { return ID{num: n} }

// StringID returns a string id.
func StringID(s string) ID { return ID{str: s, isString: true} }

// Number returns the numeric value and true for numeric ids.
func (id ID) Number() (int32, bool) {
	if id.isString {
		return 0, false
	}
	return id.num, true
}

func (id ID) String() string {
	if id.isString {
		return strconv.Quote(id.str)
	}
	return strconv.FormatInt(int64(id.num), 10)
}

// MarshalJSON encodes the id as a JSON number or string.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.isString {
		return json.Marshal(id.str)
	}
	return []byte(strconv.FormatInt(int64(id.num), 10)), nil
}

// UnmarshalJSON accepts a JSON number within int32 range or a string.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = StringID(s)
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 32)
	if err != nil {
		return fmt.Errorf("invalid request id %s: %w", data, err)
	}
	*id = NumberID(int32(n))
	return nil
}

// =============================================================================
// Envelope
// =============================================================================

// Kind classifies a decoded message.
type Kind int

const (
	KindInvalid Kind = iota
	KindRequest
	KindResponse
	KindNotification
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindNotification:
		return "notification"
	default:
		return "invalid"
	}
}

// ResponseError is the error member of a JSON-RPC response.
type ResponseError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Message is a JSON-RPC 2.0 envelope covering all three message kinds.
//
// Kind is determined by which of id and method are present:
// request (both), response (id only), notification (method only).
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *ID             `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ResponseError  `json:"error,omitempty"`
}

// Kind classifies the message.
func (m *Message) Kind() Kind {
	switch {
	case m.Method != "" && m.ID != nil:
		return KindRequest
	case m.Method != "" && m.ID == nil:
		return KindNotification
	case m.Method == "" && m.ID != nil && (m.Result != nil || m.Error != nil):
		return KindResponse
	default:
		return KindInvalid
	}
}

// NewRequest builds a request with a numeric id.
func NewRequest(id int32, method string, params any) (*Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	rid := NumberID(id)
	return &Message{JSONRPC: jsonrpcVersion, ID: &rid, Method: method, Params: raw}, nil
}

// NewNotification builds a notification. Notifications never carry an id.
func NewNotification(method string, params any) (*Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Message{JSONRPC: jsonrpcVersion, Method: method, Params: raw}, nil
}

// NewResultResponse builds a successful response. A nil result is encoded
// as JSON null so the result member is always present.
func NewResultResponse(id ID, result any) (*Message, error) {
	raw := json.RawMessage("null")
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("marshal result: %w", err)
		}
		raw = b
	}
	return &Message{JSONRPC: jsonrpcVersion, ID: &id, Result: raw}, nil
}

// NewErrorResponse builds an error response.
func NewErrorResponse(id ID, code int, message string) *Message {
	return &Message{
		JSONRPC: jsonrpcVersion,
		ID:      &id,
		Error:   &ResponseError{Code: code, Message: message},
	}
}

// DecodeMessage parses a frame body into a Message.
//
// Outputs:
//
//	*Message - The decoded envelope. Check Kind() before use.
//	error - Non-nil if the body is not a JSON object or the jsonrpc
//	        member is not "2.0".
func DecodeMessage(body []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	if msg.JSONRPC != jsonrpcVersion {
		return nil, fmt.Errorf("decode message: %w", errUnsupportedVersion)
	}
	return &msg, nil
}

var errUnsupportedVersion = errors.New(`jsonrpc member must be "2.0"`)

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	if raw, ok := params.(json.RawMessage); ok {
		return raw, nil
	}
	b, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	return b, nil
}
