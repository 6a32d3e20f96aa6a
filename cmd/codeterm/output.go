// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Exit codes for CLI commands.
const (
	CLIExitSuccess  = 0 // Operation completed successfully
	CLIExitFindings = 1 // Completed with findings: errors in diagnostics, denied operations
	CLIExitError    = 2 // Operation failed
)

// ExitError carries a non-zero exit code out of a command. Err may be nil
// when the command already reported its findings.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("exit %d: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("exit %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// findings returns the exit error for a command that found problems.
func findings() error {
	return &ExitError{Code: CLIExitFindings}
}

// CommandResult wraps command output with metadata.
type CommandResult struct {
	APIVersion string    `json:"api_version"`
	Command    string    `json:"command"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms"`
	Success    bool      `json:"success"`
	Data       any       `json:"data,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// OutputJSON writes data as indented JSON.
//
// # Inputs
//
//   - w: Destination stream.
//   - data: The data to encode. Must be JSON-serializable.
func OutputJSON(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// OutputResult writes a CommandResult envelope for command.
func OutputResult(w io.Writer, command string, start time.Time, data any, err error) error {
	result := CommandResult{
		APIVersion: "1.0",
		Command:    command,
		Timestamp:  start.UTC(),
		DurationMs: time.Since(start).Milliseconds(),
		Success:    err == nil,
		Data:       data,
	}
	if err != nil {
		result.Error = err.Error()
	}
	return OutputJSON(w, result)
}
