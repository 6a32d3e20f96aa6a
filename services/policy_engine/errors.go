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
	"errors"
	"fmt"
)

// Sentinel errors for policy operations.
var (
	// ErrPermissionDenied indicates a Deny decision surfaced as an error.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrSizeLimitExceeded indicates a file larger than the configured limit.
	ErrSizeLimitExceeded = errors.New("file size limit exceeded")

	// ErrPromptRequired indicates a Prompt decision reached a caller that
	// cannot ask the user.
	ErrPromptRequired = errors.New("operation requires user confirmation")

	// ErrInvalidConfig indicates a policy document that failed validation.
	ErrInvalidConfig = errors.New("invalid policy configuration")
)

// PermissionDeniedError carries the rule and reason behind a denial.
type PermissionDeniedError struct {
	Tool   string
	Rule   Rule
	Reason string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied for %s [%s]: %s", e.Tool, e.Rule, e.Reason)
}

// Is reports ErrPermissionDenied.
func (e *PermissionDeniedError) Is(target error) bool { return target == ErrPermissionDenied }

// SizeLimitExceededError reports a size policy violation. It also matches
// ErrPermissionDenied, since it is a denial.
type SizeLimitExceededError struct {
	Tool   string
	Actual int64
	Max    int64
}

func (e *SizeLimitExceededError) Error() string {
	return fmt.Sprintf("file size %d bytes exceeds maximum allowed size %d bytes", e.Actual, e.Max)
}

// Is reports ErrSizeLimitExceeded and ErrPermissionDenied.
func (e *SizeLimitExceededError) Is(target error) bool {
	return target == ErrSizeLimitExceeded || target == ErrPermissionDenied
}

// ConfigError wraps a validation or compile failure in a policy document.
type ConfigError struct {
	Detail string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid policy configuration: %s: %v", e.Detail, e.Err)
	}
	return "invalid policy configuration: " + e.Detail
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Is reports ErrInvalidConfig.
func (e *ConfigError) Is(target error) bool { return target == ErrInvalidConfig }
