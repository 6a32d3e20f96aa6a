// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package anim

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig indicates a rejected clip or timeline definition.
	ErrInvalidConfig = errors.New("invalid animation config")

	// ErrUnknownEasing indicates an easing name that does not parse.
	ErrUnknownEasing = errors.New("unknown easing")
)

// InvalidConfigError describes why a definition was rejected, for example
// a dependency cycle.
type InvalidConfigError struct {
	Detail string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid animation config: %s", e.Detail)
}

// Is reports ErrInvalidConfig.
func (e *InvalidConfigError) Is(target error) bool { return target == ErrInvalidConfig }

func invalidf(format string, args ...any) error {
	return &InvalidConfigError{Detail: fmt.Sprintf(format, args...)}
}
