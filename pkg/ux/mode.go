// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Mode controls how richly output is rendered.
type Mode string

const (
	// ModeRich uses colour, icons, boxes and animated indicators.
	ModeRich Mode = "rich"

	// ModePlain uses icons without colour or animation.
	ModePlain Mode = "plain"

	// ModeMachine emits prefixed plain lines suitable for scripting.
	ModeMachine Mode = "machine"
)

// EnvOutputMode overrides terminal detection when set.
const EnvOutputMode = "CODETERM_OUTPUT"

// ParseMode converts a flag or environment value to a Mode. Unknown values
// select ModePlain.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rich", "full", "r":
		return ModeRich
	case "machine", "quiet", "q", "json":
		return ModeMachine
	default:
		return ModePlain
	}
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// DetectMode picks a mode for output written to f: the CODETERM_OUTPUT
// value if set, rich on a terminal, machine otherwise.
func DetectMode(f *os.File) Mode {
	if env := os.Getenv(EnvOutputMode); env != "" {
		return ParseMode(env)
	}
	if IsTerminal(f) {
		return ModeRich
	}
	return ModeMachine
}

// Interactive reports whether prompts and animations should be shown.
func (m Mode) Interactive() bool { return m == ModeRich }

// Colors reports whether output is styled.
func (m Mode) Colors() bool { return m == ModeRich }
