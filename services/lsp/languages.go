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
	"path/filepath"
	"strings"
)

// extensionLanguages maps file extensions (without dot) to LSP language ids.
var extensionLanguages = map[string]string{
	"rs":   "rust",
	"py":   "python",
	"js":   "javascript",
	"jsx":  "javascript",
	"ts":   "typescript",
	"tsx":  "typescript",
	"go":   "go",
	"java": "java",
	"cpp":  "cpp",
	"cc":   "cpp",
	"cxx":  "cpp",
	"c":    "c",
	"h":    "c",
	"hpp":  "c",
	"cs":   "csharp",
	"php":  "php",
	"rb":   "ruby",
	"sh":   "bash",
	"bash": "bash",
	"json": "json",
	"yaml": "yaml",
	"yml":  "yaml",
	"toml": "toml",
	"md":   "markdown",
	"html": "html",
	"css":  "css",
	"xml":  "xml",
}

// LanguageForExtension returns the language id for a file extension, with
// or without the leading dot. Empty if unknown.
func LanguageForExtension(ext string) string {
	return extensionLanguages[normalizeExt(ext)]
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

func extOf(path string) string {
	return normalizeExt(filepath.Ext(path))
}

// DefaultServers returns launch commands for the common language servers.
// Each is keyed by language id and must be on PATH to start.
func DefaultServers() map[string]ServerConfig {
	return map[string]ServerConfig{
		"go": {
			Command:    "gopls",
			Workspace:  true,
			Extensions: []string{"go"},
		},
		"rust": {
			Command:    "rust-analyzer",
			Workspace:  true,
			Extensions: []string{"rs"},
		},
		"python": {
			Command:    "pyright-langserver",
			Args:       []string{"--stdio"},
			Workspace:  true,
			Extensions: []string{"py"},
		},
		"typescript": {
			Command:    "typescript-language-server",
			Args:       []string{"--stdio"},
			Workspace:  true,
			Extensions: []string{"ts", "tsx", "js", "jsx"},
		},
		"cpp": {
			Command:    "clangd",
			Workspace:  true,
			Extensions: []string{"c", "h", "cpp", "cc", "cxx", "hpp"},
		},
	}
}
