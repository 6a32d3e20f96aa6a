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
	"os"
	"path/filepath"
	"strings"
)

// normalizePath cleans a path lexically and makes it absolute. Symlinks are
// not followed. A relative path is resolved against the working directory.
func normalizePath(path string) string {
	if path == "" {
		return ""
	}
	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			return abs
		}
	}
	return filepath.Clean(path)
}

// canonicalPath normalises path and, when resolve is set, follows symlinks
// through the nearest existing ancestor.
func canonicalPath(path string, resolve bool) string {
	p := normalizePath(path)
	if resolve && p != "" {
		return resolvePathWithAncestors(p)
	}
	return p
}

// resolvePathWithAncestors resolves symlinks by finding the nearest existing
// ancestor. This handles paths that do not exist yet, such as a file about
// to be created.
func resolvePathWithAncestors(path string) string {
	if real, err := filepath.EvalSymlinks(path); err == nil {
		return real
	}

	current := path
	var missing []string
	for {
		missing = append(missing, filepath.Base(current))
		parent := filepath.Dir(current)
		if parent == current {
			return path
		}
		if realParent, err := filepath.EvalSymlinks(parent); err == nil {
			for i := len(missing) - 1; i >= 0; i-- {
				realParent = filepath.Join(realParent, missing[i])
			}
			return realParent
		}
		current = parent
	}
}

// isUnder reports whether path equals prefix or lies beneath it. Both must
// already be normalised. Matching is by whole components, so /etcetera is
// not under /etc.
func isUnder(path, prefix string) bool {
	if path == "" || prefix == "" {
		return false
	}
	if path == prefix {
		return true
	}
	sep := string(os.PathSeparator)
	if strings.HasSuffix(prefix, sep) {
		return strings.HasPrefix(path, prefix)
	}
	return strings.HasPrefix(path, prefix+sep)
}

// underAny returns the first prefix containing path.
func underAny(path string, prefixes []string) (string, bool) {
	for _, p := range prefixes {
		if isUnder(path, p) {
			return p, true
		}
	}
	return "", false
}

func canonicalPaths(paths []string, resolve bool) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if c := canonicalPath(p, resolve); c != "" {
			out = append(out, c)
		}
	}
	return out
}
