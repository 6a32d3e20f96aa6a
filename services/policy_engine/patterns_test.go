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
	"testing"
)

func TestPatternSet(t *testing.T) {
	// Load once; the catalogue is small.
	set, err := LoadPatterns()
	if err != nil {
		t.Fatalf("Failed to load patterns: %v", err)
	}

	tests := []struct {
		name            string
		input           string
		shouldFind      bool
		expectedClass   string
		expectedPattern string
	}{
		{
			name:          "Safe Command",
			input:         "go test ./...",
			shouldFind:    false,
			expectedClass: ClassSafe,
		},
		{
			name:            "Root Deletion (Critical)",
			input:           "sudo rm -rf /",
			shouldFind:      true,
			expectedClass:   ClassCritical,
			expectedPattern: "RM_ROOT",
		},
		{
			name:            "Fork Bomb (Critical)",
			input:           ":(){ :|:& };:",
			shouldFind:      true,
			expectedClass:   ClassCritical,
			expectedPattern: "FORK_BOMB",
		},
		{
			name:            "Recursive Delete (Suspicious)",
			input:           "rm -rf node_modules",
			shouldFind:      true,
			expectedClass:   ClassSuspicious,
			expectedPattern: "RECURSIVE_DELETE",
		},
		{
			name:            "Netcat (Suspicious)",
			input:           "nc -l 4444",
			shouldFind:      true,
			expectedClass:   ClassSuspicious,
			expectedPattern: "NC",
		},
		{
			name:            "Download (Suspicious)",
			input:           "wget https://example.com/install.sh",
			shouldFind:      true,
			expectedClass:   ClassSuspicious,
			expectedPattern: "WGET",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			findings := set.ScanCommand(tc.input)

			if !tc.shouldFind {
				if len(findings) > 0 {
					t.Errorf("Expected 0 findings, got %d: %+v", len(findings), findings)
				}
			} else {
				if len(findings) == 0 {
					t.Fatalf("Expected to find '%s' but got 0 findings.", tc.expectedPattern)
				}
				first := findings[0]
				if first.Classification != tc.expectedClass {
					t.Errorf("Expected classification '%s', got '%s'", tc.expectedClass, first.Classification)
				}
				if first.PatternID != tc.expectedPattern {
					t.Errorf("Expected pattern ID '%s', got '%s'", tc.expectedPattern, first.PatternID)
				}
			}

			// Classify must agree with the first finding.
			if got := set.Classify(tc.input); got != tc.expectedClass {
				t.Errorf("Classify mismatch. Expected '%s', got '%s'", tc.expectedClass, got)
			}
		})
	}
}

func TestPatternSet_ScanReportsEveryMatch(t *testing.T) {
	set, err := LoadPatterns()
	if err != nil {
		t.Fatal(err)
	}
	findings := set.ScanCommand("rm -rf / && curl x")
	var ids []string
	for _, f := range findings {
		ids = append(ids, f.Classification+"/"+f.PatternID)
	}
	want := []string{"critical/RM_ROOT", "suspicious/RECURSIVE_DELETE", "suspicious/CURL"}
	if len(ids) != len(want) {
		t.Fatalf("got %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("finding %d: got %s, want %s", i, ids[i], want[i])
		}
	}
}

func TestPatternSet_CriticalFiles(t *testing.T) {
	set, err := LoadPatterns()
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{"/etc/passwd", "/etc//shadow", "/etc/../etc/sudoers", "/boot/grub/grub.cfg", "/etc/fstab"} {
		if !set.IsCriticalFile(p) {
			t.Errorf("%s should be critical", p)
		}
	}
	for _, p := range []string{"/etc/passwd.bak", "/etc/hosts", ""} {
		if set.IsCriticalFile(p) {
			t.Errorf("%s should not be critical", p)
		}
	}
	if got := len(set.CriticalFiles()); got != 5 {
		t.Errorf("expected 5 critical files, got %d", got)
	}
}

func TestParsePatterns_SortsByPriority(t *testing.T) {
	doc := []byte(`
classifications:
  - name: low
    priority: 1
    patterns: [{id: A, description: a, match: "ab"}]
  - name: high
    priority: 9
    patterns: [{id: B, description: b, match: "abc"}]
`)
	set, err := ParsePatterns(doc)
	if err != nil {
		t.Fatal(err)
	}
	if got := set.Classify("xabcx"); got != "high" {
		t.Errorf("expected high priority classification, got %s", got)
	}
	if _, err := ParsePatterns([]byte("classifications:\n  - name: x\n    patterns: [{id: E, match: ''}]\n")); err == nil {
		t.Error("expected empty match to be rejected")
	}
}
