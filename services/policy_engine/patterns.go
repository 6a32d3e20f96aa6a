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
	"fmt"
	"sort"
	"strings"

	"github.com/AleutianAI/codeterm/services/policy_engine/enforcement"
	"gopkg.in/yaml.v3"
)

// Classification names used by the embedded catalogue.
const (
	ClassCritical   = "critical"
	ClassSuspicious = "suspicious"

	// ClassSafe is returned by Classify when nothing matches.
	ClassSafe = "safe"
)

// PatternFile is the decoded form of the command pattern catalogue.
type PatternFile struct {
	Classifications []Classification `yaml:"classifications"`
	CriticalFiles   []string         `yaml:"critical_files"`
}

// Classification groups patterns under a name and priority. Higher
// priorities are checked first.
type Classification struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Priority    int       `yaml:"priority"`
	Patterns    []Pattern `yaml:"patterns"`
}

// Pattern is a literal substring. Matching is case-sensitive and does not
// interpret the command.
type Pattern struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description"`
	Match       string `yaml:"match"`
}

// Finding is one pattern hit inside a command.
type Finding struct {
	Classification string `json:"classification"`
	PatternID      string `json:"pattern_id"`
	Description    string `json:"description"`
	Matched        string `json:"matched"`
}

// SortByPriority orders classifications from highest to lowest priority.
func (p *PatternFile) SortByPriority() {
	sort.SliceStable(p.Classifications, func(i, j int) bool {
		return p.Classifications[i].Priority > p.Classifications[j].Priority
	})
}

func (p *PatternFile) validate() error {
	for _, c := range p.Classifications {
		for _, pat := range c.Patterns {
			if pat.Match == "" {
				return fmt.Errorf("classification %s: pattern %s has empty match", c.Name, pat.ID)
			}
		}
	}
	return nil
}

// PatternSet is the compiled command catalogue.
//
// Thread Safety:
//
//	Immutable after construction; safe for concurrent use.
type PatternSet struct {
	classifications []Classification
	criticalFiles   map[string]struct{}
}

// LoadPatterns decodes the embedded catalogue.
//
// It performs the following operations:
// 1. Unmarshals the embedded YAML data.
// 2. Rejects empty patterns.
// 3. Sorts classifications by priority.
func LoadPatterns() (*PatternSet, error) {
	return ParsePatterns(enforcement.CommandPatterns)
}

// ParsePatterns decodes a catalogue document.
func ParsePatterns(data []byte) (*PatternSet, error) {
	var file PatternFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the command patterns: %w", err)
	}
	if err := file.validate(); err != nil {
		return nil, fmt.Errorf("invalid command patterns: %w", err)
	}
	file.SortByPriority()

	set := &PatternSet{
		classifications: file.Classifications,
		criticalFiles:   make(map[string]struct{}, len(file.CriticalFiles)),
	}
	for _, f := range file.CriticalFiles {
		set.criticalFiles[normalizePath(f)] = struct{}{}
	}
	return set, nil
}

// Classify returns the name of the highest-priority classification with a
// pattern contained in command, or ClassSafe.
func (s *PatternSet) Classify(command string) string {
	for _, c := range s.classifications {
		for _, p := range c.Patterns {
			if strings.Contains(command, p.Match) {
				return c.Name
			}
		}
	}
	return ClassSafe
}

// ScanCommand reports every pattern contained in command, in priority
// order and catalogue order within a classification.
func (s *PatternSet) ScanCommand(command string) []Finding {
	var findings []Finding
	for _, c := range s.classifications {
		for _, p := range c.Patterns {
			if strings.Contains(command, p.Match) {
				findings = append(findings, Finding{
					Classification: c.Name,
					PatternID:      p.ID,
					Description:    p.Description,
					Matched:        p.Match,
				})
			}
		}
	}
	return findings
}

// firstMatch returns the first pattern of the named classification
// contained in command.
func (s *PatternSet) firstMatch(class, command string) (Pattern, bool) {
	if command == "" {
		return Pattern{}, false
	}
	for _, c := range s.classifications {
		if c.Name != class {
			continue
		}
		for _, p := range c.Patterns {
			if strings.Contains(command, p.Match) {
				return p, true
			}
		}
	}
	return Pattern{}, false
}

// IsCriticalFile reports whether path names a critical system file. The
// path is normalised first.
func (s *PatternSet) IsCriticalFile(path string) bool {
	_, ok := s.criticalFiles[normalizePath(path)]
	return ok
}

// CriticalFiles returns the critical file list in lexical order.
func (s *PatternSet) CriticalFiles() []string {
	out := make([]string, 0, len(s.criticalFiles))
	for f := range s.criticalFiles {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Patterns returns the patterns of a classification.
func (s *PatternSet) Patterns(class string) []Pattern {
	for _, c := range s.classifications {
		if c.Name == class {
			return append([]Pattern(nil), c.Patterns...)
		}
	}
	return nil
}
