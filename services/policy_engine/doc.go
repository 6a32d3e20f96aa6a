// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package policy_engine gates tool-initiated file and command operations.
//
// An Engine turns a Context (tool, operation, optional path, command, size
// and risk) into a Decision: Allow, Prompt or Deny, naming the rule that
// fired. The configuration is a YAML document; the default one and the
// command pattern catalogue are embedded from the enforcement package.
//
// A Session adds per-session approvals and a PromptHandler on top of an
// Engine. A Watcher hot-reloads a policy file. Metrics exposes decision
// counters to prometheus.
package policy_engine
