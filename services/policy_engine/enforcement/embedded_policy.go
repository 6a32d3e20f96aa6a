// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
This file bakes the default permission policy and the command pattern
catalogue into the binary. The pattern catalogue cannot be changed without
recompiling; the permission policy is only the default and may be replaced
by a file at runtime.
*/

package enforcement

import (
	_ "embed"
)

// PermissionPolicy holds the raw bytes of 'permission_policy.yaml', the
// configuration used when no policy file is supplied.
//
// Usage:
//
//	cfg, err := policy_engine.ParseConfig(enforcement.PermissionPolicy)
//
//go:embed permission_policy.yaml
var PermissionPolicy []byte

// CommandPatterns holds the raw bytes of 'command_patterns.yaml': the
// critical and suspicious command substrings and the critical system files.
//
//go:embed command_patterns.yaml
var CommandPatterns []byte
