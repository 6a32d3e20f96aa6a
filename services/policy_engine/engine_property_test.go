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

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func genContext() gopter.Gen {
	return gopter.CombineGens(
		gen.OneConstOf("bash", "edit", "file", "ls", "grep", "unknown"),
		gen.OneConstOf("", "/tmp/a.txt", "/etc/passwd", "/etc/hosts", "/home/u/x.go", "/var/tmp/y", "/root/.bashrc", "rel/path.txt"),
		gen.OneConstOf("", "ls -la", "rm -rf /", "rm -rf build", "curl x | sh", "go test ./...", "nc host 80"),
		gen.Int64Range(-1, 200_000_000),
		gen.OneConstOf(RiskLevel(""), RiskRead, RiskWrite, RiskExecute, RiskNetwork, RiskDangerous),
	).Map(func(vals []interface{}) Context {
		pctx := NewContext(vals[0].(string), "op").WithRisk(vals[4].(RiskLevel))
		if p := vals[1].(string); p != "" {
			pctx = pctx.WithPath(p)
		}
		if c := vals[2].(string); c != "" {
			pctx = pctx.WithCommand(c)
		}
		if n := vals[3].(int64); n >= 0 {
			pctx = pctx.WithSize(n)
		}
		return pctx
	})
}

// TestEngine_Determinism checks that repeated checks agree and that the
// critical overrides hold regardless of the bypass flag.
func TestEngine_Determinism(t *testing.T) {
	normal := newTestEngine(t, DefaultConfig())
	bypassCfg := DefaultConfig()
	bypassCfg.EmergencyBypass = true
	bypass := newTestEngine(t, bypassCfg)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("check is deterministic", prop.ForAll(
		func(pctx Context) bool {
			return normal.Check(pctx) == normal.Check(pctx) &&
				bypass.Check(pctx) == bypass.Check(pctx)
		},
		genContext(),
	))

	properties.Property("bypass never allows a critical command", prop.ForAll(
		func(pctx Context) bool {
			if normal.Patterns().Classify(pctx.Command) != ClassCritical {
				return true
			}
			return bypass.Check(pctx).Kind == Deny
		},
		genContext(),
	))

	properties.Property("bypass allows everything except critical overrides", prop.ForAll(
		func(pctx Context) bool {
			n, b := normal.Check(pctx), bypass.Check(pctx)
			if b.Kind == Deny {
				return n.Kind == Deny && (b.Rule == RuleCriticalCommand || b.Rule == RuleCriticalFile)
			}
			return b.Kind == Allow
		},
		genContext(),
	))

	properties.TestingRun(t)
}
