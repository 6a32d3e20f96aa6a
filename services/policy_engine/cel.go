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
	"sync"

	"github.com/google/cel-go/cel"
)

// CEL evaluation limits.
const (
	celCostLimit          = 10_000
	celInterruptFrequency = 100
)

var (
	celEnvOnce sync.Once
	celEnv     *cel.Env
	celEnvErr  error
)

// ruleEnv returns the shared environment. Expressions see:
//
//	tool, operation, path, command, risk (string)
//	size (int, -1 when unknown)
func ruleEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable("tool", cel.StringType),
			cel.Variable("operation", cel.StringType),
			cel.Variable("path", cel.StringType),
			cel.Variable("command", cel.StringType),
			cel.Variable("size", cel.IntType),
			cel.Variable("risk", cel.StringType),
		)
	})
	return celEnv, celEnvErr
}

// compiledRule is a custom rule ready for evaluation.
type compiledRule struct {
	rule    CustomRule
	program cel.Program
}

// compileRules type-checks each expression and requires a boolean result.
func compileRules(rules []CustomRule) ([]compiledRule, error) {
	if len(rules) == 0 {
		return nil, nil
	}
	env, err := ruleEnv()
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	out := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		ast, issues := env.Compile(r.Expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("rule %q: compile: %w", r.Name, issues.Err())
		}
		if got := ast.OutputType().String(); got != "bool" {
			return nil, fmt.Errorf("rule %q: expression yields %s, want bool", r.Name, got)
		}
		prg, err := env.Program(ast,
			cel.InterruptCheckFrequency(celInterruptFrequency),
			cel.CostLimit(celCostLimit),
		)
		if err != nil {
			return nil, fmt.Errorf("rule %q: program: %w", r.Name, err)
		}
		out = append(out, compiledRule{rule: r, program: prg})
	}
	return out, nil
}

// activation builds the variable bindings for pctx.
func activation(pctx Context) map[string]any {
	size := int64(-1)
	if pctx.Size != nil {
		size = *pctx.Size
	}
	return map[string]any{
		"tool":      pctx.Tool,
		"operation": pctx.Operation,
		"path":      pctx.Path,
		"command":   pctx.Command,
		"size":      size,
		"risk":      string(pctx.RiskLevel()),
	}
}

// eval runs the rule. A non-boolean result is an error.
func (r compiledRule) eval(vars map[string]any) (bool, error) {
	out, _, err := r.program.Eval(vars)
	if err != nil {
		return false, err
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("rule %q returned %T, want bool", r.rule.Name, out.Value())
	}
	return matched, nil
}

func (r compiledRule) decision() Decision {
	reason := r.rule.Reason
	if reason == "" {
		reason = fmt.Sprintf("Custom rule '%s' matched", r.rule.Name)
	}
	return Decision{Kind: r.rule.Decision, Reason: reason, Rule: CustomRuleName(r.rule.Name)}
}
