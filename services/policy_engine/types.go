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

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Modes and risk levels
// =============================================================================

// Mode is the default disposition of a tool once no other rule has fired.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModePrompt Mode = "prompt"
	ModeDeny   Mode = "deny"
)

func (m *Mode) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	incoming := Mode(s)
	switch incoming {
	case ModeAuto, ModePrompt, ModeDeny:
		*m = incoming
		return nil
	default:
		return fmt.Errorf("invalid value for mode: %q", incoming)
	}
}

// RiskLevel is a coarse categorisation of an operation. It phrases prompts
// and gates the critical file check.
type RiskLevel string

const (
	RiskRead      RiskLevel = "read"
	RiskWrite     RiskLevel = "write"
	RiskExecute   RiskLevel = "execute"
	RiskNetwork   RiskLevel = "network"
	RiskDangerous RiskLevel = "dangerous"
)

func (r *RiskLevel) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseRiskLevel(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseRiskLevel validates a risk level name.
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch r := RiskLevel(s); r {
	case RiskRead, RiskWrite, RiskExecute, RiskNetwork, RiskDangerous:
		return r, nil
	default:
		return "", fmt.Errorf("invalid value for risk level: %q", s)
	}
}

// Verb returns the phrase used in prompts, e.g. "modify files".
func (r RiskLevel) Verb() string {
	switch r {
	case RiskWrite:
		return "modify files"
	case RiskExecute:
		return "execute commands"
	case RiskNetwork:
		return "access network"
	case RiskDangerous:
		return "perform dangerous operations"
	default:
		return "read data"
	}
}

// =============================================================================
// Decisions
// =============================================================================

// DecisionKind is the three-valued outcome of a check.
type DecisionKind int

const (
	Allow DecisionKind = iota
	Prompt
	Deny
)

func (k DecisionKind) String() string {
	switch k {
	case Allow:
		return "allow"
	case Prompt:
		return "prompt"
	case Deny:
		return "deny"
	default:
		return "unknown"
	}
}

// ParseDecisionKind accepts "allow", "prompt" or "deny".
func ParseDecisionKind(s string) (DecisionKind, error) {
	switch s {
	case "allow":
		return Allow, nil
	case "prompt":
		return Prompt, nil
	case "deny":
		return Deny, nil
	default:
		return 0, fmt.Errorf("invalid value for decision: %q", s)
	}
}

func (k *DecisionKind) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseDecisionKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

func (k DecisionKind) MarshalYAML() (interface{}, error) {
	return k.String(), nil
}

// MarshalText encodes the kind by name, so JSON output reads "deny".
func (k DecisionKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *DecisionKind) UnmarshalText(text []byte) error {
	parsed, err := ParseDecisionKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Rule names the evaluation step that produced a decision.
type Rule string

const (
	RuleCriticalCommand   Rule = "critical_command"
	RuleCriticalFile      Rule = "critical_file"
	RuleEmergencyBypass   Rule = "emergency_bypass"
	RuleSafePath          Rule = "safe_path"
	RuleRestrictedPath    Rule = "restricted_path"
	RuleToolDenyPath      Rule = "tool_deny_path"
	RuleToolAllowPath     Rule = "tool_allow_path"
	RuleSuspiciousCommand Rule = "suspicious_command"
	RuleSizeLimit         Rule = "size_limit"
	RuleToolMode          Rule = "tool_mode"
	RuleDefaultMode       Rule = "default_mode"
	RuleSessionGrant      Rule = "session_grant"
	RuleUserDecision      Rule = "user_decision"

	customRulePrefix = "custom_rule:"
)

// CustomRuleName returns the rule label for a named CEL rule.
func CustomRuleName(name string) Rule {
	return Rule(customRulePrefix + name)
}

// Decision is the result of a policy check. Reason is empty for Allow
// decisions produced by mode defaults.
type Decision struct {
	Kind   DecisionKind `json:"kind"`
	Reason string       `json:"reason,omitempty"`
	Rule   Rule         `json:"rule"`
}

// Allowed reports whether the operation may proceed without confirmation.
func (d Decision) Allowed() bool { return d.Kind == Allow }

func (d Decision) String() string {
	if d.Reason == "" {
		return fmt.Sprintf("%s [%s]", d.Kind, d.Rule)
	}
	return fmt.Sprintf("%s [%s]: %s", d.Kind, d.Rule, d.Reason)
}

func allow(rule Rule, reason string) Decision {
	return Decision{Kind: Allow, Rule: rule, Reason: reason}
}

func prompt(rule Rule, reason string) Decision {
	return Decision{Kind: Prompt, Rule: rule, Reason: reason}
}

func deny(rule Rule, reason string) Decision {
	return Decision{Kind: Deny, Rule: rule, Reason: reason}
}

// =============================================================================
// Context
// =============================================================================

// Context describes one tool operation to be checked.
//
// Description:
//
//	Tool and Operation are required. Path and Command are empty when
//	absent; Size is nil when unknown. An unset Risk is treated as read.
//
// Example:
//
//	pctx := NewContext("bash", "run").WithCommand("go test ./...")
//	// pctx.Risk == RiskExecute
type Context struct {
	Tool      string    `json:"tool"`
	Operation string    `json:"operation"`
	Path      string    `json:"path,omitempty"`
	Command   string    `json:"command,omitempty"`
	Size      *int64    `json:"size,omitempty"`
	Risk      RiskLevel `json:"risk,omitempty"`
}

// NewContext starts a context for tool and operation.
func NewContext(tool, operation string) Context {
	return Context{Tool: tool, Operation: operation}
}

// WithPath sets the file path.
func (c Context) WithPath(path string) Context {
	c.Path = path
	return c
}

// WithCommand sets the command string and raises an unset risk to execute.
func (c Context) WithCommand(command string) Context {
	c.Command = command
	if c.Risk == "" {
		c.Risk = RiskExecute
	}
	return c
}

// WithSize sets the file size in bytes.
func (c Context) WithSize(size int64) Context {
	c.Size = &size
	return c
}

// WithRisk sets the risk level.
func (c Context) WithRisk(risk RiskLevel) Context {
	c.Risk = risk
	return c
}

// RiskLevel returns the effective risk, defaulting to read.
func (c Context) RiskLevel() RiskLevel {
	if c.Risk == "" {
		return RiskRead
	}
	return c.Risk
}

// target is the grant key component: path, else command, else "*".
func (c Context) target() string {
	switch {
	case c.Path != "":
		return c.Path
	case c.Command != "":
		return c.Command
	default:
		return "*"
	}
}
