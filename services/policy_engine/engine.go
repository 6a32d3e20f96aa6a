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
	"log/slog"
	"sync/atomic"
	"time"
)

// Engine decides whether a tool operation may proceed.
//
// Description:
//
//	Rules are evaluated in a fixed order and the first one that fires
//	wins:
//
//	  1. critical command or critical file (write risk), even under bypass
//	  2. emergency bypass
//	  3. safe path, restricted path, tool deny paths, tool allow paths
//	  4. suspicious command
//	  5. size limit
//	  6. custom CEL rules of the tool
//	  7. tool mode, else the default mode
//
//	The engine keeps no state between checks other than the current
//	configuration, so identical inputs yield identical decisions.
//
// Thread Safety:
//
//	Safe for concurrent use. The configuration is swapped atomically; a
//	check in flight completes under the snapshot it loaded.
type Engine struct {
	current  atomic.Pointer[snapshot]
	patterns *PatternSet
	logger   *slog.Logger
	metrics  *Metrics
}

// snapshot is a compiled, immutable configuration.
type snapshot struct {
	cfg        Config
	restricted []string
	safe       []string
	tools      map[string]compiledTool
}

type compiledTool struct {
	allowed []string
	denied  []string
	rules   []compiledRule
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the decision logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics records decisions on m.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithPatterns replaces the embedded command catalogue.
func WithPatterns(p *PatternSet) Option {
	return func(e *Engine) {
		if p != nil {
			e.patterns = p
		}
	}
}

// NewEngine validates and compiles cfg.
//
// Outputs:
//
//	*Engine - Ready for Check.
//	error - Non-nil if cfg is invalid or the embedded catalogue fails to load.
func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	e := &Engine{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	if e.patterns == nil {
		p, err := LoadPatterns()
		if err != nil {
			return nil, err
		}
		e.patterns = p
	}
	snap, err := compile(cfg)
	if err != nil {
		return nil, err
	}
	e.current.Store(snap)
	return e, nil
}

func compile(cfg Config) (*snapshot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.Clone()
	snap := &snapshot{
		cfg:        cfg,
		restricted: canonicalPaths(cfg.RestrictedPaths, cfg.ResolveSymlinks),
		safe:       canonicalPaths(cfg.SafePaths, cfg.ResolveSymlinks),
		tools:      make(map[string]compiledTool, len(cfg.Tools)),
	}
	for name, tp := range cfg.Tools {
		rules, err := compileRules(tp.Rules)
		if err != nil {
			return nil, &ConfigError{Detail: fmt.Sprintf("tool %s", name), Err: err}
		}
		snap.tools[name] = compiledTool{
			allowed: canonicalPaths(tp.AllowedPaths, cfg.ResolveSymlinks),
			denied:  canonicalPaths(tp.DeniedPaths, cfg.ResolveSymlinks),
			rules:   rules,
		}
	}
	return snap, nil
}

// =============================================================================
// Checks
// =============================================================================

// Check returns the decision for pctx. It never fails; a caller that cannot
// ask the user must translate Prompt itself, or use Enforce.
func (e *Engine) Check(pctx Context) Decision {
	d, _ := e.check(pctx)
	return d
}

// Enforce converts the decision to an error.
//
// Outputs:
//
//	error - nil for Allow, *SizeLimitExceededError or
//	        *PermissionDeniedError for Deny, an error wrapping
//	        ErrPromptRequired for Prompt.
func (e *Engine) Enforce(pctx Context) error {
	d, snap := e.check(pctx)
	switch d.Kind {
	case Allow:
		return nil
	case Prompt:
		return fmt.Errorf("%w: %s", ErrPromptRequired, d.Reason)
	default:
		if d.Rule == RuleSizeLimit && pctx.Size != nil {
			return &SizeLimitExceededError{
				Tool:   pctx.Tool,
				Actual: *pctx.Size,
				Max:    snap.cfg.MaxFileSizeFor(pctx.Tool),
			}
		}
		return &PermissionDeniedError{Tool: pctx.Tool, Rule: d.Rule, Reason: d.Reason}
	}
}

func (e *Engine) check(pctx Context) (Decision, *snapshot) {
	start := time.Now()
	snap := e.current.Load()
	d := e.evaluate(snap, pctx)
	e.metrics.observeDecision(d, time.Since(start))
	if snap.cfg.LogDecisions {
		e.logger.Debug("policy decision",
			"tool", pctx.Tool,
			"operation", pctx.Operation,
			"decision", d.Kind.String(),
			"rule", string(d.Rule),
			"reason", d.Reason)
	}
	return d, snap
}

func (e *Engine) evaluate(snap *snapshot, pctx Context) Decision {
	cfg := &snap.cfg
	risk := pctx.RiskLevel()
	path := canonicalPath(pctx.Path, cfg.ResolveSymlinks)

	if p, ok := e.patterns.firstMatch(ClassCritical, pctx.Command); ok {
		return deny(RuleCriticalCommand,
			fmt.Sprintf("Command contains critical dangerous pattern '%s'", p.Match))
	}
	if path != "" && risk == RiskWrite &&
		(e.patterns.IsCriticalFile(pctx.Path) || e.patterns.IsCriticalFile(path)) {
		return deny(RuleCriticalFile,
			fmt.Sprintf("Write access to critical system file '%s' is denied", pctx.Path))
	}

	if cfg.EmergencyBypass {
		return allow(RuleEmergencyBypass, "Emergency bypass is enabled")
	}

	tool := snap.tools[pctx.Tool]

	if path != "" {
		if _, ok := underAny(path, snap.safe); ok {
			return allow(RuleSafePath, "")
		}
		if _, ok := underAny(path, snap.restricted); ok {
			return deny(RuleRestrictedPath,
				fmt.Sprintf("Access to restricted path '%s' is not allowed", pctx.Path))
		}
		if _, ok := underAny(path, tool.denied); ok {
			return deny(RuleToolDenyPath,
				fmt.Sprintf("Tool '%s' is not allowed to access path '%s'", pctx.Tool, pctx.Path))
		}
		if len(tool.allowed) > 0 {
			if _, ok := underAny(path, tool.allowed); !ok {
				return deny(RuleToolAllowPath,
					fmt.Sprintf("Tool '%s' can only access specific allowed paths", pctx.Tool))
			}
		}
	}

	if p, ok := e.patterns.firstMatch(ClassSuspicious, pctx.Command); ok {
		return prompt(RuleSuspiciousCommand,
			fmt.Sprintf("Command contains potentially dangerous operation '%s' (%s). Allow execution?",
				p.Match, p.Description))
	}

	if pctx.Size != nil {
		if limit := cfg.MaxFileSizeFor(pctx.Tool); limit > 0 && *pctx.Size > limit {
			return deny(RuleSizeLimit,
				fmt.Sprintf("File size %d bytes exceeds maximum allowed size %d bytes", *pctx.Size, limit))
		}
	}

	if len(tool.rules) > 0 {
		vars := activation(pctx)
		for _, r := range tool.rules {
			matched, err := r.eval(vars)
			if err != nil {
				e.logger.Warn("custom policy rule failed",
					"tool", pctx.Tool,
					"rule", r.rule.Name,
					"error", err)
				continue
			}
			if matched {
				return r.decision()
			}
		}
	}

	mode, rule := cfg.ModeFor(pctx.Tool)
	switch mode {
	case ModeAuto:
		return allow(rule, "")
	case ModeDeny:
		return deny(rule, fmt.Sprintf("Tool '%s' is explicitly denied", pctx.Tool))
	default:
		return prompt(rule, fmt.Sprintf("Tool '%s' wants to %s. Allow operation?", pctx.Tool, risk.Verb()))
	}
}

// =============================================================================
// Configuration
// =============================================================================

// UpdateConfig validates and compiles cfg, then swaps it in atomically. On
// error the current configuration is unchanged.
func (e *Engine) UpdateConfig(cfg Config) error {
	snap, err := compile(cfg)
	if err != nil {
		return err
	}
	e.current.Store(snap)
	e.logger.Info("policy configuration updated",
		"tools", len(cfg.Tools),
		"default_mode", string(cfg.DefaultMode),
		"emergency_bypass", cfg.EmergencyBypass)
	return nil
}

// Config returns a copy of the current configuration.
func (e *Engine) Config() Config {
	return e.current.Load().cfg.Clone()
}

// SetEmergencyBypass toggles the bypass flag without recompiling rules.
func (e *Engine) SetEmergencyBypass(enabled bool) {
	for {
		cur := e.current.Load()
		next := *cur
		next.cfg.EmergencyBypass = enabled
		if e.current.CompareAndSwap(cur, &next) {
			break
		}
	}
	if enabled {
		e.logger.Warn("policy emergency bypass enabled")
	} else {
		e.logger.Info("policy emergency bypass disabled")
	}
}

// EmergencyBypass reports the bypass flag.
func (e *Engine) EmergencyBypass() bool {
	return e.current.Load().cfg.EmergencyBypass
}

// Timeout returns the execution timeout configured for tool.
func (e *Engine) Timeout(tool string) time.Duration {
	return time.Duration(e.current.Load().cfg.TimeoutMSFor(tool)) * time.Millisecond
}

// Patterns returns the command catalogue in use.
func (e *Engine) Patterns() *PatternSet {
	return e.patterns
}
