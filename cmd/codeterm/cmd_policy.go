// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.
package main

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/codeterm/pkg/telemetry"
	"github.com/AleutianAI/codeterm/pkg/ux"
	"github.com/AleutianAI/codeterm/services/policy_engine"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	policyFile        string
	policyTool        string
	policyOperation   string
	policyPath        string
	policyCommand     string
	policySize        int64
	policyRisk        string
	policyBatch       string
	policyInteractive bool
	policyAssume      string
	policyAudit       string
)

// =============================================================================
// COMMANDS
// =============================================================================

var (
	policyCmd = &cobra.Command{
		Use:   "policy",
		Short: "Inspect and exercise the tool permission policy",
	}

	policyCheckCmd = &cobra.Command{
		Use:   "check",
		Short: "Decide whether a tool operation may run",
		Long: `Evaluates one operation (--tool/--op/...) or a YAML list of operations
(--batch) against the policy. Prompt decisions are resolved interactively
with --interactive on a terminal, by --assume, or denied.

Exit codes: 0 all allowed, 1 something was denied, 2 error.`,
		Args: cobra.NoArgs,
		RunE: runPolicyCheck,
	}

	policyShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Print the effective policy and its fingerprint",
		Args:  cobra.NoArgs,
		RunE:  runPolicyShow,
	}

	policyScanCmd = &cobra.Command{
		Use:   "scan <command>",
		Short: "Classify a shell command against the command pattern catalogue",
		Args:  cobra.ExactArgs(1),
		RunE:  runPolicyScan,
	}

	policyWatchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Reload the policy file whenever it changes",
		Args:  cobra.NoArgs,
		RunE:  runPolicyWatch,
	}
)

func init() {
	policyCmd.PersistentFlags().StringVar(&policyFile, "file", "", "policy file (default: policy.file from config, else embedded)")

	f := policyCheckCmd.Flags()
	f.StringVar(&policyTool, "tool", "", "tool name, e.g. write_file")
	f.StringVar(&policyOperation, "op", "", "operation, e.g. write")
	f.StringVar(&policyPath, "path", "", "file path the operation touches")
	f.StringVar(&policyCommand, "command", "", "shell command the operation runs")
	f.Int64Var(&policySize, "size", -1, "size in bytes (negative = unknown)")
	f.StringVar(&policyRisk, "risk", "", "risk level: read, write, execute, network, dangerous")
	f.StringVar(&policyBatch, "batch", "", "YAML file with a list of operations")
	f.BoolVar(&policyInteractive, "interactive", false, "ask before allowing prompt decisions")
	f.StringVar(&policyAssume, "assume", "", "answer prompts non-interactively: allow or deny")
	f.StringVar(&policyAudit, "audit", "", "append every decision to this JSONL file")

	policyCmd.AddCommand(policyCheckCmd, policyShowCmd, policyScanCmd, policyWatchCmd)
}

// =============================================================================
// ENGINE
// =============================================================================

func effectivePolicyFile() string {
	if policyFile != "" {
		return policyFile
	}
	return app.cfg.Policy.File
}

func newPolicyEngine(opts ...policy_engine.Option) (*policy_engine.Engine, error) {
	cfg, err := policy_engine.LoadConfigOrDefault(effectivePolicyFile())
	if err != nil {
		return nil, err
	}
	opts = append([]policy_engine.Option{policy_engine.WithLogger(app.logger.Slog())}, opts...)
	return policy_engine.NewEngine(cfg, opts...)
}

// =============================================================================
// CHECK
// =============================================================================

// CheckResult is one evaluated operation.
type CheckResult struct {
	Context  policy_engine.Context  `json:"context"`
	Decision policy_engine.Decision `json:"decision"`
}

func contextFromFlags() (policy_engine.Context, error) {
	if policyTool == "" || policyOperation == "" {
		return policy_engine.Context{}, fmt.Errorf("--tool and --op are required without --batch")
	}
	pctx := policy_engine.NewContext(policyTool, policyOperation)
	if policyPath != "" {
		pctx = pctx.WithPath(policyPath)
	}
	if policyCommand != "" {
		pctx = pctx.WithCommand(policyCommand)
	}
	if policySize >= 0 {
		pctx = pctx.WithSize(policySize)
	}
	if policyRisk != "" {
		risk, err := policy_engine.ParseRiskLevel(policyRisk)
		if err != nil {
			return policy_engine.Context{}, err
		}
		pctx = pctx.WithRisk(risk)
	}
	return pctx, nil
}

// loadBatch reads a YAML list of operation contexts.
func loadBatch(path string) ([]policy_engine.Context, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ops []policy_engine.Context
	if err := yaml.Unmarshal(data, &ops); err != nil {
		return nil, fmt.Errorf("parse batch %s: %w", path, err)
	}
	for i, op := range ops {
		if op.Tool == "" || op.Operation == "" {
			return nil, fmt.Errorf("batch %s: entry %d needs tool and operation", path, i)
		}
	}
	return ops, nil
}

// promptHandlerFor picks how Prompt decisions are answered.
func promptHandlerFor(mode ux.Mode) (policy_engine.PromptHandler, error) {
	switch policyAssume {
	case "":
	case "allow":
		return assumePrompt(true), nil
	case "deny":
		return assumePrompt(false), nil
	default:
		return nil, fmt.Errorf("--assume must be allow or deny, got %q", policyAssume)
	}
	if policyInteractive && mode.Interactive() && ux.IsTerminal(os.Stdin) {
		return policy_engine.PromptFunc(huhPrompt), nil
	}
	return nil, nil
}

func runPolicyCheck(cmd *cobra.Command, args []string) error {
	start := time.Now()

	var ops []policy_engine.Context
	var err error
	if policyBatch != "" {
		ops, err = loadBatch(policyBatch)
	} else {
		var pctx policy_engine.Context
		pctx, err = contextFromFlags()
		ops = []policy_engine.Context{pctx}
	}
	if err != nil {
		return &ExitError{Code: CLIExitError, Err: err}
	}

	handler, err := promptHandlerFor(app.printer.Mode())
	if err != nil {
		return &ExitError{Code: CLIExitError, Err: err}
	}
	engine, err := newPolicyEngine()
	if err != nil {
		return &ExitError{Code: CLIExitError, Err: err}
	}

	var sessionOpts []policy_engine.SessionOption
	sessionOpts = append(sessionOpts, policy_engine.WithSessionLogger(app.logger.Slog()))
	if handler != nil {
		sessionOpts = append(sessionOpts, policy_engine.WithPromptHandler(handler))
	}
	if policyAudit != "" {
		f, err := os.OpenFile(policyAudit, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return &ExitError{Code: CLIExitError, Err: fmt.Errorf("open audit log: %w", err)}
		}
		defer f.Close()
		sessionOpts = append(sessionOpts, policy_engine.WithAuditLogger(policy_engine.NewJSONLAuditLogger(f)))
	}
	session := policy_engine.NewSession(engine, sessionOpts...)

	results, denied, err := checkAll(cmd.Context(), session, ops)
	if err != nil {
		return &ExitError{Code: CLIExitError, Err: err}
	}

	if jsonOutput {
		if err := OutputResult(cmd.OutOrStdout(), "policy check", start, results, nil); err != nil {
			return err
		}
	} else {
		printCheckResults(app.printer, results)
	}
	if denied {
		return findings()
	}
	return nil
}

// checkAll evaluates ops in order through session. denied reports whether
// any operation ended without Allow.
func checkAll(ctx context.Context, session *policy_engine.Session, ops []policy_engine.Context) (results []CheckResult, denied bool, err error) {
	results = make([]CheckResult, 0, len(ops))
	for _, op := range ops {
		spanCtx, span := telemetry.StartSpan(ctx, "codeterm.cli", "policy.check",
			trace.WithAttributes(
				attribute.String("tool", op.Tool),
				attribute.String("operation", op.Operation),
			))
		d, err := session.Request(spanCtx, op)
		if err != nil {
			telemetry.RecordError(span, err)
			span.End()
			return nil, false, err
		}
		span.SetAttributes(attribute.String("decision", d.Kind.String()), attribute.String("rule", string(d.Rule)))
		span.End()
		if !d.Allowed() {
			denied = true
		}
		results = append(results, CheckResult{Context: op, Decision: d})
	}
	return results, denied, nil
}

func describeContext(pctx policy_engine.Context) string {
	switch {
	case pctx.Command != "":
		return fmt.Sprintf("%s.%s `%s`", pctx.Tool, pctx.Operation, pctx.Command)
	case pctx.Path != "":
		return fmt.Sprintf("%s.%s %s", pctx.Tool, pctx.Operation, pctx.Path)
	default:
		return pctx.Tool + "." + pctx.Operation
	}
}

func printCheckResults(p *ux.Printer, results []CheckResult) {
	for _, r := range results {
		icon := ux.IconSuccess
		switch r.Decision.Kind {
		case policy_engine.Prompt:
			icon = ux.IconWarning
		case policy_engine.Deny:
			icon = ux.IconError
		}
		detail := fmt.Sprintf("%s via %s", r.Decision.Kind, r.Decision.Rule)
		if r.Decision.Reason != "" {
			detail += ": " + r.Decision.Reason
		}
		p.Status(icon, describeContext(r.Context), detail)
	}
}

// =============================================================================
// SHOW / SCAN
// =============================================================================

func runPolicyShow(cmd *cobra.Command, args []string) error {
	cfg, err := policy_engine.LoadConfigOrDefault(effectivePolicyFile())
	if err != nil {
		return &ExitError{Code: CLIExitError, Err: err}
	}
	data, err := cfg.Marshal()
	if err != nil {
		return &ExitError{Code: CLIExitError, Err: err}
	}
	fingerprint := fmt.Sprintf("sha256:%x", sha256.Sum256(data))

	if jsonOutput {
		return OutputJSON(cmd.OutOrStdout(), struct {
			Source      string               `json:"source"`
			Fingerprint string               `json:"fingerprint"`
			Policy      policy_engine.Config `json:"policy"`
		}{policySource(), fingerprint, cfg})
	}

	p := app.printer
	p.KeyValue("source", policySource())
	p.KeyValue("fingerprint", fingerprint)
	p.KeyValue("tools", fmt.Sprintf("%d configured", len(cfg.Tools)))
	fmt.Fprintln(p.Writer(), string(data))
	return nil
}

func policySource() string {
	if f := effectivePolicyFile(); f != "" {
		return f
	}
	return "embedded"
}

func runPolicyScan(cmd *cobra.Command, args []string) error {
	patterns, err := policy_engine.LoadPatterns()
	if err != nil {
		return &ExitError{Code: CLIExitError, Err: err}
	}
	class := patterns.Classify(args[0])
	found := patterns.ScanCommand(args[0])

	if jsonOutput {
		return OutputJSON(cmd.OutOrStdout(), struct {
			Classification string                  `json:"classification"`
			Findings       []policy_engine.Finding `json:"findings"`
		}{class, found})
	}

	p := app.printer
	p.KeyValue("classification", class)
	for _, f := range found {
		p.Status(ux.IconBullet, f.PatternID, fmt.Sprintf("%s: %s", f.Classification, f.Description))
	}
	if class == policy_engine.ClassCritical {
		return findings()
	}
	return nil
}

// =============================================================================
// WATCH
// =============================================================================

func runPolicyWatch(cmd *cobra.Command, args []string) error {
	path := effectivePolicyFile()
	if path == "" {
		return &ExitError{Code: CLIExitError, Err: fmt.Errorf("policy watch needs --file or policy.file in the config")}
	}
	engine, err := newPolicyEngine()
	if err != nil {
		return &ExitError{Code: CLIExitError, Err: err}
	}

	p := app.printer
	watcher, err := policy_engine.NewWatcher(path, engine,
		policy_engine.WithWatcherLogger(app.logger.Slog()),
		policy_engine.OnReload(func(cfg policy_engine.Config, err error) {
			if err != nil {
				p.Warning(fmt.Sprintf("reload rejected, keeping previous policy: %v", err))
				return
			}
			p.Success(fmt.Sprintf("policy reloaded: %d tools, default %s", len(cfg.Tools), cfg.DefaultMode))
		}),
	)
	if err != nil {
		return &ExitError{Code: CLIExitError, Err: err}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	p.Info(fmt.Sprintf("watching %s (Ctrl-C to stop)", path))
	return watcher.Run(ctx)
}
