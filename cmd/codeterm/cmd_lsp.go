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
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/codeterm/pkg/ux"
	"github.com/AleutianAI/codeterm/services/lsp"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	lspRoot string
	lspWait time.Duration

	// lspExtraOptions is appended to every manager built by these commands.
	lspExtraOptions []lsp.Option
)

// =============================================================================
// COMMANDS
// =============================================================================

var (
	lspCmd = &cobra.Command{
		Use:   "lsp",
		Short: "Talk to language servers",
	}

	lspServersCmd = &cobra.Command{
		Use:   "servers",
		Short: "List configured language servers and whether they are installed",
		Args:  cobra.NoArgs,
		RunE:  runLSPServers,
	}

	lspDiagnosticsCmd = &cobra.Command{
		Use:   "diagnostics <file>...",
		Short: "Open files in their language servers and print published diagnostics",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runLSPDiagnostics,
	}

	lspHoverCmd = &cobra.Command{
		Use:   "hover <file> <line:col>",
		Short: "Show hover information at a 1-based position",
		Args:  cobra.ExactArgs(2),
		RunE:  runLSPHover,
	}

	lspDefinitionCmd = &cobra.Command{
		Use:   "definition <file> <line:col>",
		Short: "Show where the symbol at a 1-based position is defined",
		Args:  cobra.ExactArgs(2),
		RunE:  runLSPDefinition,
	}
)

func init() {
	lspCmd.PersistentFlags().StringVar(&lspRoot, "root", "", "workspace root (default: current directory)")
	lspDiagnosticsCmd.Flags().DurationVar(&lspWait, "wait", 3*time.Second, "how long to wait for diagnostics")
	lspCmd.AddCommand(lspServersCmd, lspDiagnosticsCmd, lspHoverCmd, lspDefinitionCmd)
}

// =============================================================================
// SERVERS
// =============================================================================

// ServerStatus is one row of "lsp servers".
type ServerStatus struct {
	Language   string   `json:"language"`
	Command    string   `json:"command"`
	Extensions []string `json:"extensions"`
	Installed  bool     `json:"installed"`
	Path       string   `json:"path,omitempty"`
}

func serverStatuses(servers map[string]lsp.ServerConfig, lookPath func(string) (string, error)) []ServerStatus {
	langs := make([]string, 0, len(servers))
	for lang := range servers {
		langs = append(langs, lang)
	}
	sort.Strings(langs)

	out := make([]ServerStatus, 0, len(langs))
	for _, lang := range langs {
		s := servers[lang]
		st := ServerStatus{Language: lang, Command: s.Command, Extensions: s.Extensions}
		if p, err := lookPath(s.Command); err == nil {
			st.Installed, st.Path = true, p
		}
		out = append(out, st)
	}
	return out
}

func runLSPServers(cmd *cobra.Command, args []string) error {
	mc := app.cfg.ManagerConfig("")
	statuses := serverStatuses(mc.Servers, exec.LookPath)

	if jsonOutput {
		return OutputJSON(cmd.OutOrStdout(), statuses)
	}
	p := app.printer
	p.Title("Language servers")
	for _, st := range statuses {
		icon, detail := ux.IconSuccess, st.Path
		if !st.Installed {
			icon, detail = ux.IconPending, "not on PATH"
		}
		p.Status(icon, fmt.Sprintf("%-12s %s", st.Language, st.Command), detail)
	}
	return nil
}

// =============================================================================
// DIAGNOSTICS
// =============================================================================

// FileDiagnostics is the diagnostics result for one file.
type FileDiagnostics struct {
	Path        string           `json:"path"`
	Diagnostics []lsp.Diagnostic `json:"diagnostics"`
	Error       string           `json:"error,omitempty"`
}

func newLSPManager(opts ...lsp.Option) (*lsp.Manager, error) {
	if !app.cfg.LSP.Enabled {
		return nil, fmt.Errorf("lsp is disabled in the configuration")
	}
	root := lspRoot
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		root = wd
	}
	opts = append([]lsp.Option{lsp.WithLogger(app.logger.Slog())}, opts...)
	opts = append(opts, lspExtraOptions...)
	return lsp.NewManager(app.cfg.ManagerConfig(root), opts...), nil
}

func shutdownManager(m *lsp.Manager) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.ShutdownAll(ctx); err != nil {
		app.logger.Warn("language server shutdown", "error", err)
	}
}

func runLSPDiagnostics(cmd *cobra.Command, args []string) error {
	start := time.Now()
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	published := make(chan string, 64)
	manager, err := newLSPManager(lsp.WithNotificationHandler(lsp.MethodPublishDiagnostics,
		func(_ string, params json.RawMessage) {
			var p struct {
				URI string `json:"uri"`
			}
			if json.Unmarshal(params, &p) == nil {
				select {
				case published <- p.URI:
				default:
				}
			}
		}))
	if err != nil {
		return &ExitError{Code: CLIExitError, Err: err}
	}
	defer shutdownManager(manager)

	results := make([]FileDiagnostics, len(args))
	waiting := make(map[string]int)

	spin := ux.NewSpinner(app.printer, "Starting language servers")
	spin.Start()
	for i, path := range args {
		results[i].Path = path
		text, err := os.ReadFile(path)
		if err != nil {
			results[i].Error = err.Error()
			continue
		}
		spin.UpdateMessage("Opening " + path)
		if err := manager.OpenFile(ctx, path, string(text)); err != nil {
			results[i].Error = err.Error()
			continue
		}
		waiting[lsp.PathToURI(path)] = i
	}

	spin.UpdateMessage("Waiting for diagnostics")
	waitForPublications(ctx, published, waiting, lspWait)
	spin.Stop()

	errorsFound := false
	for i := range results {
		if results[i].Error != "" {
			continue
		}
		results[i].Diagnostics = manager.Diagnostics(results[i].Path)
		for _, d := range results[i].Diagnostics {
			if d.Severity == lsp.SeverityError {
				errorsFound = true
			}
		}
	}

	if jsonOutput {
		if err := OutputResult(cmd.OutOrStdout(), "lsp diagnostics", start, results, nil); err != nil {
			return err
		}
	} else {
		printDiagnostics(app.printer, results)
	}
	if errorsFound {
		return findings()
	}
	return nil
}

// waitForPublications returns once every uri in waiting has published,
// ctx is done, or limit elapses.
func waitForPublications(ctx context.Context, published <-chan string, waiting map[string]int, limit time.Duration) {
	pending := make(map[string]bool, len(waiting))
	for uri := range waiting {
		pending[uri] = true
	}
	timer := time.NewTimer(limit)
	defer timer.Stop()
	for len(pending) > 0 {
		select {
		case uri := <-published:
			delete(pending, uri)
		case <-timer.C:
			return
		case <-ctx.Done():
			return
		}
	}
}

func printDiagnostics(p *ux.Printer, results []FileDiagnostics) {
	for _, r := range results {
		switch {
		case r.Error != "":
			p.Status(ux.IconError, r.Path, r.Error)
		case len(r.Diagnostics) == 0:
			p.Status(ux.IconSuccess, r.Path, "no diagnostics")
		default:
			p.Status(worstIcon(r.Diagnostics), r.Path, summarize(r.Diagnostics))
			for _, d := range r.Diagnostics {
				p.Info("  " + d.String())
			}
		}
	}
}

func worstIcon(diags []lsp.Diagnostic) ux.Icon {
	icon := ux.IconInfo
	for _, d := range diags {
		switch d.Severity {
		case lsp.SeverityError:
			return ux.IconError
		case lsp.SeverityWarning:
			icon = ux.IconWarning
		}
	}
	return icon
}

// summarize renders counts per severity, e.g. "2 errors, 1 warning".
func summarize(diags []lsp.Diagnostic) string {
	counts := make(map[lsp.Severity]int)
	for _, d := range diags {
		counts[d.Severity]++
	}
	var parts []string
	for _, sev := range []lsp.Severity{lsp.SeverityError, lsp.SeverityWarning, lsp.SeverityInfo, lsp.SeverityHint} {
		n := counts[sev]
		if n == 0 {
			continue
		}
		name := sev.String()
		if n > 1 {
			name += "s"
		}
		parts = append(parts, fmt.Sprintf("%d %s", n, name))
	}
	return strings.Join(parts, ", ")
}

// =============================================================================
// HOVER / DEFINITION
// =============================================================================

// parsePosition converts a 1-based "line:col" argument to an LSP position.
func parsePosition(s string) (lsp.Position, error) {
	lineStr, colStr, ok := strings.Cut(s, ":")
	if !ok {
		return lsp.Position{}, fmt.Errorf("position %q: want line:col", s)
	}
	line, err := strconv.Atoi(lineStr)
	if err != nil || line < 1 {
		return lsp.Position{}, fmt.Errorf("position %q: invalid line", s)
	}
	col, err := strconv.Atoi(colStr)
	if err != nil || col < 1 {
		return lsp.Position{}, fmt.Errorf("position %q: invalid column", s)
	}
	return lsp.Position{Line: line - 1, Character: col - 1}, nil
}

// openForQuery starts the server for path, opens it and returns the client.
func openForQuery(ctx context.Context, manager *lsp.Manager, path string) (*lsp.Client, error) {
	text, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := manager.OpenFile(ctx, path, string(text)); err != nil {
		return nil, err
	}
	return manager.ClientFor(ctx, manager.DetectLanguage(path))
}

func runLSPHover(cmd *cobra.Command, args []string) error {
	pos, err := parsePosition(args[1])
	if err != nil {
		return &ExitError{Code: CLIExitError, Err: err}
	}
	manager, err := newLSPManager()
	if err != nil {
		return &ExitError{Code: CLIExitError, Err: err}
	}
	defer shutdownManager(manager)

	client, err := openForQuery(cmd.Context(), manager, args[0])
	if err != nil {
		return &ExitError{Code: CLIExitError, Err: err}
	}
	hover, err := client.Hover(cmd.Context(), lsp.PathToURI(args[0]), pos)
	if err != nil {
		return &ExitError{Code: CLIExitError, Err: err}
	}

	if jsonOutput {
		return OutputJSON(cmd.OutOrStdout(), hover)
	}
	if hover == nil || strings.TrimSpace(hover.Contents.Value) == "" {
		app.printer.Muted("no hover information")
		return nil
	}
	app.printer.Box(fmt.Sprintf("%s:%s", args[0], args[1]), strings.TrimSpace(hover.Contents.Value))
	return nil
}

func runLSPDefinition(cmd *cobra.Command, args []string) error {
	pos, err := parsePosition(args[1])
	if err != nil {
		return &ExitError{Code: CLIExitError, Err: err}
	}
	manager, err := newLSPManager()
	if err != nil {
		return &ExitError{Code: CLIExitError, Err: err}
	}
	defer shutdownManager(manager)

	client, err := openForQuery(cmd.Context(), manager, args[0])
	if err != nil {
		return &ExitError{Code: CLIExitError, Err: err}
	}
	locs, err := client.Definition(cmd.Context(), lsp.PathToURI(args[0]), pos)
	if err != nil {
		return &ExitError{Code: CLIExitError, Err: err}
	}

	if jsonOutput {
		return OutputJSON(cmd.OutOrStdout(), locs)
	}
	if len(locs) == 0 {
		app.printer.Muted("no definition found")
		return nil
	}
	for _, loc := range locs {
		path, err := lsp.URIToPath(loc.URI)
		if err != nil {
			path = loc.URI
		}
		app.printer.Status(ux.IconArrow, fmt.Sprintf("%s:%d:%d", path, loc.Range.Start.Line+1, loc.Range.Start.Character+1), "")
	}
	return nil
}
