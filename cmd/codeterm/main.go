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
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/codeterm/pkg/config"
	"github.com/AleutianAI/codeterm/pkg/logging"
	"github.com/AleutianAI/codeterm/pkg/ux"
)

// --- Global flags ---
var (
	configPath string
	logLevel   string
	outputMode string
	jsonOutput bool

	// app is populated by PersistentPreRunE before any subcommand runs.
	app *appContext

	rootCmd = &cobra.Command{
		Use:   "codeterm",
		Short: "Terminal coding host: language servers, tool permissions and animated UI",
		Long: `codeterm drives language servers over stdio, decides whether agent
tool operations may run, and renders animated terminal dialogs.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setupApp,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if app != nil {
				app.close()
			}
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.codeterm/codeterm.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&outputMode, "output", "", "output mode: rich, plain or machine (default: detect)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit JSON results")

	rootCmd.AddCommand(lspCmd, policyCmd, animCmd, serveMetricsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			if exitErr.Err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", exitErr.Err)
			}
			os.Exit(exitErr.Code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(CLIExitError)
	}
}

// appContext carries the per-invocation configuration and shared services.
type appContext struct {
	cfg     *config.Config
	level   logging.Level
	logger  *logging.Logger
	printer *ux.Printer
}

func setupApp(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		def, err := config.DefaultPath()
		if err != nil {
			return err
		}
		path = def
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return err
	}

	app, err = newAppContext(cfg, cmd)
	return err
}

func newAppContext(cfg *config.Config, cmd *cobra.Command) (*appContext, error) {
	levelName := cfg.Logging.Level
	if logLevel != "" {
		levelName = logLevel
	}
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}

	mode := ux.DetectMode(os.Stdout)
	if outputMode != "" {
		mode = ux.ParseMode(outputMode)
	}
	if jsonOutput {
		mode = ux.ModeMachine
	}

	logger := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: "codeterm",
		JSON:    cfg.Logging.JSON,
		Writer:  cmd.ErrOrStderr(),
	})

	return &appContext{
		cfg:     cfg,
		level:   level,
		logger:  logger,
		printer: ux.NewPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode),
	}, nil
}

func (a *appContext) close() {
	_ = a.logger.Close()
}
