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
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/codeterm/pkg/anim"
	"github.com/AleutianAI/codeterm/pkg/logging"
	"github.com/AleutianAI/codeterm/pkg/ux"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	plotWidth    int
	plotHeight   int
	timelineStep time.Duration
	timelineMax  time.Duration
)

// =============================================================================
// COMMANDS
// =============================================================================

var (
	animCmd = &cobra.Command{
		Use:   "anim",
		Short: "Explore the animation runtime",
	}

	animListCmd = &cobra.Command{
		Use:   "list",
		Short: "List easing functions",
		Args:  cobra.NoArgs,
		RunE:  runAnimList,
	}

	animPlotCmd = &cobra.Command{
		Use:   "plot <easing>",
		Short: "Plot an easing curve",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnimPlot,
	}

	animTimelineCmd = &cobra.Command{
		Use:       "timeline <entrance|exit|notification|sidebar>",
		Short:     "Simulate a preset timeline on a virtual clock and print its events",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"entrance", "exit", "notification", "sidebar"},
		RunE:      runAnimTimeline,
	}

	animDemoCmd = &cobra.Command{
		Use:   "demo",
		Short: "Interactive demo of clips, timelines and dialog layers",
		Args:  cobra.NoArgs,
		RunE:  runAnimDemo,
	}
)

func init() {
	animPlotCmd.Flags().IntVar(&plotWidth, "width", 48, "plot width in columns")
	animPlotCmd.Flags().IntVar(&plotHeight, "height", 16, "plot height in rows")
	animTimelineCmd.Flags().DurationVar(&timelineStep, "step", 10*time.Millisecond, "virtual clock step")
	animTimelineCmd.Flags().DurationVar(&timelineMax, "max", 10*time.Second, "stop after this much virtual time")
	animCmd.AddCommand(animListCmd, animPlotCmd, animTimelineCmd, animDemoCmd)
}

// =============================================================================
// LIST / PLOT
// =============================================================================

func runAnimList(cmd *cobra.Command, args []string) error {
	easings := anim.Easings()
	if jsonOutput {
		names := make([]string, len(easings))
		for i, e := range easings {
			names[i] = e.String()
		}
		return OutputJSON(cmd.OutOrStdout(), names)
	}
	for _, e := range easings {
		detail := ""
		if !e.IsMonotonic() {
			detail = "overshoots"
		}
		app.printer.Status(ux.IconBullet, e.String(), detail)
	}
	return nil
}

func runAnimPlot(cmd *cobra.Command, args []string) error {
	e, err := anim.ParseEasing(args[0])
	if err != nil {
		return &ExitError{Code: CLIExitError, Err: err}
	}
	if plotWidth < 2 || plotHeight < 2 {
		return &ExitError{Code: CLIExitError, Err: fmt.Errorf("plot needs at least 2x2, got %dx%d", plotWidth, plotHeight)}
	}
	rows := plotEasing(e, plotWidth, plotHeight)
	app.printer.Title(e.String())
	writePlot(cmd.OutOrStdout(), rows, app.printer.Mode())
	return nil
}

// plotEasing samples e across width columns and draws it into a grid of
// height rows. Row 0 is the top; values outside [0,1] are pinned to the
// nearest edge.
func plotEasing(e anim.Easing, width, height int) []string {
	grid := make([][]rune, height)
	for r := range grid {
		grid[r] = []rune(strings.Repeat(" ", width))
	}
	for x := 0; x < width; x++ {
		t := float64(x) / float64(width-1)
		y := anim.Ease(t, e)
		row := int(math.Round((1 - y) * float64(height-1)))
		row = min(max(row, 0), height-1)
		grid[row][x] = '•'
	}
	out := make([]string, height)
	for r := range grid {
		out[r] = string(grid[r])
	}
	return out
}

func writePlot(w io.Writer, rows []string, mode ux.Mode) {
	for i, row := range rows {
		label := "   "
		switch i {
		case 0:
			label = "1.0"
		case len(rows) - 1:
			label = "0.0"
		}
		line := row
		if mode.Colors() {
			t := 1 - float64(i)/float64(max(1, len(rows)-1))
			line = lipgloss.NewStyle().Foreground(ux.ProgressGradient.At(t).Lipgloss()).Render(row)
		}
		fmt.Fprintf(w, "%s │%s\n", label, line)
	}
	fmt.Fprintf(w, "    └%s\n", strings.Repeat("─", len([]rune(rows[0]))))
}

// =============================================================================
// TIMELINE SIMULATION
// =============================================================================

func presetTimeline(name string, clock anim.Clock) (*anim.Timeline, error) {
	var b *anim.TimelineBuilder
	switch name {
	case "entrance":
		b = anim.DialogEntrance(clock)
	case "exit":
		b = anim.DialogExit(clock)
	case "notification":
		b = anim.NotificationPopup(clock)
	case "sidebar":
		b = anim.SidebarSlide(clock, anim.SlideLeft)
	default:
		return nil, fmt.Errorf("unknown timeline %q", name)
	}
	return b.Build()
}

// TimedEvent is a timeline event stamped with virtual elapsed time.
type TimedEvent struct {
	Elapsed   time.Duration `json:"-"`
	ElapsedMS int64         `json:"elapsed_ms"`
	Event     string        `json:"event"`
}

// simulateTimeline runs tl on clock in fixed steps until it completes or
// limit elapses.
func simulateTimeline(tl *anim.Timeline, clock *anim.ManualClock, step, limit time.Duration) ([]TimedEvent, error) {
	if step <= 0 {
		return nil, fmt.Errorf("step must be positive")
	}
	if err := tl.Start(); err != nil {
		return nil, err
	}
	var events []TimedEvent
	for elapsed := time.Duration(0); elapsed <= limit; elapsed += step {
		for _, ev := range tl.Tick() {
			events = append(events, TimedEvent{Elapsed: elapsed, ElapsedMS: elapsed.Milliseconds(), Event: ev.String()})
		}
		if tl.State() == anim.Completed {
			break
		}
		clock.Advance(step)
	}
	return events, nil
}

func runAnimTimeline(cmd *cobra.Command, args []string) error {
	clock := anim.NewManualClock(time.Unix(0, 0))
	tl, err := presetTimeline(args[0], clock)
	if err != nil {
		return &ExitError{Code: CLIExitError, Err: err}
	}
	events, err := simulateTimeline(tl, clock, timelineStep, timelineMax)
	if err != nil {
		return &ExitError{Code: CLIExitError, Err: err}
	}

	if jsonOutput {
		return OutputJSON(cmd.OutOrStdout(), events)
	}
	for _, ev := range events {
		app.printer.KeyValue(fmt.Sprintf("%6dms", ev.Elapsed.Milliseconds()), ev.Event)
	}
	if tl.State() != anim.Completed {
		app.printer.Warning(fmt.Sprintf("timeline still running after %s", timelineMax))
	}
	return nil
}

// =============================================================================
// DEMO
// =============================================================================

func runAnimDemo(cmd *cobra.Command, args []string) error {
	if !app.printer.Mode().Interactive() {
		return &ExitError{Code: CLIExitError, Err: fmt.Errorf("anim demo needs an interactive terminal")}
	}
	// The alternate screen owns stderr while the program runs.
	logger := logging.New(logging.Config{
		Level:   app.level,
		LogDir:  app.cfg.Logging.Dir,
		Service: "codeterm",
		JSON:    true,
		Writer:  io.Discard,
	})
	defer logger.Close()

	model, err := newDemoModel(anim.SystemClock{}, app.cfg.Animation.FPS, logger.Slog())
	if err != nil {
		return &ExitError{Code: CLIExitError, Err: err}
	}
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(cmd.Context()))
	_, err = program.Run()
	return err
}
