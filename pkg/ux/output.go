// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling for the codeterm CLI.
package ux

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/AleutianAI/codeterm/pkg/anim"
)

// Palette - deep ocean teals and arctic waters
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // highlights, success
	ColorTealPrimary = lipgloss.Color("#20B9B4") // main brand colour
	ColorTealDeep    = lipgloss.Color("#16858E") // borders, accents
	ColorSlate       = lipgloss.Color("#2C4A54") // muted text, borders

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
	ColorInfo    = lipgloss.Color("#5DADE2")
	ColorMuted   = ColorSlate
)

// Gradients used by animated indicators.
var (
	// PulseGradient runs from deep teal to bright teal.
	PulseGradient = anim.NewGradient(
		anim.GradientStop{Pos: 0, Color: anim.RGB{R: 0x16, G: 0x85, B: 0x8E}},
		anim.GradientStop{Pos: 1, Color: anim.RGB{R: 0x2C, G: 0xD7, B: 0xC7}},
	)

	// ProgressGradient runs from amber through teal as work completes.
	ProgressGradient = anim.NewGradient(
		anim.GradientStop{Pos: 0, Color: anim.RGB{R: 0xF4, G: 0xD0, B: 0x3F}},
		anim.GradientStop{Pos: 0.5, Color: anim.RGB{R: 0x20, G: 0xB9, B: 0xB4}},
		anim.GradientStop{Pos: 1, Color: anim.RGB{R: 0x2C, G: 0xD7, B: 0xC7}},
	)
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Info      lipgloss.Style
	Highlight lipgloss.Style

	Box        lipgloss.Style
	WarningBox lipgloss.Style
	ErrorBox   lipgloss.Style
	Dialog     lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Subtitle:  lipgloss.NewStyle().Foreground(ColorTealPrimary),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Info:      lipgloss.NewStyle().Foreground(ColorInfo),
	Highlight: lipgloss.NewStyle().Foreground(ColorTealBright).Bold(true),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
	WarningBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorWarning).
		Padding(0, 1),
	ErrorBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorError).
		Padding(0, 1),
	Dialog: lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(ColorTealPrimary),
}

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconInfo    Icon = "ℹ"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
)

// Render returns the icon with appropriate styling
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending:
		return Styles.Muted.Render(string(i))
	case IconInfo:
		return Styles.Info.Render(string(i))
	default:
		return string(i)
	}
}

// =============================================================================
// Printer
// =============================================================================

// Printer writes styled lines according to a Mode.
//
// Thread Safety:
//
//	Safe for concurrent use; each call writes whole lines under a lock.
type Printer struct {
	out  io.Writer
	err  io.Writer
	mode Mode
	mu   sync.Mutex
}

// NewPrinter writes regular output to out and warnings and errors to errOut.
// A nil errOut uses out.
func NewPrinter(out, errOut io.Writer, mode Mode) *Printer {
	if errOut == nil {
		errOut = out
	}
	return &Printer{out: out, err: errOut, mode: mode}
}

// Mode returns the printer's mode.
func (p *Printer) Mode() Mode { return p.mode }

// Writer returns the regular output stream.
func (p *Printer) Writer() io.Writer { return p.out }

func (p *Printer) write(w io.Writer, format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(w, format, args...)
}

// Title prints a styled title. Machine mode prints nothing.
func (p *Printer) Title(text string) {
	switch p.mode {
	case ModeMachine:
	case ModePlain:
		p.write(p.out, "%s\n", text)
	default:
		p.write(p.out, "%s\n", Styles.Title.Render(text))
	}
}

// Success prints a success message with checkmark
func (p *Printer) Success(text string) {
	switch p.mode {
	case ModeMachine:
		p.write(p.out, "OK: %s\n", text)
	case ModePlain:
		p.write(p.out, "%s %s\n", IconSuccess, text)
	default:
		p.write(p.out, "%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
	}
}

// Warning prints a warning message
func (p *Printer) Warning(text string) {
	switch p.mode {
	case ModeMachine:
		p.write(p.err, "WARN: %s\n", text)
	case ModePlain:
		p.write(p.err, "%s %s\n", IconWarning, text)
	default:
		p.write(p.err, "%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
	}
}

// Error prints an error message
func (p *Printer) Error(text string) {
	switch p.mode {
	case ModeMachine:
		p.write(p.err, "ERROR: %s\n", text)
	case ModePlain:
		p.write(p.err, "%s %s\n", IconError, text)
	default:
		p.write(p.err, "%s %s\n", IconError.Render(), Styles.Error.Render(text))
	}
}

// Info prints an informational message
func (p *Printer) Info(text string) {
	switch p.mode {
	case ModeRich:
		p.write(p.out, "%s %s\n", Styles.Muted.Render("│"), text)
	default:
		p.write(p.out, "%s\n", text)
	}
}

// Muted prints secondary text. Machine mode prints nothing.
func (p *Printer) Muted(text string) {
	switch p.mode {
	case ModeMachine:
	case ModePlain:
		p.write(p.out, "%s\n", text)
	default:
		p.write(p.out, "%s\n", Styles.Muted.Render(text))
	}
}

// KeyValue prints an aligned "key: value" line.
func (p *Printer) KeyValue(key, value string) {
	switch p.mode {
	case ModeMachine:
		p.write(p.out, "%s=%s\n", key, value)
	case ModePlain:
		p.write(p.out, "%-16s %s\n", key+":", value)
	default:
		p.write(p.out, "%s %s\n", Styles.Subtitle.Render(fmt.Sprintf("%-16s", key+":")), value)
	}
}

// Box prints text in a rounded box
func (p *Printer) Box(title, content string) {
	switch p.mode {
	case ModeMachine:
		p.write(p.out, "%s: %s\n", title, content)
	case ModePlain:
		p.write(p.out, "%s\n%s\n", title, content)
	default:
		p.write(p.out, "%s\n", Styles.Box.Width(60).Render(Styles.Title.Render(title)+"\n"+content))
	}
}

// WarningBox prints text in a warning-styled box
func (p *Printer) WarningBox(title, content string) {
	switch p.mode {
	case ModeMachine:
		p.write(p.err, "WARN %s: %s\n", title, content)
	case ModePlain:
		p.write(p.err, "%s %s\n%s\n", IconWarning, title, content)
	default:
		p.write(p.err, "%s\n", Styles.WarningBox.Width(60).Render(Styles.Warning.Bold(true).Render(title)+"\n"+content))
	}
}

// Status prints a subject with a status icon and optional detail.
func (p *Printer) Status(status Icon, subject, detail string) {
	switch p.mode {
	case ModeMachine:
		p.write(p.out, "%s\t%s\t%s\n", status, subject, detail)
	case ModePlain:
		if detail != "" {
			p.write(p.out, "%s %s (%s)\n", status, subject, detail)
			return
		}
		p.write(p.out, "%s %s\n", status, subject)
	default:
		if detail != "" {
			p.write(p.out, "%s %s %s\n", status.Render(), subject, Styles.Muted.Render("("+detail+")"))
			return
		}
		p.write(p.out, "%s %s\n", status.Render(), subject)
	}
}

// ProgressBar renders a bar for current out of total. In rich mode the
// filled part is coloured along ProgressGradient.
func ProgressBar(mode Mode, current, total, width int) string {
	if mode == ModeMachine {
		return fmt.Sprintf("%d/%d", current, total)
	}
	pct := 0.0
	if total > 0 {
		pct = float64(current) / float64(total)
	}
	pct = min(max(pct, 0), 1)
	filled := int(pct * float64(width))
	empty := width - filled

	if mode == ModePlain {
		return fmt.Sprintf("[%s%s] %3.0f%%", strings.Repeat("#", filled), strings.Repeat(".", empty), pct*100)
	}
	fill := lipgloss.NewStyle().Foreground(ProgressGradient.At(pct).Lipgloss())
	bar := fill.Render(strings.Repeat("█", filled)) + Styles.Muted.Render(strings.Repeat("░", empty))
	return fmt.Sprintf("%s %3.0f%%", bar, pct*100)
}
