// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/AleutianAI/codeterm/pkg/anim"
)

// SpinnerType defines the animation style
type SpinnerType int

const (
	SpinnerDots SpinnerType = iota
	SpinnerWave
	SpinnerLine
	SpinnerCompass
)

var spinnerFrames = map[SpinnerType][]string{
	SpinnerDots:    {"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
	SpinnerWave:    {"~", "≈", "≋", "≈"},
	SpinnerLine:    {"-", "\\", "|", "/"},
	SpinnerCompass: {"◐", "◓", "◑", "◒"},
}

// Spinner provides an animated loading indicator.
//
// Description:
//
//	Frames advance on the anim.Spinner clip (one frame per loop at the
//	loading frame rate) while the glyph colour follows an anim.Pulse clip
//	through PulseGradient. Outside rich mode the message is printed once.
type Spinner struct {
	printer  *Printer
	message  string
	spinType SpinnerType
	frameCfg anim.ClipConfig
	pulseCfg anim.ClipConfig

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	isRunning bool
	frames    int
}

// NewSpinner creates a new spinner with the given message
func NewSpinner(p *Printer, message string) *Spinner {
	return &Spinner{
		printer:  p,
		message:  message,
		spinType: SpinnerDots,
		frameCfg: anim.Spinner(),
		pulseCfg: anim.Pulse(),
	}
}

// WithType sets the spinner animation type
func (s *Spinner) WithType(t SpinnerType) *Spinner {
	s.spinType = t
	return s
}

// WithFrameClip overrides the clip that paces frames.
func (s *Spinner) WithFrameClip(cfg anim.ClipConfig) *Spinner {
	s.frameCfg = cfg
	return s
}

// Start begins the spinner animation
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return
	}
	s.isRunning = true

	if !s.printer.Mode().Interactive() {
		prefix := "PROGRESS: "
		if s.printer.Mode() == ModePlain {
			prefix = string(IconPending) + " "
		}
		s.printer.write(s.printer.out, "%s%s\n", prefix, s.message)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx, s.done)
}

func (s *Spinner) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	frames := spinnerFrames[s.spinType]
	frameClip := anim.MustClip(s.frameCfg, nil)
	pulse := anim.MustClip(s.pulseCfg, nil)
	frameClip.Start()
	pulse.Start()

	for {
		if err := frameClip.WaitNextFrame(ctx); err != nil {
			s.printer.write(s.printer.out, "\r\033[K")
			return
		}
		if !frameClip.ShouldUpdate() {
			continue
		}
		pulse.ShouldUpdate()

		glyph := frames[frameClip.CurrentLoop()%len(frames)]
		style := lipgloss.NewStyle().Bold(true).Foreground(PulseGradient.At(pulse.Value()).Lipgloss())

		s.mu.Lock()
		msg := s.message
		s.frames++
		s.mu.Unlock()

		s.printer.write(s.printer.out, "\r%s %s", style.Render(glyph), msg)
	}
}

// Stop halts the spinner animation
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Running reports whether the spinner is active.
func (s *Spinner) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// Frames returns the number of frames drawn so far.
func (s *Spinner) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// UpdateMessage changes the spinner message while running
func (s *Spinner) UpdateMessage(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}

// StopWithSuccess stops and prints a success message
func (s *Spinner) StopWithSuccess(message string) {
	s.Stop()
	s.printer.Success(message)
}

// StopWithError stops and prints an error message
func (s *Spinner) StopWithError(message string) {
	s.Stop()
	s.printer.Error(message)
}

// StopWithWarning stops and prints a warning message
func (s *Spinner) StopWithWarning(message string) {
	s.Stop()
	s.printer.Warning(message)
}

// WithSpinner runs a function with a spinner, handling success/error automatically
func WithSpinner(p *Printer, message string, fn func() error) error {
	spin := NewSpinner(p, message)
	spin.Start()

	if err := fn(); err != nil {
		spin.StopWithError(fmt.Sprintf("%s: %v", message, err))
		return err
	}

	spin.StopWithSuccess(message)
	return nil
}

// ProgressSpinner combines a spinner with progress tracking
type ProgressSpinner struct {
	*Spinner
	base    string
	current int
	total   int
}

// NewProgressSpinner creates a spinner that shows progress
func NewProgressSpinner(p *Printer, message string, total int) *ProgressSpinner {
	return &ProgressSpinner{
		Spinner: NewSpinner(p, message),
		base:    message,
		total:   total,
	}
}

// Increment advances the progress counter
func (p *ProgressSpinner) Increment() {
	p.mu.Lock()
	p.current++
	p.message = fmt.Sprintf("%s [%d/%d]", p.base, p.current, p.total)
	p.mu.Unlock()
}

// SetProgress sets the current progress value
func (p *ProgressSpinner) SetProgress(current int) {
	p.mu.Lock()
	p.current = current
	p.message = fmt.Sprintf("%s [%d/%d]", p.base, p.current, p.total)
	p.mu.Unlock()
}
