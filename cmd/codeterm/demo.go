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
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/AleutianAI/codeterm/pkg/anim"
	"github.com/AleutianAI/codeterm/pkg/ux"
	"github.com/AleutianAI/codeterm/pkg/ux/dialog"
)

// =============================================================================
// Key bindings
// =============================================================================

type demoKeyMap struct {
	Open   key.Binding
	Modal  key.Binding
	Close  key.Binding
	Next   key.Binding
	Prev   key.Binding
	Notify key.Binding
	Pause  key.Binding
	Help   key.Binding
	Quit   key.Binding
}

func newDemoKeyMap() demoKeyMap {
	return demoKeyMap{
		Open:   key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "open dialog")),
		Modal:  key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "open modal")),
		Close:  key.NewBinding(key.WithKeys("c", "esc"), key.WithHelp("c", "close top")),
		Next:   key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "focus next")),
		Prev:   key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "focus prev")),
		Notify: key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "notification")),
		Pause:  key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "pause/resume")),
		Help:   key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more keys")),
		Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k demoKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Open, k.Close, k.Notify, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k demoKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Open, k.Modal, k.Close},
		{k.Next, k.Prev, k.Notify},
		{k.Pause, k.Help, k.Quit},
	}
}

// =============================================================================
// Model
// =============================================================================

// demoEasings are the curves shown as looping bars.
var demoEasings = []anim.Easing{
	anim.Linear,
	anim.EaseInOut,
	anim.EaseOutCubic,
	anim.EaseOutBounce,
	anim.EaseOutElastic,
}

const (
	demoTitleComponent = "title"
	demoBarWidth       = 40
	demoSlideDistance  = 24
)

type easingBar struct {
	easing anim.Easing
	clip   *anim.Clip
	bar    progress.Model
}

type demoDialog struct {
	number int
	modal  bool
}

// demoModel is the bubbletea model behind "anim demo".
//
// Description:
//
//	A heartbeat pulse clip schedules frames. Each frame advances the
//	easing bars, the dialog stack and the title colour transition. The
//	notification timeline is driven separately by TimelineFrameMsg so
//	that it stops scheduling once it completes.
//
// Thread Safety:
//
//	Owned by the bubbletea event loop.
type demoModel struct {
	clock  anim.Clock
	fps    int
	logger *slog.Logger

	keys demoKeyMap
	help help.Model

	width, height int

	heartbeat *anim.Clip
	bars      []easingBar
	colors    *anim.TransitionManager
	titleTo   anim.RGB

	dialogs *dialog.Manager
	opened  map[string]demoDialog
	count   int

	notice     *anim.Timeline
	noticeText string

	paused   bool
	quitting bool
}

// newDemoModel builds the demo driven by clock at fps frames per second.
func newDemoModel(clock anim.Clock, fps int, logger *slog.Logger) (*demoModel, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if fps <= 0 {
		fps = anim.DefaultFPS
	}
	heartbeat, err := anim.NewClip(anim.Pulse().WithFPS(fps), clock)
	if err != nil {
		return nil, fmt.Errorf("heartbeat clip: %w", err)
	}

	m := &demoModel{
		clock:     clock,
		fps:       fps,
		logger:    logger,
		keys:      newDemoKeyMap(),
		help:      help.New(),
		heartbeat: heartbeat,
		colors:    anim.NewTransitionManager(clock),
		titleTo:   ux.PulseGradient.At(1),
		dialogs:   dialog.NewManager(clock, dialog.WithLogger(logger)),
		opened:    make(map[string]demoDialog),
	}

	for i, e := range demoEasings {
		cfg := anim.DefaultClipConfig().
			WithDuration(time.Duration(1200+200*i) * time.Millisecond).
			WithEasing(e).
			WithLoops(0).
			WithReverse().
			WithFPS(fps)
		clip, err := anim.NewClip(cfg, clock)
		if err != nil {
			return nil, fmt.Errorf("%s clip: %w", e, err)
		}
		m.bars = append(m.bars, easingBar{
			easing: e,
			clip:   clip,
			bar: progress.New(
				progress.WithGradient(string(ux.ColorTealDeep), string(ux.ColorTealBright)),
				progress.WithoutPercentage(),
				progress.WithWidth(demoBarWidth),
			),
		})
	}
	return m, nil
}

// Init implements tea.Model.
func (m *demoModel) Init() tea.Cmd {
	m.heartbeat.Start()
	for _, b := range m.bars {
		b.clip.Start()
	}
	m.logger.Info("anim demo started", "fps", m.fps, "bars", len(m.bars))
	return anim.FrameCmd(m.heartbeat)
}

// Update implements tea.Model.
func (m *demoModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		width := max(10, min(demoBarWidth, msg.Width-24))
		for i := range m.bars {
			m.bars[i].bar.Width = width
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		if msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft {
			if id, ok := m.dialogs.HandleClick(msg.X, msg.Y); ok {
				m.logger.Debug("dialog clicked", "id", id, "x", msg.X, "y", msg.Y)
			}
		}
		return m, nil

	case anim.FrameMsg:
		if msg.Clip != m.heartbeat {
			return m, nil
		}
		m.frame()
		return m, anim.FrameCmd(m.heartbeat)

	case anim.TimelineFrameMsg:
		if msg.Timeline == nil || msg.Timeline != m.notice {
			return m, nil
		}
		return m, m.tickNotice()
	}
	return m, nil
}

// frame advances everything driven by the heartbeat.
func (m *demoModel) frame() {
	m.heartbeat.ShouldUpdate()
	for _, b := range m.bars {
		b.clip.ShouldUpdate()
	}
	for _, id := range m.dialogs.Tick() {
		delete(m.opened, id)
		m.logger.Debug("dialog removed", "id", id)
	}
	for _, id := range m.colors.Tick() {
		m.logger.Debug("transition finished", "component", id)
	}
}

func (m *demoModel) tickNotice() tea.Cmd {
	for _, ev := range m.notice.Tick() {
		m.logger.Debug("notification event", "event", ev.String())
	}
	if m.notice.State() == anim.Completed {
		return nil
	}
	return anim.TimelineFrameCmd(m.notice, m.fps)
}

func (m *demoModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Open):
		m.openDialog(false)

	case key.Matches(msg, m.keys.Modal):
		m.openDialog(true)

	case key.Matches(msg, m.keys.Close):
		if err := m.dialogs.CloseTop(); err != nil {
			m.logger.Warn("close dialog failed", "error", err)
		}

	case key.Matches(msg, m.keys.Next):
		m.dialogs.FocusNext()

	case key.Matches(msg, m.keys.Prev):
		m.dialogs.FocusPrev()

	case key.Matches(msg, m.keys.Notify):
		return m, m.showNotice()

	case key.Matches(msg, m.keys.Pause):
		m.togglePause()

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

func (m *demoModel) openDialog(modal bool) {
	m.count++
	offset := (m.count - 1) % 5
	area := dialog.Rect{X: 4 + 3*offset, Y: 3 + offset, Width: 30, Height: 7}
	id, err := m.dialogs.Open(area, modal)
	if err != nil {
		m.logger.Warn("open dialog failed", "error", err)
		return
	}
	m.opened[id] = demoDialog{number: m.count, modal: modal}

	// Swing the title colour between the ends of the pulse gradient.
	from := m.titleColor()
	to := ux.PulseGradient.At(0)
	if m.titleTo == to {
		to = ux.PulseGradient.At(1)
	}
	m.titleTo = to
	if err := m.colors.Begin(demoTitleComponent, anim.Color(from), anim.Color(to), anim.ColorChange(400*time.Millisecond)); err != nil {
		m.logger.Warn("title transition failed", "error", err)
	}
}

func (m *demoModel) showNotice() tea.Cmd {
	tl, err := anim.NotificationPopup(m.clock).Build()
	if err == nil {
		err = tl.Start()
	}
	if err != nil {
		m.logger.Warn("notification timeline failed", "error", err)
		return nil
	}
	m.notice = tl
	m.noticeText = fmt.Sprintf("Notification at %s", m.clock.Now().Format("15:04:05"))
	if m.paused {
		tl.Pause()
	}
	return anim.TimelineFrameCmd(tl, m.fps)
}

func (m *demoModel) togglePause() {
	m.paused = !m.paused
	for _, b := range m.bars {
		if m.paused {
			b.clip.Pause()
		} else {
			b.clip.Start()
		}
	}
	if m.notice != nil {
		if m.paused {
			m.notice.Pause()
		} else {
			m.notice.Resume()
		}
	}
	m.logger.Debug("demo pause toggled", "paused", m.paused)
}

func (m *demoModel) titleColor() anim.RGB {
	if p, ok := m.colors.Value(demoTitleComponent); ok {
		return p.Color
	}
	return ux.PulseGradient.At(m.heartbeat.Value())
}

// =============================================================================
// View
// =============================================================================

// View implements tea.Model.
func (m *demoModel) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder

	title := lipgloss.NewStyle().Bold(true).Foreground(m.titleColor().Lipgloss())
	b.WriteString(title.Render("codeterm animation demo"))
	if m.paused {
		b.WriteString(" " + ux.Styles.Warning.Render("[paused]"))
	}
	b.WriteString("\n\n")

	for _, bar := range m.bars {
		v := min(max(bar.clip.Value(), 0), 1)
		fmt.Fprintf(&b, "%-18s %s\n", bar.easing.String(), bar.bar.ViewAs(v))
	}
	b.WriteString("\n")

	if line := m.noticeView(); line != "" {
		b.WriteString(line + "\n\n")
	}

	for _, l := range m.dialogs.Layers() {
		if block := m.dialogView(l); block != "" {
			b.WriteString(block + "\n")
		}
	}

	b.WriteString("\n" + m.help.View(m.keys))
	return b.String()
}

func (m *demoModel) noticeView() string {
	if m.notice == nil || m.noticeText == "" {
		return ""
	}
	slide, _ := m.notice.Eased(anim.ClipSlide)
	fade, _ := m.notice.Eased(anim.ClipFade)
	offset := anim.SlideRight.Offset(demoSlideDistance, slide)
	color := anim.RGB{R: 0x2C, G: 0x4A, B: 0x54}.Lerp(ux.PulseGradient.At(1), fade)
	style := lipgloss.NewStyle().
		MarginLeft(offset.X).
		Foreground(color.Lipgloss()).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(color.Lipgloss()).
		Padding(0, 1)
	return style.Render(string(ux.IconInfo) + " " + m.noticeText)
}

func (m *demoModel) dialogView(l dialog.Layer) string {
	info := m.opened[l.ID]
	style := ux.Styles.Dialog
	if l.Focused {
		style = style.BorderForeground(ux.ColorTealBright)
	} else {
		style = style.BorderForeground(ux.ColorSlate)
	}

	kind := "dialog"
	if info.modal {
		kind = "modal"
	}
	body := fmt.Sprintf("%s #%d\nz=%d progress=%.2f", kind, info.number, l.Z, l.Progress)
	if l.Focused {
		body += "\n" + ux.Styles.Highlight.Render("focused")
	}
	rendered := dialog.RenderLayer(l, body, style)
	if rendered == "" {
		return ""
	}
	return lipgloss.NewStyle().MarginLeft(l.EffectiveArea().X).Render(rendered)
}
