// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dialog

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/AleutianAI/codeterm/pkg/anim"
)

// ErrNotFound indicates an unknown dialog id.
var ErrNotFound = errors.New("dialog not found")

type transition struct {
	clip    *anim.Clip
	closing bool
}

// Manager opens, closes and focuses dialogs and drives their entrance and
// exit animations.
//
// Description:
//
//	Each opened dialog gets a layer above every existing one and the
//	focus. Tick advances the entrance and exit clips and copies their
//	eased value into the layer's Progress; a closing dialog's layer is
//	removed once its exit clip completes.
//
// Thread Safety:
//
//	Not safe for concurrent use. Drive it from the host's update loop.
type Manager struct {
	clock       anim.Clock
	layers      *LayerManager
	transitions map[string]*transition
	enter, exit anim.ClipConfig
	animate     bool
	logger      *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. A nil logger uses slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithAnimations enables or disables entrance and exit animations. When
// disabled dialogs appear and disappear immediately.
func WithAnimations(enabled bool) Option {
	return func(m *Manager) { m.animate = enabled }
}

// WithClips overrides the entrance and exit clip configs.
func WithClips(enter, exit anim.ClipConfig) Option {
	return func(m *Manager) { m.enter, m.exit = enter, exit }
}

// NewManager creates a manager reading time from clock.
func NewManager(clock anim.Clock, opts ...Option) *Manager {
	m := &Manager{
		clock:       clock,
		layers:      NewLayerManager(),
		transitions: make(map[string]*transition),
		enter:       anim.FadeIn(),
		exit:        anim.FadeOut(),
		animate:     true,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.clock == nil {
		m.clock = anim.SystemClock{}
	}
	return m
}

// Open stacks a new dialog on top, focuses it and starts its entrance.
//
// Outputs:
//
//	string - The new dialog id.
//	error - Non-nil if the entrance clip config is invalid.
func (m *Manager) Open(area Rect, modal bool) (string, error) {
	id := uuid.NewString()
	layer := NewLayer(id, area, m.layers.MaxZ()+1)
	layer.Modal = modal
	layer.Focused = true

	if m.animate {
		clip, err := anim.NewClip(m.enter, m.clock)
		if err != nil {
			return "", fmt.Errorf("open dialog: %w", err)
		}
		clip.Start()
		m.transitions[id] = &transition{clip: clip}
		layer.Progress = 0
	}

	if err := m.layers.Add(layer); err != nil {
		delete(m.transitions, id)
		return "", fmt.Errorf("open dialog: %w", err)
	}
	m.logger.Debug("dialog opened", "id", id, "z", layer.Z, "modal", modal)
	return id, nil
}

// Close starts the exit animation of dialog id and moves focus to the
// topmost remaining dialog. Closing a dialog that is already closing does
// nothing.
func (m *Manager) Close(id string) error {
	layer, ok := m.layers.Get(id)
	if !ok {
		return fmt.Errorf("close %s: %w", id, ErrNotFound)
	}
	if tr, ok := m.transitions[id]; ok && tr.closing {
		return nil
	}

	if !m.animate {
		m.remove(id)
		return nil
	}

	clip, err := anim.NewClip(m.exit, m.clock)
	if err != nil {
		return fmt.Errorf("close dialog: %w", err)
	}
	clip.Start()
	m.transitions[id] = &transition{clip: clip, closing: true}

	if layer.Focused {
		m.focusTopmostOpen()
	}
	m.logger.Debug("dialog closing", "id", id)
	return nil
}

// CloseTop closes the topmost open dialog, if any.
func (m *Manager) CloseTop() error {
	open := m.openLayers()
	if len(open) == 0 {
		return nil
	}
	return m.Close(open[len(open)-1].ID)
}

func (m *Manager) remove(id string) {
	layer, _ := m.layers.Remove(id)
	delete(m.transitions, id)
	if layer.Focused {
		m.focusTopmostOpen()
	}
	m.logger.Debug("dialog closed", "id", id)
}

func (m *Manager) focusTopmostOpen() {
	open := m.openLayers()
	if len(open) == 0 {
		m.layers.ClearFocus()
		return
	}
	m.layers.SetFocus(open[len(open)-1].ID)
}

// openLayers returns visible layers that are not closing, lowest z first.
func (m *Manager) openLayers() []Layer {
	var out []Layer
	for _, l := range m.layers.Layers() {
		if !l.Visible || m.closing(l.ID) {
			continue
		}
		out = append(out, l)
	}
	return out
}

func (m *Manager) closing(id string) bool {
	tr, ok := m.transitions[id]
	return ok && tr.closing
}

// Tick advances animations and returns the ids of dialogs removed on this
// tick.
func (m *Manager) Tick() []string {
	var removed []string
	for _, l := range m.layers.Layers() {
		tr, ok := m.transitions[l.ID]
		if !ok {
			continue
		}
		tr.clip.ShouldUpdate()
		v := tr.clip.Eased()
		if tr.closing {
			v = 1 - v
		}
		m.layers.SetProgress(l.ID, v)

		if tr.clip.State() != anim.Completed {
			continue
		}
		if tr.closing {
			m.remove(l.ID)
			removed = append(removed, l.ID)
			continue
		}
		delete(m.transitions, l.ID)
	}
	return removed
}

// Animating reports whether any dialog is entering or leaving.
func (m *Manager) Animating() bool {
	return len(m.transitions) > 0
}

// FocusNext moves focus to the next open dialog in z order, wrapping
// around, and returns its id.
func (m *Manager) FocusNext() (string, bool) {
	return m.cycleFocus(1)
}

// FocusPrev moves focus to the previous open dialog in z order, wrapping
// around, and returns its id.
func (m *Manager) FocusPrev() (string, bool) {
	return m.cycleFocus(-1)
}

func (m *Manager) cycleFocus(step int) (string, bool) {
	open := m.openLayers()
	if len(open) == 0 {
		return "", false
	}
	cur := -1
	for i, l := range open {
		if l.Focused {
			cur = i
			break
		}
	}
	var next int
	switch {
	case cur < 0 && step > 0:
		next = 0
	case cur < 0:
		next = len(open) - 1
	default:
		next = (cur + step + len(open)) % len(open)
	}
	id := open[next].ID
	m.layers.SetFocus(id)
	return id, true
}

// HandleClick focuses and raises the open dialog under (x, y).
func (m *Manager) HandleClick(x, y int) (string, bool) {
	hit, ok := m.layers.LayerAt(x, y)
	if !ok || m.closing(hit.ID) {
		return "", false
	}
	m.layers.SetFocus(hit.ID)
	if top, ok := m.layers.Topmost(); ok && top.ID != hit.ID {
		m.layers.BringToFront(hit.ID)
	}
	return hit.ID, true
}

// HasModal reports whether an open dialog is modal.
func (m *Manager) HasModal() bool {
	for _, l := range m.openLayers() {
		if l.Modal {
			return true
		}
	}
	return false
}

// Focused returns the focused dialog.
func (m *Manager) Focused() (Layer, bool) { return m.layers.Focused() }

// Get returns the dialog with id.
func (m *Manager) Get(id string) (Layer, bool) { return m.layers.Get(id) }

// Layers returns every dialog in rendering order.
func (m *Manager) Layers() []Layer { return m.layers.Layers() }

// Len returns the number of dialogs, including those still closing.
func (m *Manager) Len() int { return m.layers.Len() }
