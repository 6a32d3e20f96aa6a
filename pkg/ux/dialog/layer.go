// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dialog keeps stacked dialogs in z order, hit-tests them and
// animates them in and out.
//
// Rectangles are supplied by the host's layout; this package never
// negotiates size and never draws to the terminal itself.
package dialog

import (
	"errors"
	"fmt"
	"sort"
)

// ErrDuplicateZ indicates a layer added at a z another layer holds.
var ErrDuplicateZ = errors.New("duplicate layer z")

// Rect is a cell rectangle in screen space.
type Rect struct {
	X, Y, Width, Height int
}

// Contains reports whether (x, y) lies inside r.
func (r Rect) Contains(x, y int) bool {
	return x >= r.X && x < r.X+r.Width && y >= r.Y && y < r.Y+r.Height
}

// Overlaps reports whether r and o share at least one cell.
func (r Rect) Overlaps(o Rect) bool {
	return !(r.X+r.Width <= o.X || o.X+o.Width <= r.X ||
		r.Y+r.Height <= o.Y || o.Y+o.Height <= r.Y)
}

// Center returns the centre cell, rounding toward the origin.
func (r Rect) Center() (x, y int) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Empty reports whether r has no cells.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Layer is one dialog on the stack.
type Layer struct {
	ID       string
	Area     Rect
	Focused  bool
	Z        int
	Visible  bool
	Progress float64
	Modal    bool
}

// NewLayer returns a visible, fully shown layer.
func NewLayer(id string, area Rect, z int) Layer {
	return Layer{ID: id, Area: area, Z: z, Visible: true, Progress: 1}
}

// EffectiveArea is Area scaled about its centre by Progress.
//
// Description:
//
//	Width and height are multiplied by Progress (clamped to [0,1]) and
//	truncated; the rectangle is offset by half the lost size so that it
//	stays centred. At Progress 1 the full Area is returned.
func (l Layer) EffectiveArea() Rect {
	p := clamp01(l.Progress)
	if p >= 1 {
		return l.Area
	}
	w := int(float64(l.Area.Width) * p)
	h := int(float64(l.Area.Height) * p)
	return Rect{
		X:      l.Area.X + (l.Area.Width-w)/2,
		Y:      l.Area.Y + (l.Area.Height-h)/2,
		Width:  w,
		Height: h,
	}
}

func clamp01(v float64) float64 {
	switch {
	case v != v || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// =============================================================================
// Layer manager
// =============================================================================

// LayerManager holds layers in strictly ascending z order; no two layers
// share a z.
//
// Thread Safety:
//
//	Not safe for concurrent use.
type LayerManager struct {
	layers []Layer
}

// NewLayerManager returns an empty manager.
func NewLayerManager() *LayerManager {
	return &LayerManager{}
}

func (m *LayerManager) sort() {
	sort.SliceStable(m.layers, func(i, j int) bool { return m.layers[i].Z < m.layers[j].Z })
}

func (m *LayerManager) index(id string) int {
	for i := range m.layers {
		if m.layers[i].ID == id {
			return i
		}
	}
	return -1
}

// Add inserts l, replacing any layer with the same id. When l is focused,
// focus is removed from every other layer.
//
// Outputs:
//
//	error - ErrDuplicateZ if another layer already has l.Z. Nothing changes.
func (m *LayerManager) Add(l Layer) error {
	for _, other := range m.layers {
		if other.Z == l.Z && other.ID != l.ID {
			return fmt.Errorf("add layer %s: %w: z %d is held by %s", l.ID, ErrDuplicateZ, l.Z, other.ID)
		}
	}
	l.Progress = clamp01(l.Progress)
	if i := m.index(l.ID); i >= 0 {
		m.layers = append(m.layers[:i], m.layers[i+1:]...)
	}
	if l.Focused {
		m.clearFocus()
	}
	m.layers = append(m.layers, l)
	m.sort()
	return nil
}

// Remove deletes the layer with id.
func (m *LayerManager) Remove(id string) (Layer, bool) {
	i := m.index(id)
	if i < 0 {
		return Layer{}, false
	}
	l := m.layers[i]
	m.layers = append(m.layers[:i], m.layers[i+1:]...)
	return l, true
}

// Get returns a copy of the layer with id.
func (m *LayerManager) Get(id string) (Layer, bool) {
	i := m.index(id)
	if i < 0 {
		return Layer{}, false
	}
	return m.layers[i], true
}

// Layers returns a copy of every layer in rendering order, lowest z first.
func (m *LayerManager) Layers() []Layer {
	return append([]Layer(nil), m.layers...)
}

// Len returns the number of layers.
func (m *LayerManager) Len() int { return len(m.layers) }

// Clear removes every layer.
func (m *LayerManager) Clear() { m.layers = nil }

// LayerAt returns the highest visible layer whose area contains (x, y).
func (m *LayerManager) LayerAt(x, y int) (Layer, bool) {
	for i := len(m.layers) - 1; i >= 0; i-- {
		if l := m.layers[i]; l.Visible && l.Area.Contains(x, y) {
			return l, true
		}
	}
	return Layer{}, false
}

// LayersIn returns the visible layers overlapping r, lowest z first.
func (m *LayerManager) LayersIn(r Rect) []Layer {
	var out []Layer
	for _, l := range m.layers {
		if l.Visible && l.Area.Overlaps(r) {
			out = append(out, l)
		}
	}
	return out
}

// VisibleCount returns the number of visible layers.
func (m *LayerManager) VisibleCount() int {
	n := 0
	for _, l := range m.layers {
		if l.Visible {
			n++
		}
	}
	return n
}

// SetFocus focuses the layer with id and unfocuses every other layer. It
// reports whether id exists; focus is unchanged otherwise.
func (m *LayerManager) SetFocus(id string) bool {
	i := m.index(id)
	if i < 0 {
		return false
	}
	m.clearFocus()
	m.layers[i].Focused = true
	return true
}

// ClearFocus unfocuses every layer.
func (m *LayerManager) ClearFocus() { m.clearFocus() }

func (m *LayerManager) clearFocus() {
	for i := range m.layers {
		m.layers[i].Focused = false
	}
}

// Focused returns the focused layer.
func (m *LayerManager) Focused() (Layer, bool) {
	for _, l := range m.layers {
		if l.Focused {
			return l, true
		}
	}
	return Layer{}, false
}

// Topmost returns the visible layer with the highest z.
func (m *LayerManager) Topmost() (Layer, bool) {
	for i := len(m.layers) - 1; i >= 0; i-- {
		if m.layers[i].Visible {
			return m.layers[i], true
		}
	}
	return Layer{}, false
}

// Bottommost returns the visible layer with the lowest z.
func (m *LayerManager) Bottommost() (Layer, bool) {
	for _, l := range m.layers {
		if l.Visible {
			return l, true
		}
	}
	return Layer{}, false
}

// MaxZ returns the highest z, or -1 when empty.
func (m *LayerManager) MaxZ() int {
	if len(m.layers) == 0 {
		return -1
	}
	return m.layers[len(m.layers)-1].Z
}

// BringToFront sets the layer's z to one above the current maximum.
func (m *LayerManager) BringToFront(id string) bool {
	i := m.index(id)
	if i < 0 {
		return false
	}
	m.layers[i].Z = m.layers[len(m.layers)-1].Z + 1
	m.sort()
	return true
}

// SendToBack sets the layer's z to one below the current minimum.
func (m *LayerManager) SendToBack(id string) bool {
	i := m.index(id)
	if i < 0 {
		return false
	}
	m.layers[i].Z = m.layers[0].Z - 1
	m.sort()
	return true
}

// SetVisible shows or hides a layer.
func (m *LayerManager) SetVisible(id string, visible bool) bool {
	i := m.index(id)
	if i < 0 {
		return false
	}
	m.layers[i].Visible = visible
	return true
}

// SetProgress sets a layer's animation progress, clamped to [0,1].
func (m *LayerManager) SetProgress(id string, progress float64) bool {
	i := m.index(id)
	if i < 0 {
		return false
	}
	m.layers[i].Progress = clamp01(progress)
	return true
}

// SetArea moves or resizes a layer.
func (m *LayerManager) SetArea(id string, area Rect) bool {
	i := m.index(id)
	if i < 0 {
		return false
	}
	m.layers[i].Area = area
	return true
}
