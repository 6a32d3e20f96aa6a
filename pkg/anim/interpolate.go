// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package anim

import (
	"fmt"
	"math"
	"sort"

	"github.com/charmbracelet/lipgloss"
	colorful "github.com/lucasb-eyer/go-colorful"
)

// Lerp interpolates between a and b. t is not clamped, so overshooting
// easings carry through.
func Lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// LerpInt interpolates and rounds to the nearest integer.
func LerpInt(a, b int, t float64) int {
	return int(math.Round(Lerp(float64(a), float64(b), t)))
}

// =============================================================================
// Colour
// =============================================================================

// RGB is an 8-bit colour.
type RGB struct {
	R, G, B uint8
}

// ParseHex parses "#rrggbb" or "#rgb".
func ParseHex(s string) (RGB, error) {
	c, err := colorful.Hex(s)
	if err != nil {
		return RGB{}, fmt.Errorf("parse colour %q: %w", s, err)
	}
	r, g, b := c.RGB255()
	return RGB{R: r, G: g, B: b}, nil
}

// Lerp interpolates each channel, truncating toward zero. t is clamped to
// [0,1]; the endpoints are returned exactly.
func (c RGB) Lerp(to RGB, t float64) RGB {
	t = clamp01(t)
	return RGB{
		R: lerpChannel(c.R, to.R, t),
		G: lerpChannel(c.G, to.G, t),
		B: lerpChannel(c.B, to.B, t),
	}
}

func lerpChannel(a, b uint8, t float64) uint8 {
	return uint8(Lerp(float64(a), float64(b), t))
}

// Hex returns "#rrggbb".
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Lipgloss returns the colour for use in lipgloss styles.
func (c RGB) Lipgloss() lipgloss.Color {
	return lipgloss.Color(c.Hex())
}

func (c RGB) colorful() colorful.Color {
	return colorful.Color{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}
}

// ToHSL converts to hue/saturation/lightness.
func (c RGB) ToHSL() HSL {
	h, s, l := c.colorful().Hsl()
	return NewHSL(h, s, l)
}

// HSL is a colour with hue in degrees [0,360) and saturation and lightness
// in [0,1].
type HSL struct {
	H, S, L float64
}

// NewHSL wraps the hue into [0,360) and clamps saturation and lightness.
func NewHSL(h, s, l float64) HSL {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	return HSL{H: h, S: clamp01(s), L: clamp01(l)}
}

// ToRGB converts to 8-bit RGB, rounding each channel.
func (c HSL) ToRGB() RGB {
	r, g, b := colorful.Hsl(c.H, c.S, c.L).Clamped().RGB255()
	return RGB{R: r, G: g, B: b}
}

// Lerp interpolates saturation and lightness linearly and the hue along
// the shorter arc of the colour wheel.
func (c HSL) Lerp(to HSL, t float64) HSL {
	t = clamp01(t)
	dh := to.H - c.H
	switch {
	case dh > 180:
		dh -= 360
	case dh < -180:
		dh += 360
	}
	return NewHSL(c.H+dh*t, Lerp(c.S, to.S, t), Lerp(c.L, to.L, t))
}

// =============================================================================
// Geometry
// =============================================================================

// Point is a cell position.
type Point struct {
	X, Y int
}

// Lerp interpolates both coordinates with rounding.
func (p Point) Lerp(to Point, t float64) Point {
	return Point{X: LerpInt(p.X, to.X, t), Y: LerpInt(p.Y, to.Y, t)}
}

// Rect is a cell rectangle.
type Rect struct {
	X, Y, Width, Height int
}

// Lerp interpolates position and size with rounding. Sizes never go
// negative.
func (r Rect) Lerp(to Rect, t float64) Rect {
	return Rect{
		X:      LerpInt(r.X, to.X, t),
		Y:      LerpInt(r.Y, to.Y, t),
		Width:  max(0, LerpInt(r.Width, to.Width, t)),
		Height: max(0, LerpInt(r.Height, to.Height, t)),
	}
}

// =============================================================================
// Curves
// =============================================================================

// Bezier evaluates a one-dimensional Bezier curve with the given control
// values at t using de Casteljau's algorithm. No control values yields 0.
func Bezier(t float64, ctrl ...float64) float64 {
	if len(ctrl) == 0 {
		return 0
	}
	work := append([]float64(nil), ctrl...)
	for n := len(work) - 1; n > 0; n-- {
		for i := 0; i < n; i++ {
			work[i] = Lerp(work[i], work[i+1], t)
		}
	}
	return work[0]
}

// GradientStop places a colour at a position in [0,1].
type GradientStop struct {
	Pos   float64
	Color RGB
}

// Gradient maps [0,1] onto colour stops.
type Gradient struct {
	stops []GradientStop
}

// NewGradient sorts stops by position.
func NewGradient(stops ...GradientStop) Gradient {
	sorted := append([]GradientStop(nil), stops...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Pos < sorted[j].Pos })
	return Gradient{stops: sorted}
}

// At returns the colour at t. Outside the stop range the nearest end stop
// is returned; an empty gradient is black.
func (g Gradient) At(t float64) RGB {
	switch len(g.stops) {
	case 0:
		return RGB{}
	case 1:
		return g.stops[0].Color
	}
	first, last := g.stops[0], g.stops[len(g.stops)-1]
	if t <= first.Pos {
		return first.Color
	}
	if t >= last.Pos {
		return last.Color
	}
	for i := 1; i < len(g.stops); i++ {
		a, b := g.stops[i-1], g.stops[i]
		if t > b.Pos {
			continue
		}
		span := b.Pos - a.Pos
		if span <= 0 {
			return b.Color
		}
		return a.Color.Lerp(b.Color, (t-a.Pos)/span)
	}
	return last.Color
}

// Keyframe is a value at a time in [0,1]. Easing shapes the segment that
// leaves this keyframe.
type Keyframe[T any] struct {
	At     float64
	Value  T
	Easing Easing
}

// Keyframes interpolates a value of any type through sorted keyframes.
type Keyframes[T any] struct {
	frames []Keyframe[T]
	lerp   func(a, b T, t float64) T
}

// NewKeyframes sorts frames by time. lerp blends two values.
func NewKeyframes[T any](lerp func(a, b T, t float64) T, frames ...Keyframe[T]) *Keyframes[T] {
	sorted := append([]Keyframe[T](nil), frames...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].At < sorted[j].At })
	return &Keyframes[T]{frames: sorted, lerp: lerp}
}

// At returns the value at t, holding the end values outside the keyframe
// range. With no keyframes it returns the zero value.
func (k *Keyframes[T]) At(t float64) T {
	var zero T
	if len(k.frames) == 0 {
		return zero
	}
	first, last := k.frames[0], k.frames[len(k.frames)-1]
	if t <= first.At {
		return first.Value
	}
	if t >= last.At {
		return last.Value
	}
	for i := 1; i < len(k.frames); i++ {
		a, b := k.frames[i-1], k.frames[i]
		if t > b.At {
			continue
		}
		span := b.At - a.At
		if span <= 0 {
			return b.Value
		}
		return k.lerp(a.Value, b.Value, Ease((t-a.At)/span, a.Easing))
	}
	return last.Value
}
