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
	"sort"
	"time"
)

// =============================================================================
// Properties
// =============================================================================

// PropertyKind identifies what a Property animates.
type PropertyKind int

const (
	PropOpacity PropertyKind = iota
	PropPosition
	PropSize
	PropColor
	PropScale
	PropRotation
	PropCustom
)

func (k PropertyKind) String() string {
	switch k {
	case PropOpacity:
		return "opacity"
	case PropPosition:
		return "position"
	case PropSize:
		return "size"
	case PropColor:
		return "color"
	case PropScale:
		return "scale"
	case PropRotation:
		return "rotation"
	case PropCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// Property is an animatable UI value. Which fields are meaningful depends
// on Kind; build values with the constructors below.
type Property struct {
	Kind  PropertyKind
	Name  string
	Value float64
	X, Y  int
	Color RGB
}

// Opacity is a scalar in [0,1].
func Opacity(v float64) Property { return Property{Kind: PropOpacity, Value: v} }

// Position is a cell offset.
func Position(x, y int) Property { return Property{Kind: PropPosition, X: x, Y: y} }

// Size is a width and height in cells.
func Size(w, h int) Property { return Property{Kind: PropSize, X: w, Y: h} }

// Color is an RGB colour.
func Color(c RGB) Property { return Property{Kind: PropColor, Color: c} }

// Scale is a scale factor.
func Scale(v float64) Property { return Property{Kind: PropScale, Value: v} }

// Rotation is an angle in degrees.
func Rotation(deg float64) Property { return Property{Kind: PropRotation, Value: deg} }

// Custom is a named scalar.
func Custom(name string, v float64) Property { return Property{Kind: PropCustom, Name: name, Value: v} }

// Compatible reports whether p can be interpolated toward to.
func (p Property) Compatible(to Property) bool {
	return p.Kind == to.Kind && (p.Kind != PropCustom || p.Name == to.Name)
}

// Interpolate blends p toward to. Integer components truncate toward zero.
func (p Property) Interpolate(to Property, t float64) (Property, error) {
	if !p.Compatible(to) {
		return Property{}, invalidf("cannot interpolate %s into %s", p.describe(), to.describe())
	}
	out := p
	switch p.Kind {
	case PropPosition, PropSize:
		out.X = p.X + int(float64(to.X-p.X)*t)
		out.Y = p.Y + int(float64(to.Y-p.Y)*t)
		if p.Kind == PropSize {
			out.X, out.Y = max(0, out.X), max(0, out.Y)
		}
	case PropColor:
		out.Color = p.Color.Lerp(to.Color, t)
	default:
		out.Value = Lerp(p.Value, to.Value, t)
	}
	return out, nil
}

func (p Property) describe() string {
	if p.Kind == PropCustom {
		return fmt.Sprintf("custom(%s)", p.Name)
	}
	return p.Kind.String()
}

// =============================================================================
// Transition configs
// =============================================================================

// ScaleUp is an EaseOutBounce transition.
func ScaleUp(d time.Duration) ClipConfig { return oneShot(d, EaseOutBounce) }

// ScaleDown is an EaseInQuad transition.
func ScaleDown(d time.Duration) ClipConfig { return oneShot(d, EaseInQuad) }

// ColorChange is an EaseInOut transition.
func ColorChange(d time.Duration) ClipConfig { return oneShot(d, EaseInOut) }

// ElasticBounce is an EaseOutElastic transition.
func ElasticBounce(d time.Duration) ClipConfig { return oneShot(d, EaseOutElastic) }

// QuickSnap is an EaseInOutQuart transition.
func QuickSnap(d time.Duration) ClipConfig { return oneShot(d, EaseInOutQuart) }

// SlideDirection is the edge a sliding element enters from.
type SlideDirection int

const (
	SlideLeft SlideDirection = iota
	SlideRight
	SlideUp
	SlideDown
)

func (d SlideDirection) String() string {
	switch d {
	case SlideLeft:
		return "left"
	case SlideRight:
		return "right"
	case SlideUp:
		return "up"
	case SlideDown:
		return "down"
	default:
		return "unknown"
	}
}

// Offset is the displacement of an element sliding in from distance cells
// away, at eased progress. It reaches the origin at progress 1.
func (d SlideDirection) Offset(distance int, progress float64) Point {
	rem := LerpInt(distance, 0, progress)
	switch d {
	case SlideLeft:
		return Point{X: -rem}
	case SlideRight:
		return Point{X: rem}
	case SlideUp:
		return Point{Y: -rem}
	default:
		return Point{Y: rem}
	}
}

// =============================================================================
// Preset timelines
// =============================================================================

// Clip ids used by the preset timelines.
const (
	ClipFade  = "fade"
	ClipScale = "scale"
	ClipSlide = "slide"
	ClipPulse = "pulse"
)

// DialogEntrance fades and scales in together over 300ms.
func DialogEntrance(clock Clock) *TimelineBuilder {
	return NewTimelineBuilder(clock).AddParallelGroup("entrance",
		Step{ID: ClipFade, Config: FadeIn().WithDuration(300 * time.Millisecond)},
		Step{ID: ClipScale, Config: ScaleUp(300 * time.Millisecond)},
	)
}

// DialogExit fades and scales out together over 200ms.
func DialogExit(clock Clock) *TimelineBuilder {
	return NewTimelineBuilder(clock).AddParallelGroup("exit",
		Step{ID: ClipFade, Config: FadeOut().WithDuration(200 * time.Millisecond)},
		Step{ID: ClipScale, Config: ScaleDown(200 * time.Millisecond)},
	)
}

// SidebarSlide slides in over 400ms. The clip is tagged with the group
// "slide_<dir>" so the host can recover the direction when applying
// SlideDirection.Offset.
func SidebarSlide(clock Clock, dir SlideDirection) *TimelineBuilder {
	return NewTimelineBuilder(clock).AddParallel(ClipSlide, SlideIn().WithDuration(400*time.Millisecond), "slide_"+dir.String())
}

// NotificationPopup slides down over 300ms, then fades in over 200ms after
// a 100ms pause.
func NotificationPopup(clock Clock) *TimelineBuilder {
	return NewTimelineBuilder(clock).AddSequence(
		Step{ID: ClipSlide, Config: SlideIn().WithDuration(300 * time.Millisecond)},
		Step{ID: ClipFade, Config: FadeIn().WithDuration(200 * time.Millisecond).WithDelay(100 * time.Millisecond)},
	)
}

// LoadingPulse is an endless 1s reversing pulse.
func LoadingPulse(clock Clock) *TimelineBuilder {
	return NewTimelineBuilder(clock).Add(ClipPulse, Pulse())
}

// =============================================================================
// Transition manager
// =============================================================================

type transition struct {
	from, to Property
	current  Property
	clip     *Clip
}

// TransitionManager animates one property per component.
//
// Thread Safety:
//
//	Not safe for concurrent use.
type TransitionManager struct {
	clock       Clock
	transitions map[string]*transition
}

// NewTransitionManager creates an empty manager.
func NewTransitionManager(clock Clock) *TransitionManager {
	return &TransitionManager{clock: clockOrSystem(clock), transitions: make(map[string]*transition)}
}

// Begin starts animating componentID from one value to another, replacing
// any transition already running for it. A config that loops forever is
// run once.
func (m *TransitionManager) Begin(componentID string, from, to Property, cfg ClipConfig) error {
	if !from.Compatible(to) {
		return invalidf("cannot interpolate %s into %s", from.describe(), to.describe())
	}
	if cfg.Loops == 0 {
		cfg.Loops = 1
	}
	clip, err := NewClip(cfg, m.clock)
	if err != nil {
		return err
	}
	clip.Start()
	m.transitions[componentID] = &transition{from: from, to: to, current: from, clip: clip}
	return nil
}

// Tick advances every transition and returns the components that finished
// on this tick, sorted.
func (m *TransitionManager) Tick() []string {
	now := m.clock.Now()
	var done []string
	for id, tr := range m.transitions {
		if tr.clip.State() != Running {
			continue
		}
		_, finished := tr.clip.advance(now)
		if finished {
			tr.current = tr.to
			done = append(done, id)
			continue
		}
		// Compatibility was checked in Begin.
		tr.current, _ = tr.from.Interpolate(tr.to, tr.clip.Eased())
	}
	sort.Strings(done)
	return done
}

// Value returns the current value for componentID.
func (m *TransitionManager) Value(componentID string) (Property, bool) {
	tr, ok := m.transitions[componentID]
	if !ok {
		return Property{}, false
	}
	return tr.current, true
}

// IsTransitioning reports whether componentID has an unfinished transition.
func (m *TransitionManager) IsTransitioning(componentID string) bool {
	tr, ok := m.transitions[componentID]
	return ok && tr.clip.State() != Completed
}

// Remove forgets componentID.
func (m *TransitionManager) Remove(componentID string) {
	delete(m.transitions, componentID)
}
