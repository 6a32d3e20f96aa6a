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
)

// Easing selects a curve mapping linear progress in [0,1] to eased progress.
type Easing int

const (
	Linear Easing = iota
	EaseIn
	EaseOut
	EaseInOut
	EaseInQuad
	EaseOutQuad
	EaseInOutQuad
	EaseInCubic
	EaseOutCubic
	EaseInOutCubic
	EaseInQuart
	EaseOutQuart
	EaseInOutQuart
	EaseInBounce
	EaseOutBounce
	EaseInOutBounce
	EaseInElastic
	EaseOutElastic
	EaseInOutElastic
)

var easingNames = [...]string{
	Linear:           "linear",
	EaseIn:           "ease_in",
	EaseOut:          "ease_out",
	EaseInOut:        "ease_in_out",
	EaseInQuad:       "ease_in_quad",
	EaseOutQuad:      "ease_out_quad",
	EaseInOutQuad:    "ease_in_out_quad",
	EaseInCubic:      "ease_in_cubic",
	EaseOutCubic:     "ease_out_cubic",
	EaseInOutCubic:   "ease_in_out_cubic",
	EaseInQuart:      "ease_in_quart",
	EaseOutQuart:     "ease_out_quart",
	EaseInOutQuart:   "ease_in_out_quart",
	EaseInBounce:     "ease_in_bounce",
	EaseOutBounce:    "ease_out_bounce",
	EaseInOutBounce:  "ease_in_out_bounce",
	EaseInElastic:    "ease_in_elastic",
	EaseOutElastic:   "ease_out_elastic",
	EaseInOutElastic: "ease_in_out_elastic",
}

// Easings lists every easing in declaration order.
func Easings() []Easing {
	out := make([]Easing, len(easingNames))
	for i := range easingNames {
		out[i] = Easing(i)
	}
	return out
}

func (e Easing) String() string {
	if e >= 0 && int(e) < len(easingNames) {
		return easingNames[e]
	}
	return fmt.Sprintf("easing(%d)", int(e))
}

// ParseEasing accepts the snake_case names returned by String.
func ParseEasing(s string) (Easing, error) {
	for i, name := range easingNames {
		if name == s {
			return Easing(i), nil
		}
	}
	return Linear, fmt.Errorf("%w: %q", ErrUnknownEasing, s)
}

// MarshalText encodes the easing by name.
func (e Easing) MarshalText() ([]byte, error) {
	if e < 0 || int(e) >= len(easingNames) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownEasing, int(e))
	}
	return []byte(easingNames[e]), nil
}

// UnmarshalText decodes an easing name.
func (e *Easing) UnmarshalText(text []byte) error {
	parsed, err := ParseEasing(string(text))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// Elastic period constants.
const (
	elasticPeriod      = 0.3
	elasticInOutPeriod = 0.3 * 1.5
)

// Ease applies the easing to t. t is clamped to [0,1] first; every easing
// maps 0 to 0 and 1 to 1.
func Ease(t float64, e Easing) float64 {
	t = clamp01(t)

	switch e {
	case Linear:
		return t
	case EaseIn, EaseInQuad:
		return t * t
	case EaseOut, EaseOutQuad:
		return 1 - (1-t)*(1-t)
	case EaseInOut, EaseInOutQuad:
		if t < 0.5 {
			return 2 * t * t
		}
		return 1 - 2*(1-t)*(1-t)
	case EaseInCubic:
		return t * t * t
	case EaseOutCubic:
		return 1 - math.Pow(1-t, 3)
	case EaseInOutCubic:
		if t < 0.5 {
			return 4 * t * t * t
		}
		return 1 - 4*math.Pow(1-t, 3)
	case EaseInQuart:
		return math.Pow(t, 4)
	case EaseOutQuart:
		return 1 - math.Pow(1-t, 4)
	case EaseInOutQuart:
		if t < 0.5 {
			return 8 * math.Pow(t, 4)
		}
		return 1 - 8*math.Pow(1-t, 4)
	case EaseInBounce:
		return 1 - bounceOut(1-t)
	case EaseOutBounce:
		return bounceOut(t)
	case EaseInOutBounce:
		if t < 0.5 {
			return (1 - bounceOut(1-2*t)) / 2
		}
		return (1 + bounceOut(2*t-1)) / 2
	case EaseInElastic:
		if t == 0 || t == 1 {
			return t
		}
		s := elasticPeriod / 4
		return -(math.Pow(2, 10*(t-1)) * math.Sin((t-1-s)*(2*math.Pi)/elasticPeriod))
	case EaseOutElastic:
		if t == 0 || t == 1 {
			return t
		}
		s := elasticPeriod / 4
		return math.Pow(2, -10*t)*math.Sin((t-s)*(2*math.Pi)/elasticPeriod) + 1
	case EaseInOutElastic:
		if t == 0 || t == 1 {
			return t
		}
		s := elasticInOutPeriod / 4
		u := 2*t - 1
		if t < 0.5 {
			return -0.5 * (math.Pow(2, 10*u) * math.Sin((u-s)*(2*math.Pi)/elasticInOutPeriod))
		}
		return 0.5*math.Pow(2, -10*u)*math.Sin((u-s)*(2*math.Pi)/elasticInOutPeriod) + 1
	default:
		return t
	}
}

// bounceOut is the piecewise out-bounce curve.
func bounceOut(t float64) float64 {
	const n = 7.5625
	const d = 2.75
	switch {
	case t < 1/d:
		return n * t * t
	case t < 2/d:
		t -= 1.5 / d
		return n*t*t + 0.75
	case t < 2.5/d:
		t -= 2.25 / d
		return n*t*t + 0.9375
	default:
		t -= 2.625 / d
		return n*t*t + 0.984375
	}
}

// IsMonotonic reports whether the easing never decreases on [0,1]. Bounce
// and elastic curves overshoot or dip.
func (e Easing) IsMonotonic() bool {
	switch e {
	case EaseInBounce, EaseOutBounce, EaseInOutBounce,
		EaseInElastic, EaseOutElastic, EaseInOutElastic:
		return false
	default:
		return true
	}
}

func clamp01(t float64) float64 {
	switch {
	case math.IsNaN(t):
		return 0
	case t < 0:
		return 0
	case t > 1:
		return 1
	default:
		return t
	}
}
