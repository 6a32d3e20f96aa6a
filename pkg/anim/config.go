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

import "time"

// Frame rate defaults.
const (
	DefaultFPS        = 60
	DefaultLoadingFPS = 20
)

// ClipConfig describes a clip.
//
// Loops is the number of iterations before the clip completes; 0 loops
// forever. With Reverse set, odd iterations run the value backwards. Delay
// postpones the first iteration only.
type ClipConfig struct {
	Duration time.Duration `yaml:"duration" json:"duration"`
	Easing   Easing        `yaml:"easing" json:"easing"`
	FPS      int           `yaml:"fps" json:"fps"`
	Loops    int           `yaml:"loops" json:"loops"`
	Reverse  bool          `yaml:"reverse" json:"reverse"`
	Delay    time.Duration `yaml:"delay" json:"delay"`
}

// DefaultClipConfig is 300ms EaseInOut at 60fps, looping forever.
func DefaultClipConfig() ClipConfig {
	return ClipConfig{
		Duration: 300 * time.Millisecond,
		Easing:   EaseInOut,
		FPS:      DefaultFPS,
	}
}

// Validate rejects negative durations, rates and loop counts.
func (c ClipConfig) Validate() error {
	switch {
	case c.Duration < 0:
		return invalidf("negative duration %s", c.Duration)
	case c.Delay < 0:
		return invalidf("negative delay %s", c.Delay)
	case c.FPS < 0:
		return invalidf("negative fps %d", c.FPS)
	case c.Loops < 0:
		return invalidf("negative loop count %d", c.Loops)
	}
	return nil
}

// Infinite reports whether the clip loops forever.
func (c ClipConfig) Infinite() bool { return c.Loops == 0 }

// FrameInterval is the minimum time between frames.
func (c ClipConfig) FrameInterval() time.Duration {
	fps := c.FPS
	if fps <= 0 {
		fps = DefaultFPS
	}
	return time.Second / time.Duration(fps)
}

// WithDuration returns a copy with the given duration.
func (c ClipConfig) WithDuration(d time.Duration) ClipConfig {
	c.Duration = d
	return c
}

// WithEasing returns a copy with the given easing.
func (c ClipConfig) WithEasing(e Easing) ClipConfig {
	c.Easing = e
	return c
}

// WithDelay returns a copy with the given delay.
func (c ClipConfig) WithDelay(d time.Duration) ClipConfig {
	c.Delay = d
	return c
}

// WithLoops returns a copy with the given loop count.
func (c ClipConfig) WithLoops(n int) ClipConfig {
	c.Loops = n
	return c
}

// WithReverse returns a copy that alternates direction between loops.
func (c ClipConfig) WithReverse() ClipConfig {
	c.Reverse = true
	return c
}

// WithFPS returns a copy with the given frame rate.
func (c ClipConfig) WithFPS(fps int) ClipConfig {
	c.FPS = fps
	return c
}

// =============================================================================
// Presets
// =============================================================================

func oneShot(d time.Duration, e Easing) ClipConfig {
	return ClipConfig{Duration: d, Easing: e, FPS: DefaultFPS, Loops: 1}
}

// FadeIn is 300ms EaseOut.
func FadeIn() ClipConfig { return oneShot(300*time.Millisecond, EaseOut) }

// FadeOut is 200ms EaseIn.
func FadeOut() ClipConfig { return oneShot(200*time.Millisecond, EaseIn) }

// SlideIn is 400ms EaseOutQuad.
func SlideIn() ClipConfig { return oneShot(400*time.Millisecond, EaseOutQuad) }

// SlideOut is 250ms EaseInQuad.
func SlideOut() ClipConfig { return oneShot(250*time.Millisecond, EaseInQuad) }

// Bounce is 600ms EaseOutBounce.
func Bounce() ClipConfig { return oneShot(600*time.Millisecond, EaseOutBounce) }

// Pulse is a 1s EaseInOut clip that loops forever, alternating direction.
func Pulse() ClipConfig {
	return ClipConfig{
		Duration: time.Second,
		Easing:   EaseInOut,
		FPS:      DefaultFPS,
		Reverse:  true,
	}
}

// Spinner advances one spinner frame every 50ms at the loading frame rate.
func Spinner() ClipConfig {
	return ClipConfig{
		Duration: 50 * time.Millisecond,
		Easing:   Linear,
		FPS:      DefaultLoadingFPS,
	}
}
