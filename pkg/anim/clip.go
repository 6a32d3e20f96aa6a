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
	"context"
	"time"
)

// State is the lifecycle state of a clip or timeline.
type State int

const (
	Idle State = iota
	Running
	Paused
	Completed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

// Clip is a single time-parameterised animation.
//
// Description:
//
//	Progress is (now - start - paused) / duration clamped to [0,1], where
//	start already includes the configured delay. When progress reaches 1
//	the loop counter increments; the clip completes once the loop cap is
//	reached, otherwise the next iteration starts from the current time.
//
// Thread Safety:
//
//	Not safe for concurrent use.
type Clip struct {
	cfg   ClipConfig
	clock Clock

	state       State
	start       time.Time
	pausedTotal time.Duration
	pauseStart  time.Time
	loop        int
	lastFrame   time.Time
}

// NewClip creates an idle clip. A nil clock uses the system clock.
func NewClip(cfg ClipConfig, clock Clock) (*Clip, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Clip{cfg: cfg, clock: clockOrSystem(clock)}, nil
}

// MustClip is NewClip for configs known to be valid, such as the presets.
func MustClip(cfg ClipConfig, clock Clock) *Clip {
	c, err := NewClip(cfg, clock)
	if err != nil {
		panic(err)
	}
	return c
}

// Config returns the clip's configuration.
func (c *Clip) Config() ClipConfig { return c.cfg }

// State returns the current state.
func (c *Clip) State() State { return c.state }

// CurrentLoop returns the number of completed iterations.
func (c *Clip) CurrentLoop() int { return c.loop }

// FrameInterval is the minimum time between frames.
func (c *Clip) FrameInterval() time.Duration { return c.cfg.FrameInterval() }

// Start begins the clip, or resumes it when paused. Starting a running
// clip does nothing; starting a completed clip restarts it.
func (c *Clip) Start() {
	now := c.clock.Now()
	switch c.state {
	case Running:
		return
	case Paused:
		c.pausedTotal += now.Sub(c.pauseStart)
		c.pauseStart = time.Time{}
	default:
		c.start = now.Add(c.cfg.Delay)
		c.pausedTotal = 0
		c.loop = 0
		c.lastFrame = time.Time{}
	}
	c.state = Running
}

// Pause freezes progress. Only a running clip can be paused.
func (c *Clip) Pause() {
	if c.state != Running {
		return
	}
	c.pauseStart = c.clock.Now()
	c.state = Paused
}

// Stop returns the clip to Idle. Stopping an idle clip does nothing.
func (c *Clip) Stop() {
	c.state = Idle
	c.start = time.Time{}
	c.pausedTotal = 0
	c.pauseStart = time.Time{}
	c.loop = 0
	c.lastFrame = time.Time{}
}

// Reset stops the clip and restarts it if it was running or paused.
func (c *Clip) Reset() {
	active := c.state == Running || c.state == Paused
	c.Stop()
	if active {
		c.Start()
	}
}

// Progress returns linear progress in [0,1].
func (c *Clip) Progress() float64 {
	switch c.state {
	case Idle:
		return 0
	case Completed:
		return 1
	case Paused:
		return c.progressAt(c.pauseStart)
	default:
		return c.progressAt(c.clock.Now())
	}
}

func (c *Clip) progressAt(now time.Time) float64 {
	if now.Before(c.start) {
		return 0
	}
	if c.cfg.Duration <= 0 {
		return 1
	}
	elapsed := now.Sub(c.start) - c.pausedTotal
	return clamp01(float64(elapsed) / float64(c.cfg.Duration))
}

// Eased returns Progress mapped through the clip's easing.
func (c *Clip) Eased() float64 {
	return Ease(c.Progress(), c.cfg.Easing)
}

// Value is the eased value to render. For reversing clips, odd iterations
// run from 1 back to 0.
func (c *Clip) Value() float64 {
	p := c.Progress()
	if c.cfg.Reverse && c.backward() {
		p = 1 - p
	}
	return Ease(p, c.cfg.Easing)
}

// backward reports whether the current (or, once completed, the last)
// iteration runs in reverse.
func (c *Clip) backward() bool {
	if c.state == Completed {
		return c.loop > 0 && (c.loop-1)%2 == 1
	}
	return c.loop%2 == 1
}

// ShouldUpdate reports whether a new frame is due, and advances looping.
//
// Description:
//
//	Returns false when the clip is not running or less than one frame
//	interval has passed since the last frame. Otherwise the frame time is
//	recorded, loop handling runs, and true is returned. The frame on which
//	the clip completes returns true.
func (c *Clip) ShouldUpdate() bool {
	if c.state != Running {
		return false
	}
	now := c.clock.Now()
	if !c.lastFrame.IsZero() && now.Sub(c.lastFrame) < c.FrameInterval() {
		return false
	}
	c.lastFrame = now
	c.advance(now)
	return true
}

// advance applies loop handling at now. It reports whether an iteration
// finished and whether the clip completed.
func (c *Clip) advance(now time.Time) (looped, completed bool) {
	if c.state != Running || c.progressAt(now) < 1 {
		return false, false
	}
	c.loop++
	if c.cfg.Loops > 0 && c.loop >= c.cfg.Loops {
		c.state = Completed
		return true, true
	}
	c.start = now
	c.pausedTotal = 0
	return true, false
}

// WaitNextFrame blocks until the next frame is due or ctx is done.
func (c *Clip) WaitNextFrame(ctx context.Context) error {
	wait := c.FrameInterval()
	if !c.lastFrame.IsZero() {
		wait -= c.clock.Now().Sub(c.lastFrame)
	}
	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
