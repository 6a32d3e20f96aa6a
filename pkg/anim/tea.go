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
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// FrameMsg is delivered to a bubbletea program when a clip frame is due.
type FrameMsg struct {
	Clip *Clip
	Time time.Time
}

// FrameCmd schedules the next frame of clip. The model should call
// ShouldUpdate on receipt and return FrameCmd again while the clip runs.
func FrameCmd(clip *Clip) tea.Cmd {
	return tea.Tick(clip.FrameInterval(), func(t time.Time) tea.Msg {
		return FrameMsg{Clip: clip, Time: t}
	})
}

// TimelineFrameMsg is delivered when a timeline frame is due.
type TimelineFrameMsg struct {
	Timeline *Timeline
	Time     time.Time
}

// TimelineFrameCmd schedules the next timeline tick at fps, or DefaultFPS
// when fps is not positive.
func TimelineFrameCmd(tl *Timeline, fps int) tea.Cmd {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return tea.Tick(time.Second/time.Duration(fps), func(t time.Time) tea.Msg {
		return TimelineFrameMsg{Timeline: tl, Time: t}
	})
}
