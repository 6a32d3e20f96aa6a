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

// Step is one clip in a sequence or parallel group.
type Step struct {
	ID     string
	Config ClipConfig
}

// TimelineBuilder assembles a timeline fluently. The first error is kept
// and returned by Build; later calls are ignored.
type TimelineBuilder struct {
	tl  *Timeline
	err error
}

// NewTimelineBuilder starts an empty timeline on clock.
func NewTimelineBuilder(clock Clock) *TimelineBuilder {
	return &TimelineBuilder{tl: NewTimeline(clock)}
}

func (b *TimelineBuilder) add(id string, cfg ClipConfig, opts ClipOptions) *TimelineBuilder {
	if b.err == nil {
		b.err = b.tl.AddClip(id, cfg, opts)
	}
	return b
}

// Add adds a clip that starts with the timeline.
func (b *TimelineBuilder) Add(id string, cfg ClipConfig) *TimelineBuilder {
	return b.add(id, cfg, ClipOptions{})
}

// AddWithDelay adds a clip that starts delay after the timeline.
func (b *TimelineBuilder) AddWithDelay(id string, cfg ClipConfig, delay time.Duration) *TimelineBuilder {
	return b.add(id, cfg, ClipOptions{Delay: delay})
}

// AddAfter adds a clip that starts once every id in dependsOn completes.
func (b *TimelineBuilder) AddAfter(id string, cfg ClipConfig, dependsOn ...string) *TimelineBuilder {
	return b.add(id, cfg, ClipOptions{DependsOn: dependsOn})
}

// AddParallel adds a clip tagged with group.
func (b *TimelineBuilder) AddParallel(id string, cfg ClipConfig, group string) *TimelineBuilder {
	return b.add(id, cfg, ClipOptions{ParallelGroup: group})
}

// AddSequence adds steps that run one after another.
func (b *TimelineBuilder) AddSequence(steps ...Step) *TimelineBuilder {
	prev := ""
	for _, s := range steps {
		var deps []string
		if prev != "" {
			deps = []string{prev}
		}
		b.add(s.ID, s.Config, ClipOptions{DependsOn: deps})
		prev = s.ID
	}
	return b
}

// AddParallelGroup adds steps that start together, tagged with group.
func (b *TimelineBuilder) AddParallelGroup(group string, steps ...Step) *TimelineBuilder {
	for _, s := range steps {
		b.add(s.ID, s.Config, ClipOptions{ParallelGroup: group})
	}
	return b
}

// Build returns the timeline or the first error.
func (b *TimelineBuilder) Build() (*Timeline, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.tl, nil
}
