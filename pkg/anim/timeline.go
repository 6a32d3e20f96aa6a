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
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Events
// =============================================================================

// EventKind identifies a timeline event.
type EventKind int

const (
	ClipStarted EventKind = iota
	ClipCompleted
	ClipLooped
	TimelineCompleted
	TimelinePaused
	TimelineResumed
)

func (k EventKind) String() string {
	switch k {
	case ClipStarted:
		return "clip_started"
	case ClipCompleted:
		return "clip_completed"
	case ClipLooped:
		return "clip_looped"
	case TimelineCompleted:
		return "timeline_completed"
	case TimelinePaused:
		return "timeline_paused"
	case TimelineResumed:
		return "timeline_resumed"
	default:
		return "unknown"
	}
}

// Event is emitted by a timeline. ClipID is empty for timeline-level
// events; Loop is set for ClipLooped.
type Event struct {
	Kind   EventKind
	ClipID string
	Loop   int
	At     time.Time
}

func (e Event) String() string {
	switch {
	case e.Kind == ClipLooped:
		return fmt.Sprintf("%s(%s, %d)", e.Kind, e.ClipID, e.Loop)
	case e.ClipID != "":
		return fmt.Sprintf("%s(%s)", e.Kind, e.ClipID)
	default:
		return e.Kind.String()
	}
}

// =============================================================================
// Timeline
// =============================================================================

// ClipOptions schedules a clip on a timeline. Delay is measured from the
// timeline start and excludes time spent paused.
type ClipOptions struct {
	Delay         time.Duration
	DependsOn     []string
	ParallelGroup string
}

type entry struct {
	id        string
	clip      *Clip
	opts      ClipOptions
	started   bool
	completed bool
}

// Timeline schedules a DAG of clips.
//
// Description:
//
//	Each Tick first starts every entry whose dependencies have completed
//	and whose delay has elapsed, then advances running entries and records
//	completions. Entries are visited in insertion order, so events within
//	a tick are deterministic. When every entry has completed the timeline
//	completes.
//
// Thread Safety:
//
//	Not safe for concurrent use.
type Timeline struct {
	id    string
	clock Clock
	state State

	entries []*entry
	index   map[string]*entry

	start       time.Time
	pausedTotal time.Duration
	pauseStart  time.Time

	completedOrder []string
	events         []Event
}

// NewTimeline creates an empty idle timeline.
func NewTimeline(clock Clock) *Timeline {
	return &Timeline{
		id:    uuid.NewString(),
		clock: clockOrSystem(clock),
		index: make(map[string]*entry),
	}
}

// ID is a unique instance id.
func (t *Timeline) ID() string { return t.id }

// State returns the timeline state.
func (t *Timeline) State() State { return t.state }

// Len returns the number of entries.
func (t *Timeline) Len() int { return len(t.entries) }

// AddClip adds a clip.
//
// Outputs:
//
//	error - *InvalidConfigError for an empty or duplicate id, an invalid
//	        config, or a dependency that would close a cycle. Dependencies
//	        on ids not yet added are allowed until Start.
func (t *Timeline) AddClip(id string, cfg ClipConfig, opts ClipOptions) error {
	if id == "" {
		return invalidf("clip id must not be empty")
	}
	if _, ok := t.index[id]; ok {
		return invalidf("duplicate clip id %q", id)
	}
	clip, err := NewClip(cfg, t.clock)
	if err != nil {
		return fmt.Errorf("clip %q: %w", id, err)
	}
	opts.DependsOn = append([]string(nil), opts.DependsOn...)
	if path := t.cycleThrough(id, opts.DependsOn); path != nil {
		return invalidf("dependency cycle %v", path)
	}

	e := &entry{id: id, clip: clip, opts: opts}
	t.entries = append(t.entries, e)
	t.index[id] = e
	return nil
}

// cycleThrough reports a cycle that adding id with deps would create, as
// the path from id back to itself, or nil.
func (t *Timeline) cycleThrough(id string, deps []string) []string {
	visited := make(map[string]bool)
	var walk func(node string, path []string) []string
	walk = func(node string, path []string) []string {
		if node == id {
			return append(path, node)
		}
		if visited[node] {
			return nil
		}
		visited[node] = true
		e, ok := t.index[node]
		if !ok {
			return nil
		}
		next := append(append([]string(nil), path...), node)
		for _, dep := range e.opts.DependsOn {
			if found := walk(dep, next); found != nil {
				return found
			}
		}
		return nil
	}
	for _, dep := range deps {
		if found := walk(dep, []string{id}); found != nil {
			return found
		}
	}
	return nil
}

// RemoveClip removes a clip and drops it from other entries' dependency
// sets. It reports whether the clip existed.
func (t *Timeline) RemoveClip(id string) bool {
	if _, ok := t.index[id]; !ok {
		return false
	}
	delete(t.index, id)
	kept := t.entries[:0]
	for _, e := range t.entries {
		if e.id == id {
			continue
		}
		deps := e.opts.DependsOn[:0]
		for _, dep := range e.opts.DependsOn {
			if dep != id {
				deps = append(deps, dep)
			}
		}
		e.opts.DependsOn = deps
		kept = append(kept, e)
	}
	t.entries = kept
	for i, done := range t.completedOrder {
		if done == id {
			t.completedOrder = append(t.completedOrder[:i], t.completedOrder[i+1:]...)
			break
		}
	}
	return true
}

// Start resets every entry and starts the timeline.
//
// Outputs:
//
//	error - *InvalidConfigError if an entry depends on an unknown id.
func (t *Timeline) Start() error {
	for _, e := range t.entries {
		for _, dep := range e.opts.DependsOn {
			if _, ok := t.index[dep]; !ok {
				return invalidf("clip %q depends on unknown clip %q", e.id, dep)
			}
		}
	}
	t.reset()
	t.start = t.clock.Now()
	t.state = Running
	return nil
}

func (t *Timeline) reset() {
	for _, e := range t.entries {
		e.clip.Stop()
		e.started = false
		e.completed = false
	}
	t.completedOrder = nil
	t.pausedTotal = 0
	t.pauseStart = time.Time{}
}

// Pause pauses the timeline and every running clip.
func (t *Timeline) Pause() {
	if t.state != Running {
		return
	}
	now := t.clock.Now()
	t.pauseStart = now
	for _, e := range t.entries {
		e.clip.Pause()
	}
	t.state = Paused
	t.emit(Event{Kind: TimelinePaused, At: now})
}

// Resume continues a paused timeline.
func (t *Timeline) Resume() {
	if t.state != Paused {
		return
	}
	now := t.clock.Now()
	t.pausedTotal += now.Sub(t.pauseStart)
	t.pauseStart = time.Time{}
	for _, e := range t.entries {
		if e.clip.State() == Paused {
			e.clip.Start()
		}
	}
	t.state = Running
	t.emit(Event{Kind: TimelineResumed, At: now})
}

// Stop stops every clip, clears completion records and returns the
// timeline to Idle.
func (t *Timeline) Stop() {
	t.reset()
	t.state = Idle
}

// Tick advances the timeline and returns the events it produced.
func (t *Timeline) Tick() []Event {
	if t.state != Running {
		return nil
	}
	now := t.clock.Now()
	elapsed := now.Sub(t.start) - t.pausedTotal
	mark := len(t.events)

	for _, e := range t.entries {
		if e.started || elapsed < e.opts.Delay || !t.depsDone(e) {
			continue
		}
		e.clip.Start()
		e.started = true
		t.emit(Event{Kind: ClipStarted, ClipID: e.id, At: now})
	}

	for _, e := range t.entries {
		if !e.started || e.completed {
			continue
		}
		looped, done := e.clip.advance(now)
		switch {
		case done:
			e.completed = true
			t.completedOrder = append(t.completedOrder, e.id)
			t.emit(Event{Kind: ClipCompleted, ClipID: e.id, At: now})
		case looped:
			t.emit(Event{Kind: ClipLooped, ClipID: e.id, Loop: e.clip.CurrentLoop(), At: now})
		}
	}

	if len(t.completedOrder) == len(t.entries) {
		t.state = Completed
		t.emit(Event{Kind: TimelineCompleted, At: now})
	}

	out := make([]Event, len(t.events)-mark)
	copy(out, t.events[mark:])
	return out
}

func (t *Timeline) depsDone(e *entry) bool {
	for _, dep := range e.opts.DependsOn {
		d, ok := t.index[dep]
		if !ok || !d.completed {
			return false
		}
	}
	return true
}

func (t *Timeline) emit(ev Event) {
	t.events = append(t.events, ev)
}

// Events returns every event since the last ClearEvents.
func (t *Timeline) Events() []Event {
	out := make([]Event, len(t.events))
	copy(out, t.events)
	return out
}

// ClearEvents discards recorded events.
func (t *Timeline) ClearEvents() {
	t.events = nil
}

// Progress is the fraction of completed entries; an empty timeline
// reports 1.
func (t *Timeline) Progress() float64 {
	if len(t.entries) == 0 {
		return 1
	}
	return float64(len(t.completedOrder)) / float64(len(t.entries))
}

// Clip returns the clip for id.
func (t *Timeline) Clip(id string) (*Clip, bool) {
	e, ok := t.index[id]
	if !ok {
		return nil, false
	}
	return e.clip, true
}

// ClipProgress returns the linear progress of clip id.
func (t *Timeline) ClipProgress(id string) (float64, bool) {
	e, ok := t.index[id]
	if !ok {
		return 0, false
	}
	return e.clip.Progress(), true
}

// Eased returns the eased progress of clip id.
func (t *Timeline) Eased(id string) (float64, bool) {
	e, ok := t.index[id]
	if !ok {
		return 0, false
	}
	return e.clip.Eased(), true
}

// Value returns the direction-aware eased value of clip id.
func (t *Timeline) Value(id string) (float64, bool) {
	e, ok := t.index[id]
	if !ok {
		return 0, false
	}
	return e.clip.Value(), true
}

// Running returns the ids of started, uncompleted clips in insertion order.
func (t *Timeline) Running() []string {
	var ids []string
	for _, e := range t.entries {
		if e.started && !e.completed {
			ids = append(ids, e.id)
		}
	}
	return ids
}

// Completed returns completed clip ids in completion order.
func (t *Timeline) Completed() []string {
	return append([]string(nil), t.completedOrder...)
}

// IsClipCompleted reports whether clip id has completed.
func (t *Timeline) IsClipCompleted(id string) bool {
	e, ok := t.index[id]
	return ok && e.completed
}

// GroupMembers returns the ids tagged with group in insertion order.
func (t *Timeline) GroupMembers(group string) []string {
	var ids []string
	for _, e := range t.entries {
		if e.opts.ParallelGroup == group {
			ids = append(ids, e.id)
		}
	}
	return ids
}

// IsGroupCompleted reports whether every member of group has completed.
// A group with no members is complete.
func (t *Timeline) IsGroupCompleted(group string) bool {
	for _, e := range t.entries {
		if e.opts.ParallelGroup == group && !e.completed {
			return false
		}
	}
	return true
}
