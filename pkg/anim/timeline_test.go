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
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runTimeline ticks every step until the timeline completes or limit
// passes.
func runTimeline(t *testing.T, tl *Timeline, clock *ManualClock, step, limit time.Duration) []Event {
	t.Helper()
	var events []Event
	for elapsed := time.Duration(0); elapsed <= limit; elapsed += step {
		events = append(events, tl.Tick()...)
		if tl.State() == Completed {
			return events
		}
		clock.Advance(step)
	}
	t.Fatalf("timeline did not complete within %s", limit)
	return nil
}

func completions(events []Event) []string {
	var ids []string
	for _, ev := range events {
		if ev.Kind == ClipCompleted {
			ids = append(ids, ev.ClipID)
		}
	}
	return ids
}

func TestTimeline_DependencyOrder(t *testing.T) {
	clock := NewManualClock(epoch)
	tl := NewTimeline(clock)
	require.NoError(t, tl.AddClip("C", linear(10*time.Millisecond, 1), ClipOptions{DependsOn: []string{"B"}}))
	require.NoError(t, tl.AddClip("A", linear(300*time.Millisecond, 1), ClipOptions{}))
	require.NoError(t, tl.AddClip("B", linear(50*time.Millisecond, 1), ClipOptions{DependsOn: []string{"A"}}))

	require.NoError(t, tl.Start())
	events := runTimeline(t, tl, clock, 10*time.Millisecond, 2*time.Second)

	assert.Equal(t, []string{"A", "B", "C"}, completions(events))
	assert.Equal(t, []string{"A", "B", "C"}, tl.Completed())
	assert.Equal(t, TimelineCompleted, events[len(events)-1].Kind)
	assert.Equal(t, 1.0, tl.Progress())
}

func TestTimeline_DependencyOrderProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("A, B, C complete in order for any durations", prop.ForAll(
		func(a, b, c int) bool {
			clock := NewManualClock(epoch)
			tl, err := NewTimelineBuilder(clock).AddSequence(
				Step{ID: "A", Config: linear(time.Duration(a)*time.Millisecond, 1)},
				Step{ID: "B", Config: linear(time.Duration(b)*time.Millisecond, 1)},
				Step{ID: "C", Config: linear(time.Duration(c)*time.Millisecond, 1)},
			).Build()
			if err != nil || tl.Start() != nil {
				return false
			}
			events := runTimeline(t, tl, clock, 7*time.Millisecond, 5*time.Second)
			got := completions(events)
			return len(got) == 3 && got[0] == "A" && got[1] == "B" && got[2] == "C"
		},
		gen.IntRange(0, 500),
		gen.IntRange(0, 500),
		gen.IntRange(0, 500),
	))

	properties.TestingRun(t)
}

func TestTimeline_StartBeforeComplete(t *testing.T) {
	clock := NewManualClock(epoch)
	tl, err := NewTimelineBuilder(clock).
		Add("a", linear(0, 1)).
		AddAfter("b", linear(20*time.Millisecond, 1), "a").
		Build()
	require.NoError(t, err)
	require.NoError(t, tl.Start())

	events := runTimeline(t, tl, clock, 10*time.Millisecond, time.Second)
	seen := map[string]EventKind{}
	for _, ev := range events {
		if ev.ClipID == "" {
			continue
		}
		if ev.Kind == ClipCompleted {
			assert.Equal(t, ClipStarted, seen[ev.ClipID], "%s completed before starting", ev.ClipID)
		}
		seen[ev.ClipID] = ev.Kind
	}
	assert.Equal(t, "clip_started(a)", events[0].String())
}

func TestTimeline_RejectsCycles(t *testing.T) {
	tl := NewTimeline(NewManualClock(epoch))
	require.NoError(t, tl.AddClip("a", linear(time.Second, 1), ClipOptions{DependsOn: []string{"c"}}))
	require.NoError(t, tl.AddClip("b", linear(time.Second, 1), ClipOptions{DependsOn: []string{"a"}}))

	err := tl.AddClip("c", linear(time.Second, 1), ClipOptions{DependsOn: []string{"b"}})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "cycle")
	assert.Equal(t, 2, tl.Len())

	err = tl.AddClip("self", linear(time.Second, 1), ClipOptions{DependsOn: []string{"self"}})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestTimeline_AddClipErrors(t *testing.T) {
	tl := NewTimeline(NewManualClock(epoch))
	require.NoError(t, tl.AddClip("a", linear(time.Second, 1), ClipOptions{}))

	assert.ErrorIs(t, tl.AddClip("a", linear(time.Second, 1), ClipOptions{}), ErrInvalidConfig)
	assert.ErrorIs(t, tl.AddClip("", linear(time.Second, 1), ClipOptions{}), ErrInvalidConfig)
	assert.ErrorIs(t, tl.AddClip("neg", linear(-time.Second, 1), ClipOptions{}), ErrInvalidConfig)
}

func TestTimeline_UnknownDependencyAtStart(t *testing.T) {
	tl := NewTimeline(NewManualClock(epoch))
	require.NoError(t, tl.AddClip("a", linear(time.Second, 1), ClipOptions{DependsOn: []string{"ghost"}}))
	err := tl.Start()
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Equal(t, Idle, tl.State())
}

func TestTimeline_ParallelGroup(t *testing.T) {
	clock := NewManualClock(epoch)
	tl, err := NewTimelineBuilder(clock).
		AddParallel("fast", linear(100*time.Millisecond, 1), "g").
		AddParallel("slow", linear(300*time.Millisecond, 1), "g").
		Build()
	require.NoError(t, err)
	require.NoError(t, tl.Start())

	tl.Tick()
	assert.Equal(t, []string{"fast", "slow"}, tl.Running())

	clock.Advance(150 * time.Millisecond)
	tl.Tick()
	assert.True(t, tl.IsClipCompleted("fast"))
	assert.False(t, tl.IsGroupCompleted("g"))
	assert.Equal(t, 0.5, tl.Progress())

	clock.Advance(150 * time.Millisecond)
	tl.Tick()
	assert.True(t, tl.IsGroupCompleted("g"))
	assert.Equal(t, Completed, tl.State())

	assert.Equal(t, []string{"fast", "slow"}, tl.GroupMembers("g"))
	assert.True(t, tl.IsGroupCompleted("nobody"))
	assert.Empty(t, tl.GroupMembers("nobody"))
}

func TestTimeline_DelayExcludesPause(t *testing.T) {
	clock := NewManualClock(epoch)
	tl := NewTimeline(clock)
	require.NoError(t, tl.AddClip("late", linear(100*time.Millisecond, 1), ClipOptions{Delay: 200 * time.Millisecond}))
	require.NoError(t, tl.Start())

	clock.Advance(100 * time.Millisecond)
	assert.Empty(t, tl.Tick())

	tl.Pause()
	assert.Nil(t, tl.Tick(), "a paused timeline does not tick")
	clock.Advance(500 * time.Millisecond)
	tl.Resume()
	assert.Empty(t, tl.Tick())

	clock.Advance(100 * time.Millisecond)
	events := tl.Tick()
	require.NotEmpty(t, events)
	assert.Equal(t, Event{Kind: ClipStarted, ClipID: "late", At: clock.Now()}, events[0])

	kinds := make([]EventKind, 0)
	for _, ev := range tl.Events() {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []EventKind{TimelinePaused, TimelineResumed, ClipStarted}, kinds)
}

func TestTimeline_PauseCascades(t *testing.T) {
	clock := NewManualClock(epoch)
	tl := NewTimeline(clock)
	require.NoError(t, tl.AddClip("a", linear(time.Second, 1), ClipOptions{}))
	require.NoError(t, tl.Start())
	tl.Tick()

	clock.Advance(400 * time.Millisecond)
	tl.Pause()
	clip, ok := tl.Clip("a")
	require.True(t, ok)
	assert.Equal(t, Paused, clip.State())

	clock.Advance(time.Second)
	p, _ := tl.ClipProgress("a")
	assert.InDelta(t, 0.4, p, 1e-9)

	tl.Resume()
	clock.Advance(100 * time.Millisecond)
	p, _ = tl.ClipProgress("a")
	assert.InDelta(t, 0.5, p, 1e-9)
	e, _ := tl.Eased("a")
	assert.InDelta(t, 0.5, e, 1e-9)
	v, _ := tl.Value("a")
	assert.InDelta(t, 0.5, v, 1e-9)

	_, ok = tl.ClipProgress("missing")
	assert.False(t, ok)
}

func TestTimeline_Stop(t *testing.T) {
	clock := NewManualClock(epoch)
	tl := NewTimeline(clock)
	require.NoError(t, tl.AddClip("a", linear(50*time.Millisecond, 1), ClipOptions{}))
	require.NoError(t, tl.AddClip("b", linear(time.Second, 1), ClipOptions{}))
	require.NoError(t, tl.Start())
	tl.Tick()
	clock.Advance(100 * time.Millisecond)
	tl.Tick()
	require.Equal(t, []string{"a"}, tl.Completed())

	tl.Stop()
	tl.Stop()
	assert.Equal(t, Idle, tl.State())
	assert.Empty(t, tl.Completed())
	assert.Empty(t, tl.Running())
	p, _ := tl.ClipProgress("b")
	assert.Equal(t, 0.0, p)
	assert.Nil(t, tl.Tick())
}

func TestTimeline_Looped(t *testing.T) {
	clock := NewManualClock(epoch)
	tl := NewTimeline(clock)
	require.NoError(t, tl.AddClip("spin", linear(100*time.Millisecond, 3), ClipOptions{}))
	require.NoError(t, tl.Start())
	tl.Tick()

	clock.Advance(100 * time.Millisecond)
	assert.Equal(t, []Event{{Kind: ClipLooped, ClipID: "spin", Loop: 1, At: clock.Now()}}, tl.Tick())

	clock.Advance(100 * time.Millisecond)
	tl.Tick()
	clock.Advance(100 * time.Millisecond)
	events := tl.Tick()
	require.Len(t, events, 2)
	assert.Equal(t, ClipCompleted, events[0].Kind)
	assert.Equal(t, TimelineCompleted, events[1].Kind)
}

func TestTimeline_Empty(t *testing.T) {
	tl := NewTimeline(NewManualClock(epoch))
	assert.Equal(t, 1.0, tl.Progress())
	require.NoError(t, tl.Start())
	events := tl.Tick()
	require.Len(t, events, 1)
	assert.Equal(t, TimelineCompleted, events[0].Kind)
}

func TestTimeline_RemoveClip(t *testing.T) {
	clock := NewManualClock(epoch)
	tl, err := NewTimelineBuilder(clock).
		Add("a", linear(time.Hour, 1)).
		AddAfter("b", linear(0, 1), "a").
		Build()
	require.NoError(t, err)

	assert.True(t, tl.RemoveClip("a"))
	assert.False(t, tl.RemoveClip("a"))
	require.NoError(t, tl.Start())
	tl.Tick()
	assert.Equal(t, Completed, tl.State())
}

func TestTimeline_ClearEvents(t *testing.T) {
	tl := NewTimeline(NewManualClock(epoch))
	require.NoError(t, tl.Start())
	tl.Tick()
	require.NotEmpty(t, tl.Events())
	tl.ClearEvents()
	assert.Empty(t, tl.Events())
	assert.NotEmpty(t, tl.ID())
}

func TestTimelineBuilder_KeepsFirstError(t *testing.T) {
	_, err := NewTimelineBuilder(nil).
		Add("a", linear(time.Second, 1)).
		Add("a", linear(time.Second, 1)).
		AddAfter("b", linear(-1, 1), "a").
		Build()
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), `duplicate clip id "a"`)
}

func TestTimelineBuilder_Delay(t *testing.T) {
	clock := NewManualClock(epoch)
	tl, err := NewTimelineBuilder(clock).
		AddWithDelay("a", linear(10*time.Millisecond, 1), 50*time.Millisecond).
		Build()
	require.NoError(t, err)
	require.NoError(t, tl.Start())

	clock.Advance(40 * time.Millisecond)
	assert.Empty(t, tl.Tick())
	assert.Empty(t, tl.Running())

	clock.Advance(10 * time.Millisecond)
	assert.Empty(t, tl.Running(), "ready clips start on the next tick")
	events := tl.Tick()
	require.NotEmpty(t, events)
	assert.Equal(t, Event{Kind: ClipStarted, ClipID: "a", At: clock.Now()}, events[0])
	assert.Equal(t, []string{"a"}, tl.Running())
}
