// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package anim produces eased, time-based progress values for terminal UI
// elements.
//
// A Clip is a single animation with a duration, easing, frame rate, loop
// count and optional delay. A Timeline schedules a DAG of clips: each entry
// starts once its dependencies have completed and its delay has elapsed.
// Interpolation helpers map progress onto numbers, colours, points and
// rectangles, and FrameCmd drives a clip from a bubbletea program.
//
// Clips and timelines read time through a Clock so that tests can use a
// ManualClock. They are not safe for concurrent use; drive them from the
// host's update loop.
package anim
