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
	"gopkg.in/yaml.v3"
)

func TestEase_Endpoints(t *testing.T) {
	for _, e := range Easings() {
		t.Run(e.String(), func(t *testing.T) {
			assert.InDelta(t, 0, Ease(0, e), 1e-9)
			assert.InDelta(t, 1, Ease(1, e), 1e-9)
		})
	}
}

func TestEase_ClampsInput(t *testing.T) {
	for _, e := range Easings() {
		assert.InDelta(t, 0, Ease(-0.5, e), 1e-9, e.String())
		assert.InDelta(t, 1, Ease(1.5, e), 1e-9, e.String())
	}
}

func TestEase_BounceReference(t *testing.T) {
	cases := []struct {
		t    float64
		want float64
	}{
		{0, 0},
		{0.2, 7.5625 * 0.2 * 0.2},
		{0.5, 7.5625*(0.5-1.5/2.75)*(0.5-1.5/2.75) + 0.75},
		{0.8, 7.5625*(0.8-2.25/2.75)*(0.8-2.25/2.75) + 0.9375},
		{0.95, 7.5625*(0.95-2.625/2.75)*(0.95-2.625/2.75) + 0.984375},
		{1, 1},
	}
	for _, tc := range cases {
		assert.InDelta(t, tc.want, Ease(tc.t, EaseOutBounce), 1e-4, "t=%v", tc.t)
	}
	assert.InDelta(t, 0.765625, Ease(0.5, EaseOutBounce), 1e-4)
}

func TestEase_KnownValues(t *testing.T) {
	assert.InDelta(t, 0.25, Ease(0.5, EaseInQuad), 1e-9)
	assert.InDelta(t, 0.75, Ease(0.5, EaseOutQuad), 1e-9)
	assert.InDelta(t, 0.5, Ease(0.5, EaseInOut), 1e-9)
	assert.InDelta(t, 0.125, Ease(0.5, EaseInCubic), 1e-9)
	assert.InDelta(t, 0.5, Ease(0.5, EaseInOutCubic), 1e-9)
	assert.InDelta(t, 0.0625, Ease(0.5, EaseInQuart), 1e-9)
	assert.InDelta(t, 0.5, Ease(0.5, EaseInOutQuart), 1e-9)
	assert.InDelta(t, 0.5, Ease(0.5, EaseInOutBounce), 1e-9)
	assert.Equal(t, 0.3, Ease(0.3, Linear))
}

func TestEase_ElasticOvershoots(t *testing.T) {
	over := false
	for i := 1; i < 100; i++ {
		if Ease(float64(i)/100, EaseOutElastic) > 1 {
			over = true
			break
		}
	}
	assert.True(t, over, "out-elastic should overshoot 1")
	assert.False(t, EaseOutElastic.IsMonotonic())
	assert.True(t, EaseInOutQuart.IsMonotonic())
}

func TestEase_Monotonic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	var monotonic []interface{}
	for _, e := range Easings() {
		if e.IsMonotonic() {
			monotonic = append(monotonic, e)
		}
	}

	properties.Property("non-decreasing on [0,1]", prop.ForAll(
		func(e Easing, a, b float64) bool {
			if a > b {
				a, b = b, a
			}
			return Ease(a, e) <= Ease(b, e)+1e-12
		},
		gen.OneConstOf(monotonic...),
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
	))

	properties.Property("stays in [0,1]", prop.ForAll(
		func(e Easing, x float64) bool {
			v := Ease(x, e)
			return v >= -1e-12 && v <= 1+1e-12
		},
		gen.OneConstOf(monotonic...),
		gen.Float64Range(-1, 2),
	))

	properties.TestingRun(t)
}

func TestParseEasing(t *testing.T) {
	for _, e := range Easings() {
		got, err := ParseEasing(e.String())
		require.NoError(t, err)
		assert.Equal(t, e, got)
	}

	_, err := ParseEasing("wobble")
	assert.ErrorIs(t, err, ErrUnknownEasing)

	_, err = Easing(99).MarshalText()
	assert.ErrorIs(t, err, ErrUnknownEasing)
}

func TestClipConfig_YAML(t *testing.T) {
	var cfg ClipConfig
	err := yaml.Unmarshal([]byte("duration: 250ms\neasing: ease_out_bounce\nfps: 30\nloops: 2\nreverse: true\n"), &cfg)
	require.NoError(t, err)

	assert.Equal(t, ClipConfig{
		Duration: 250 * time.Millisecond,
		Easing:   EaseOutBounce,
		FPS:      30,
		Loops:    2,
		Reverse:  true,
	}, cfg)

	out, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(out), "easing: ease_out_bounce")

	err = yaml.Unmarshal([]byte("easing: wobble\n"), &cfg)
	assert.Error(t, err)
}
