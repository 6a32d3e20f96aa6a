// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package policy_engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the policy engine's prometheus collectors. A nil *Metrics
// records nothing.
type Metrics struct {
	decisions     *prometheus.CounterVec
	reloads       *prometheus.CounterVec
	checkDuration prometheus.Histogram
}

// NewMetrics registers the collectors on reg.
//
// Inputs:
//
//	reg - Registerer to use. prometheus.DefaultRegisterer when nil.
//
// Outputs:
//
//	*Metrics - Ready for WithMetrics.
//
// Registering twice on the same registry panics, as with promauto.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "codeterm_policy_decisions_total",
			Help: "Total policy decisions by outcome and rule",
		}, []string{"decision", "rule"}),
		reloads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "codeterm_policy_config_reloads_total",
			Help: "Total policy configuration reloads by result",
		}, []string{"result"}),
		checkDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "codeterm_policy_check_duration_seconds",
			Help:    "Latency of a single policy check",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005},
		}),
	}
}

func (m *Metrics) observeDecision(d Decision, elapsed time.Duration) {
	if m == nil {
		return
	}
	rule := string(d.Rule)
	if len(rule) > len(customRulePrefix) && rule[:len(customRulePrefix)] == customRulePrefix {
		// One series for all custom rules keeps cardinality bounded.
		rule = customRulePrefix + "*"
	}
	m.decisions.WithLabelValues(d.Kind.String(), rule).Inc()
	m.checkDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) observeReload(err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.reloads.WithLabelValues(result).Inc()
}
