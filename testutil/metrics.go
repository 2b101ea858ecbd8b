/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertGaugeValue asserts that passed prometheus.Gauge has the wanted value.
func AssertGaugeValue(t assert.TestingT, gauge prometheus.Gauge, wantValue int) bool {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	got, ok := gatherSingleMetricValue(t, gauge)
	if !ok {
		return false
	}
	return assert.Equal(t, wantValue, got)
}

// RequireGaugeValue calls AssertGaugeValue and fails the test immediately in case of error.
func RequireGaugeValue(t require.TestingT, gauge prometheus.Gauge, wantValue int) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	if AssertGaugeValue(t, gauge, wantValue) {
		return
	}
	t.FailNow()
}

// AssertSamplesCountInCounter asserts that passed prometheus.Counter has the wanted value.
func AssertSamplesCountInCounter(t assert.TestingT, counter prometheus.Counter, wantCount int) bool {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	got, ok := gatherSingleMetricValue(t, counter)
	if !ok {
		return false
	}
	return assert.Equal(t, wantCount, got)
}

// RequireSamplesCountInCounter calls AssertSamplesCountInCounter and fails the test immediately in case of error.
func RequireSamplesCountInCounter(t require.TestingT, counter prometheus.Counter, wantCount int) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	if AssertSamplesCountInCounter(t, counter, wantCount) {
		return
	}
	t.FailNow()
}

func gatherSingleMetricValue(t assert.TestingT, collector prometheus.Collector) (int, bool) {
	reg := prometheus.NewPedanticRegistry()
	if !assert.NoError(t, reg.Register(collector)) {
		return 0, false
	}
	gotMetrics, err := reg.Gather()
	if !assert.NoError(t, err) {
		return 0, false
	}
	if !assert.Equal(t, 1, len(gotMetrics)) {
		return 0, false
	}
	m := gotMetrics[0].GetMetric()[0]
	if m.GetGauge() != nil {
		return int(m.GetGauge().GetValue()), true
	}
	return int(m.GetCounter().GetValue()), true
}
