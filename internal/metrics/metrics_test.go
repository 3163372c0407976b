// SPDX-License-Identifier: MIT
package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getGaugeValue(t *testing.T, gauge prometheus.Gauge) float64 {
	t.Helper()
	metric := &dto.Metric{}
	err := gauge.Write(metric)
	require.NoError(t, err)
	return metric.GetGauge().GetValue()
}

func getCounterValue(t *testing.T, counter prometheus.Counter) float64 {
	t.Helper()
	metric := &dto.Metric{}
	err := counter.Write(metric)
	require.NoError(t, err)
	return metric.GetCounter().GetValue()
}

func getCounterVecValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	return getCounterValue(t, vec.WithLabelValues(labels...))
}

func TestRecordRun(t *testing.T) {
	before := getCounterVecValue(t, runsTotal, "success")
	RecordRun("success", 3*time.Second)
	after := getCounterVecValue(t, runsTotal, "success")
	assert.Equal(t, before+1, after)
}

func TestRecordRunSuccess(t *testing.T) {
	at := time.Unix(1700000000, 0)
	RecordRunSuccess(at)
	assert.Equal(t, float64(1700000000), getGaugeValue(t, lastSuccessTimestamp))
}

func TestIncRunFailure(t *testing.T) {
	before := getCounterVecValue(t, runFailuresTotal, "dispatch")
	IncRunFailure("dispatch")
	assert.Equal(t, before+1, getCounterVecValue(t, runFailuresTotal, "dispatch"))
}

func TestReleaseCounters(t *testing.T) {
	fetchedBefore := getCounterValue(t, releasesFetched)
	newBefore := getCounterValue(t, releasesNew)
	dupBefore := getCounterValue(t, duplicatesSkipped)

	RecordReleasesFetched(7)
	RecordReleasesNew(3)
	IncDuplicateSkipped()
	IncDuplicateSkipped()

	assert.Equal(t, fetchedBefore+7, getCounterValue(t, releasesFetched))
	assert.Equal(t, newBefore+3, getCounterValue(t, releasesNew))
	assert.Equal(t, dupBefore+2, getCounterValue(t, duplicatesSkipped))
}

func TestRecordHistorySize(t *testing.T) {
	RecordHistorySize(42)
	assert.Equal(t, float64(42), getGaugeValue(t, historySize))
}

func TestIncIrrelevant(t *testing.T) {
	before := getCounterVecValue(t, irrelevantSkipped, "runtime")
	IncIrrelevant("runtime")
	assert.Equal(t, before+1, getCounterVecValue(t, irrelevantSkipped, "runtime"))
}

func TestDispatchCounters(t *testing.T) {
	sentBefore := getCounterVecValue(t, messagesSent, "42")
	errBefore := getCounterVecValue(t, dispatchErrors, "rate_limit")

	IncMessageSent("42")
	IncDispatchError("rate_limit")

	assert.Equal(t, sentBefore+1, getCounterVecValue(t, messagesSent, "42"))
	assert.Equal(t, errBefore+1, getCounterVecValue(t, dispatchErrors, "rate_limit"))
}

func TestObserveUpstreamRequest(t *testing.T) {
	okBefore := getCounterVecValue(t, upstreamRequests, "tmdb", "200")
	noneBefore := getCounterVecValue(t, upstreamRequests, "tmdb", "none")

	ObserveUpstreamRequest("tmdb", 200, 120*time.Millisecond)
	ObserveUpstreamRequest("tmdb", 0, 5*time.Millisecond)

	assert.Equal(t, okBefore+1, getCounterVecValue(t, upstreamRequests, "tmdb", "200"))
	assert.Equal(t, noneBefore+1, getCounterVecValue(t, upstreamRequests, "tmdb", "none"))
}

func TestSetCircuitBreakerState(t *testing.T) {
	SetCircuitBreakerState("tmdb", "open")

	for _, state := range circuitStates {
		want := 0.0
		if state == "open" {
			want = 1.0
		}
		got := getGaugeValue(t, circuitBreakerState.WithLabelValues("tmdb", state))
		assert.Equal(t, want, got, "state %s", state)
	}

	SetCircuitBreakerState("tmdb", "closed")
	assert.Equal(t, 1.0, getGaugeValue(t, circuitBreakerState.WithLabelValues("tmdb", "closed")))
	assert.Equal(t, 0.0, getGaugeValue(t, circuitBreakerState.WithLabelValues("tmdb", "open")))
}

func TestRecordCircuitBreakerTrip(t *testing.T) {
	before := getCounterVecValue(t, circuitBreakerTrips, "telegram", "failures")
	RecordCircuitBreakerTrip("telegram", "failures")
	assert.Equal(t, before+1, getCounterVecValue(t, circuitBreakerTrips, "telegram", "failures"))
}
