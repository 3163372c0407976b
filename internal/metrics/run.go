// SPDX-License-Identifier: MIT

// Package metrics exposes the bot's Prometheus instrumentation. All metrics
// are registered on the default registry and served by the daemon's metrics
// listener.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Run lifecycle metrics
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mnb_runs_total",
		Help: "Completed notification runs by outcome",
	}, []string{"outcome"}) // outcome=success|partial|failure

	runDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mnb_run_duration_seconds",
		Help:    "Wall time of a full notification run",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	lastSuccessTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mnb_last_success_timestamp_seconds",
		Help: "Unix timestamp of the last fully successful run",
	})

	runFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mnb_run_failures_total",
		Help: "Run failures by pipeline stage",
	}, []string{"stage"}) // stage=restore|discover|details|dispatch|persist
)

func RecordRun(outcome string, duration time.Duration) {
	runsTotal.WithLabelValues(outcome).Inc()
	runDurationSeconds.Observe(duration.Seconds())
}

func RecordRunSuccess(at time.Time) { lastSuccessTimestamp.Set(float64(at.Unix())) }

func IncRunFailure(stage string) { runFailuresTotal.WithLabelValues(stage).Inc() }
