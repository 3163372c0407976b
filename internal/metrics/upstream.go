// SPDX-License-Identifier: MIT
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	upstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mnb_upstream_requests_total",
		Help: "HTTP requests to upstream APIs by status code",
	}, []string{"upstream", "code"}) // upstream=tmdb|telegram|github

	upstreamRequestSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mnb_upstream_request_seconds",
		Help:    "Latency of upstream API requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"upstream"})

	upstreamRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mnb_upstream_retries_total",
		Help: "Retried upstream requests by reason",
	}, []string{"upstream", "reason"}) // reason=rate_limit|server_error|network
)

// ObserveUpstreamRequest records one upstream round trip. A zero status code
// means the request never produced a response.
func ObserveUpstreamRequest(upstream string, code int, duration time.Duration) {
	label := "none"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	upstreamRequests.WithLabelValues(upstream, label).Inc()
	upstreamRequestSeconds.WithLabelValues(upstream).Observe(duration.Seconds())
}

func IncUpstreamRetry(upstream, reason string) {
	upstreamRetries.WithLabelValues(upstream, reason).Inc()
}
