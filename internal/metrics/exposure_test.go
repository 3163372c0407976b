// SPDX-License-Identifier: MIT
package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/evangelie19/movie-notifier-bot/internal/metrics"
)

func TestPromhttpExposure(t *testing.T) {
	srv := httptest.NewServer(promhttp.Handler())
	defer srv.Close()

	if _, err := srv.Client().Get(srv.URL); err != nil {
		t.Fatal(err)
	}
}

func TestRunMetricsExposed(t *testing.T) {
	metrics.RecordRun("success", 0)
	metrics.RecordHistorySize(5)
	metrics.ObserveUpstreamRequest("telegram", 200, 0)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	promhttp.Handler().ServeHTTP(recorder, req)

	body := recorder.Body.String()
	for _, name := range []string{
		"mnb_runs_total",
		"mnb_run_duration_seconds",
		"mnb_history_size",
		"mnb_upstream_requests_total",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("expected %s in metrics output", name)
		}
	}
	if !strings.Contains(body, `upstream="telegram"`) {
		t.Error("expected telegram upstream label in metrics output")
	}
}
