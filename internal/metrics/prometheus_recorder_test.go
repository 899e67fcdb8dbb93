package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)

	pr.ObservePhaseDuration("base_build", 1500*time.Millisecond)
	pr.IncPhaseResult("base_build", ResultSuccess)
	pr.IncPhaseResult("final_build", ResultCanceled)
	pr.ObserveRunDuration(3 * time.Second)
	pr.IncRunOutcome(OutcomeCanceled)
	pr.IncCancellation("superseded")
	pr.IncPublishResult("up_to_date")
	pr.SetActiveRuns(2)

	assert.InDelta(t, 1, testutil.ToFloat64(pr.phaseResults.WithLabelValues("base_build", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(pr.runOutcomes.WithLabelValues("canceled")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(pr.cancellations.WithLabelValues("superseded")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(pr.activeRuns), 0)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, mfs, 7)
}

func TestHTTPHandlerServesRegistry(t *testing.T) {
	reg := prom.NewRegistry()
	NewPrometheusRecorder(reg).IncPublishResult("published")

	srv := httptest.NewServer(HTTPHandler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `pagesdeploy_publish_results_total{status="published"} 1`)
}

func TestNilPrometheusRecorderIsSafe(t *testing.T) {
	var pr *PrometheusRecorder
	assert.NotPanics(t, func() {
		pr.IncRunOutcome(OutcomeSucceeded)
		pr.SetActiveRuns(1)
	})
}
