package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pagesdeploy"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	phaseDuration  *prom.HistogramVec
	phaseResults   *prom.CounterVec
	runDuration    prom.Histogram
	runOutcomes    *prom.CounterVec
	cancellations  *prom.CounterVec
	publishResults *prom.CounterVec
	activeRuns     prom.Gauge
}

// NewPrometheusRecorder constructs the run metrics and registers them with reg.
// A nil reg gets a private registry.
func NewPrometheusRecorder(reg prom.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	// Builds of a real application take minutes, not milliseconds.
	buildBuckets := prom.ExponentialBuckets(0.5, 2, 12)

	pr := &PrometheusRecorder{
		phaseDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Duration of individual build phases",
			Buckets:   buildBuckets,
		}, []string{"phase"}),
		phaseResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "phase_results_total",
			Help:      "Phase result counts by outcome",
		}, []string{"phase", "result"}),
		runDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Total run duration from start to terminal state",
			Buckets:   buildBuckets,
		}),
		runOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "run_outcomes_total",
			Help:      "Runs by terminal status",
		}, []string{"outcome"}),
		cancellations: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "run_cancellations_total",
			Help:      "Run cancellations by reason",
		}, []string{"reason"}),
		publishResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "publish_results_total",
			Help:      "Publish attempts by result",
		}, []string{"status"}),
		activeRuns: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "active_runs",
			Help:      "Runs currently tracked by the concurrency registry",
		}),
	}
	reg.MustRegister(pr.phaseDuration, pr.phaseResults, pr.runDuration, pr.runOutcomes,
		pr.cancellations, pr.publishResults, pr.activeRuns)
	return pr
}

func (p *PrometheusRecorder) ObservePhaseDuration(phase string, d time.Duration) {
	if p == nil {
		return
	}
	p.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncPhaseResult(phase string, result ResultLabel) {
	if p == nil {
		return
	}
	p.phaseResults.WithLabelValues(phase, string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveRunDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.runDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncRunOutcome(outcome OutcomeLabel) {
	if p == nil {
		return
	}
	p.runOutcomes.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncCancellation(reason string) {
	if p == nil {
		return
	}
	p.cancellations.WithLabelValues(reason).Inc()
}

func (p *PrometheusRecorder) IncPublishResult(status string) {
	if p == nil {
		return
	}
	p.publishResults.WithLabelValues(status).Inc()
}

func (p *PrometheusRecorder) SetActiveRuns(n int) {
	if p == nil {
		return
	}
	p.activeRuns.Set(float64(n))
}

// HTTPHandler returns an http.Handler that serves the metrics gathered by g.
func HTTPHandler(g prom.Gatherer) http.Handler {
	if g == nil {
		g = prom.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
