// Package metrics exposes run and phase observations.
//
// Components receive a Recorder and default to NoopRecorder, so metrics stay optional:
//
//	exec := pipeline.NewExecutor(cfg, pipeline.WithRecorder(metrics.NewPrometheusRecorder(reg)))
//
// The trigger server serves the registry at /metrics through HTTPHandler.
package metrics
