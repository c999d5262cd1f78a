// Package metrics provides pipeline and dev server metrics.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so no nil checks are needed at call sites:
//
//	runner := pipeline.NewRunner(logger, metrics.NoopRecorder{})
//
// The develop command swaps in a PrometheusRecorder backed by its own registry
// and exposes it through HTTPHandler on the dev server.
package metrics
