package metrics

import "time"

// ResultLabel enumerates task result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultWarning  ResultLabel = "warning"
	ResultFatal    ResultLabel = "fatal"
	ResultCanceled ResultLabel = "canceled"
)

// BuildOutcomeLabel is the final status of a build or develop run.
type BuildOutcomeLabel string

const (
	BuildOutcomeSuccess  BuildOutcomeLabel = "success"
	BuildOutcomeWarning  BuildOutcomeLabel = "warning"
	BuildOutcomeFailed   BuildOutcomeLabel = "failed"
	BuildOutcomeCanceled BuildOutcomeLabel = "canceled"
)

// Recorder defines observability hooks for pipeline tasks, file transforms and
// reload notifications.
type Recorder interface {
	ObserveTaskDuration(task string, d time.Duration)
	IncTaskResult(task string, result ResultLabel)
	ObserveBuildDuration(d time.Duration)
	IncBuildOutcome(outcome BuildOutcomeLabel)
	AddFilesProcessed(class string, n int)
	AddFileFailures(class string, n int)
	IncReloadBroadcast(kind string)
	SetReloadClients(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveTaskDuration(string, time.Duration) {}
func (NoopRecorder) IncTaskResult(string, ResultLabel)         {}
func (NoopRecorder) ObserveBuildDuration(time.Duration)        {}
func (NoopRecorder) IncBuildOutcome(BuildOutcomeLabel)         {}
func (NoopRecorder) AddFilesProcessed(string, int)             {}
func (NoopRecorder) AddFileFailures(string, int)               {}
func (NoopRecorder) IncReloadBroadcast(string)                 {}
func (NoopRecorder) SetReloadClients(int)                      {}

// ResultFor maps a task error to its result label.
func ResultFor(err error, canceled bool) ResultLabel {
	switch {
	case err == nil:
		return ResultSuccess
	case canceled:
		return ResultCanceled
	default:
		return ResultFatal
	}
}
