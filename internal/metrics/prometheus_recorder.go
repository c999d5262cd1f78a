package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "pagebuild"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	taskDuration   *prom.HistogramVec
	taskResults    *prom.CounterVec
	buildDuration  prom.Histogram
	buildOutcome   *prom.CounterVec
	filesProcessed *prom.CounterVec
	fileFailures   *prom.CounterVec
	reloads        *prom.CounterVec
	reloadClients  prom.Gauge
}

// NewPrometheusRecorder constructs the pipeline metrics and registers them on reg.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		taskDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Duration of individual pipeline tasks",
			Buckets:   prom.DefBuckets,
		}, []string{"task"}),
		taskResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "task_results_total",
			Help:      "Task result counts by outcome",
		}, []string{"task", "result"}),
		buildDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Total build duration",
			Buckets:   prom.DefBuckets,
		}),
		buildOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by final status",
		}, []string{"outcome"}),
		filesProcessed: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "files_processed_total",
			Help:      "Files written per asset class",
		}, []string{"class"}),
		fileFailures: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "file_failures_total",
			Help:      "Files skipped after a transform failure per asset class",
		}, []string{"class"}),
		reloads: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "reload_broadcasts_total",
			Help:      "Reload notifications sent to browsers by kind",
		}, []string{"kind"}),
		reloadClients: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "reload_clients",
			Help:      "Connected reload clients",
		}),
	}
	reg.MustRegister(pr.taskDuration, pr.taskResults, pr.buildDuration, pr.buildOutcome,
		pr.filesProcessed, pr.fileFailures, pr.reloads, pr.reloadClients)
	return pr
}

func (p *PrometheusRecorder) ObserveTaskDuration(task string, d time.Duration) {
	if p == nil {
		return
	}
	p.taskDuration.WithLabelValues(task).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncTaskResult(task string, result ResultLabel) {
	if p == nil {
		return
	}
	p.taskResults.WithLabelValues(task, string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome BuildOutcomeLabel) {
	if p == nil {
		return
	}
	p.buildOutcome.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) AddFilesProcessed(class string, n int) {
	if p == nil || n <= 0 {
		return
	}
	p.filesProcessed.WithLabelValues(class).Add(float64(n))
}

func (p *PrometheusRecorder) AddFileFailures(class string, n int) {
	if p == nil || n <= 0 {
		return
	}
	p.fileFailures.WithLabelValues(class).Add(float64(n))
}

func (p *PrometheusRecorder) IncReloadBroadcast(kind string) {
	if p == nil {
		return
	}
	p.reloads.WithLabelValues(kind).Inc()
}

func (p *PrometheusRecorder) SetReloadClients(n int) {
	if p == nil {
		return
	}
	p.reloadClients.Set(float64(n))
}
