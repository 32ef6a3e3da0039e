package deploy

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/KeightAI/infra-ai-forge/internal/domain"
	"github.com/KeightAI/infra-ai-forge/pkg/metrics"
)

var stepBuckets = []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800}

type pipelineMetrics struct {
	runs         *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
}

var (
	metricsOnce   sync.Once
	sharedMetrics *pipelineMetrics
)

func newPipelineMetrics() *pipelineMetrics {
	metricsOnce.Do(func() {
		runs := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deployworker",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Number of finished pipeline runs",
		}, []string{"mode", "outcome"})

		stepDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "deployworker",
			Subsystem: "pipeline",
			Name:      "step_duration_seconds",
			Help:      "Duration of individual pipeline steps",
			Buckets:   stepBuckets,
		}, []string{"step", "outcome"})

		sharedMetrics = &pipelineMetrics{
			runs:         metrics.Register(runs),
			stepDuration: metrics.Register(stepDuration),
		}
	})
	return sharedMetrics
}

func (m *pipelineMetrics) recordRun(mode domain.Mode, outcome string) {
	if m == nil {
		return
	}
	m.runs.With(prometheus.Labels{"mode": string(mode), "outcome": outcome}).Inc()
}

func (m *pipelineMetrics) recordStep(step Step, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.With(prometheus.Labels{"step": string(step), "outcome": outcome}).Observe(duration.Seconds())
}
