package poller

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/KeightAI/infra-ai-forge/pkg/metrics"
)

type pollMetrics struct {
	cycles *prometheus.CounterVec
}

var (
	metricsOnce   sync.Once
	sharedMetrics *pollMetrics
)

func newPollMetrics() *pollMetrics {
	metricsOnce.Do(func() {
		cycles := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deployworker",
			Subsystem: "poll",
			Name:      "cycles_total",
			Help:      "Number of poll cycles by result",
		}, []string{"result"})
		sharedMetrics = &pollMetrics{cycles: metrics.Register(cycles)}
	})
	return sharedMetrics
}

func (m *pollMetrics) record(result string) {
	if m == nil {
		return
	}
	m.cycles.With(prometheus.Labels{"result": result}).Inc()
}
