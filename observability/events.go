package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type sessionMetrics struct {
	events *prometheus.CounterVec
}

var (
	sessionMetricsOnce sync.Once
	sessionRegistry    *sessionMetrics
)

// Sessions returns the metrics registry tracking wallet session transitions.
func Sessions() *sessionMetrics {
	sessionMetricsOnce.Do(func() {
		sessionRegistry = &sessionMetrics{
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftlend",
				Subsystem: "wallet",
				Name:      "session_events_total",
				Help:      "Count of wallet session events segmented by kind.",
			}, []string{"kind"}),
		}
		prometheus.MustRegister(sessionRegistry.events)
	})
	return sessionRegistry
}

// RecordEvent increments the session event counter for the supplied kind.
func (m *sessionMetrics) RecordEvent(kind string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(strings.ToLower(kind))
	if normalized == "" {
		normalized = "unknown"
	}
	m.events.WithLabelValues(normalized).Inc()
}
