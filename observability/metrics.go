package observability

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "nftlend/orchestrator"

type actionMetrics struct {
	requests     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	transactions *prometheus.CounterVec

	actionCounter   metric.Int64Counter
	actionHistogram metric.Float64Histogram
}

type loadMetrics struct {
	loads   *prometheus.CounterVec
	stale   *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

var (
	actionMetricsOnce sync.Once
	actionRegistry    *actionMetrics

	loadMetricsOnce sync.Once
	loadRegistry    *loadMetrics
)

// Actions returns the lazily-initialised registry tracking orchestrated user
// actions (lend, borrow, post collateral, ...).
func Actions() *actionMetrics {
	actionMetricsOnce.Do(func() {
		actionRegistry = &actionMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftlend",
				Subsystem: "orchestrator",
				Name:      "actions_total",
				Help:      "Count of user actions segmented by action and outcome.",
			}, []string{"action", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "nftlend",
				Subsystem: "orchestrator",
				Name:      "action_duration_seconds",
				Help:      "Wall-clock time from submission to the end of the post-action refresh.",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
			}, []string{"action"}),
			transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftlend",
				Subsystem: "orchestrator",
				Name:      "transactions_submitted_total",
				Help:      "Count of transactions submitted segmented by action and step.",
			}, []string{"action", "step"}),
		}
		prometheus.MustRegister(
			actionRegistry.requests,
			actionRegistry.latency,
			actionRegistry.transactions,
		)
		actionRegistry.initMeter()
	})
	return actionRegistry
}

// initMeter mirrors the action counters onto the global OpenTelemetry meter so
// they reach the OTLP exporter when one is configured.
func (m *actionMetrics) initMeter() {
	meter := otel.GetMeterProvider().Meter(meterName)
	counter, err := meter.Int64Counter("nftlend.actions",
		metric.WithDescription("User actions by action and outcome."))
	if err != nil {
		meter = noop.NewMeterProvider().Meter(meterName)
		counter, _ = meter.Int64Counter("nftlend.actions")
	}
	histogram, err := meter.Float64Histogram("nftlend.action.duration",
		metric.WithDescription("Action duration including the post-action refresh."),
		metric.WithUnit("s"))
	if err != nil {
		histogram, _ = noop.NewMeterProvider().Meter(meterName).Float64Histogram("nftlend.action.duration")
	}
	m.actionCounter = counter
	m.actionHistogram = histogram
}

// Observe records the final outcome of an action. Outcome should be a stable
// string such as "confirmed", "rejected" or "disconnected".
func (m *actionMetrics) Observe(action, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	action = normalizeLabel(action)
	outcome = normalizeLabel(outcome)
	m.requests.WithLabelValues(action, outcome).Inc()
	m.latency.WithLabelValues(action).Observe(duration.Seconds())
	if m.actionCounter != nil {
		attrs := metric.WithAttributes(attribute.String("action", action), attribute.String("outcome", outcome))
		m.actionCounter.Add(context.Background(), 1, attrs)
		m.actionHistogram.Record(context.Background(), duration.Seconds(), attrs)
	}
}

// RecordTransaction counts a submitted transaction for the supplied step.
func (m *actionMetrics) RecordTransaction(action, step string) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(normalizeLabel(action), normalizeLabel(step)).Inc()
}

// Loads returns the registry tracking position and inventory reloads.
func Loads() *loadMetrics {
	loadMetricsOnce.Do(func() {
		loadRegistry = &loadMetrics{
			loads: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftlend",
				Subsystem: "sync",
				Name:      "loads_total",
				Help:      "Count of state loads segmented by resource and outcome.",
			}, []string{"resource", "outcome"}),
			stale: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftlend",
				Subsystem: "sync",
				Name:      "stale_results_total",
				Help:      "Count of load results discarded because a newer load was already applied.",
			}, []string{"resource"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "nftlend",
				Subsystem: "sync",
				Name:      "load_duration_seconds",
				Help:      "Latency distribution for full state loads.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"resource"}),
		}
		prometheus.MustRegister(loadRegistry.loads, loadRegistry.stale, loadRegistry.latency)
	})
	return loadRegistry
}

// Observe records a finished load for the resource ("position" or "inventory").
func (m *loadMetrics) Observe(resource, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	resource = normalizeLabel(resource)
	m.loads.WithLabelValues(resource, normalizeLabel(outcome)).Inc()
	m.latency.WithLabelValues(resource).Observe(duration.Seconds())
}

// RecordStale counts a load result that lost the race to a newer one.
func (m *loadMetrics) RecordStale(resource string) {
	if m == nil {
		return
	}
	m.stale.WithLabelValues(normalizeLabel(resource)).Inc()
}

// StaleCounter exposes the stale counter for resource; used by tests.
func (m *loadMetrics) StaleCounter(resource string) prometheus.Counter {
	return m.stale.WithLabelValues(normalizeLabel(resource))
}

func normalizeLabel(value string) string {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
