package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// IndexerMetrics tracks calls against the NFT indexing service.
type IndexerMetrics struct {
	pages     *prometheus.CounterVec
	items     *prometheus.CounterVec
	lifecycle prometheus.Gauge
}

var (
	indexerOnce     sync.Once
	indexerRegistry *IndexerMetrics
)

// Indexer returns the singleton indexer metrics registry.
func Indexer() *IndexerMetrics {
	indexerOnce.Do(func() {
		indexerRegistry = &IndexerMetrics{
			pages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "nftlend_indexer_pages_total",
				Help: "Count of indexer page fetches by outcome.",
			}, []string{"outcome"}),
			items: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "nftlend_indexer_items_total",
				Help: "Count of NFT entries returned by the indexer by listing.",
			}, []string{"listing"}),
			lifecycle: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "nftlend_indexer_lifecycle_state",
				Help: "Indexer lifecycle: 0 uninitialized, 1 starting, 2 ready, 3 failed.",
			}),
		}
		prometheus.MustRegister(
			indexerRegistry.pages,
			indexerRegistry.items,
			indexerRegistry.lifecycle,
		)
	})
	return indexerRegistry
}

// RecordPage counts a single page fetch.
func (m *IndexerMetrics) RecordPage(err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.pages.WithLabelValues(outcome).Inc()
}

// RecordItems adds n entries to the listing counter ("owned" or "custodial").
func (m *IndexerMetrics) RecordItems(listing string, n int) {
	if m == nil || n <= 0 {
		return
	}
	if listing == "" {
		listing = "unknown"
	}
	m.items.WithLabelValues(listing).Add(float64(n))
}

// SetLifecycle publishes the numeric lifecycle state.
func (m *IndexerMetrics) SetLifecycle(state int) {
	if m == nil {
		return
	}
	m.lifecycle.Set(float64(state))
}
