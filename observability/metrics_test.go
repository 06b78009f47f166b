package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestActionsObserveNormalizesLabels(t *testing.T) {
	m := Actions()
	counter := m.requests.WithLabelValues("lend", "confirmed")
	before := testutil.ToFloat64(counter)

	m.Observe(" Lend ", "CONFIRMED", 2*time.Second)
	require.Equal(t, before+1, testutil.ToFloat64(counter))

	unknown := m.transactions.WithLabelValues("borrow", "unknown")
	before = testutil.ToFloat64(unknown)
	m.RecordTransaction("borrow", "  ")
	require.Equal(t, before+1, testutil.ToFloat64(unknown))
}

func TestLoadsRecordStale(t *testing.T) {
	m := Loads()
	before := testutil.ToFloat64(m.StaleCounter("inventory"))
	m.RecordStale("Inventory")
	require.Equal(t, before+1, testutil.ToFloat64(m.StaleCounter("inventory")))
}

func TestNilRegistriesAreSafe(t *testing.T) {
	var actions *actionMetrics
	var loads *loadMetrics
	var sessions *sessionMetrics
	require.NotPanics(t, func() {
		actions.Observe("lend", "confirmed", time.Second)
		actions.RecordTransaction("lend", "submit")
		loads.Observe("position", "ok", time.Second)
		loads.RecordStale("position")
		sessions.RecordEvent("connected")
	})
}
