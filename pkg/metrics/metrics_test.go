package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/dsc/pkg/dsc"
)

func newTestMetrics() *Metrics {
	level, _ := log.ToLevel("debug")
	return New("dsc", log.NewTestLogger(level))
}

func TestOperationCounters(t *testing.T) {
	m := newTestMetrics()

	m.Operation("mint")
	m.Operation("mint")
	m.Operation("liquidate")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.operations.WithLabelValues("mint")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.operations.WithLabelValues("liquidate")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.liquidations))
}

func TestOperationErrorCounters(t *testing.T) {
	m := newTestMetrics()

	m.OperationError("mint", dsc.ErrHealthFactorBroken)
	m.OperationError("mint", dsc.ErrStalePrice)
	m.OperationError("deposit_collateral", dsc.ErrSequencerUnavailable)

	assert.Equal(t, float64(1),
		testutil.ToFloat64(m.operationErrors.WithLabelValues("mint", "HealthFactorBroken")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(m.operationErrors.WithLabelValues("mint", "StalePrice")))

	// Oracle-originated errors also land in the dedicated counter.
	assert.Equal(t, float64(1), testutil.ToFloat64(m.oracleFailures.WithLabelValues("StalePrice")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.oracleFailures.WithLabelValues("SequencerUnavailable")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.oracleFailures.WithLabelValues("HealthFactorBroken")))
}

func TestHandlerServesExposition(t *testing.T) {
	m := newTestMetrics()
	m.Operation("mint")

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "dsc_operations_total")
}
