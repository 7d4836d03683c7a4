// Package metrics exposes engine activity through Prometheus.
package metrics

import (
	"net/http"

	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/luxfi/dsc/pkg/dsc"
)

// Metrics implements dsc.Recorder over a private Prometheus registry.
type Metrics struct {
	registry *prometheus.Registry
	logger   log.Logger

	operations      *prometheus.CounterVec
	operationErrors *prometheus.CounterVec
	liquidations    prometheus.Counter
	oracleFailures  *prometheus.CounterVec
}

// New creates a registry with the engine collectors registered.
func New(namespace string, logger log.Logger) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		logger:   logger,

		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Successful engine operations by kind",
		}, []string{"op"}),

		operationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_errors_total",
			Help:      "Failed engine operations by kind and error",
		}, []string{"op", "kind"}),

		liquidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "liquidations_total",
			Help:      "Completed liquidations",
		}),

		oracleFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_rejections_total",
			Help:      "Price reads rejected by the oracle adapter, by error kind",
		}, []string{"kind"}),
	}

	registry.MustRegister(m.operations, m.operationErrors, m.liquidations, m.oracleFailures)
	return m
}

// Operation implements dsc.Recorder.
func (m *Metrics) Operation(op string) {
	m.operations.WithLabelValues(op).Inc()
	if op == "liquidate" {
		m.liquidations.Inc()
	}
}

// OperationError implements dsc.Recorder. Oracle-originated rejections are
// tracked separately so feed trouble is visible at a glance.
func (m *Metrics) OperationError(op string, err error) {
	kind := dsc.ErrorKind(err)
	m.operationErrors.WithLabelValues(op, kind).Inc()
	switch kind {
	case "StalePrice", "PriceOutOfBounds", "SequencerUnavailable", "NoQuote":
		m.oracleFailures.WithLabelValues(kind).Inc()
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve runs a /metrics endpoint on addr. Blocks until the server exits.
func (m *Metrics) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	m.logger.Info("metrics endpoint listening", "addr", addr)
	return http.ListenAndServe(addr, mux)
}
