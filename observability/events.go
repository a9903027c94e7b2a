package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dhanesh24g/foundry-defi-stablecoin/native/dsc"
)

type engineMetrics struct {
	operations *prometheus.CounterVec
	volume     *prometheus.CounterVec
}

var (
	engineMetricsOnce sync.Once
	engineRegistry    *engineMetrics
)

// Engine returns the metrics registry tracking engine events.
func Engine() *engineMetrics {
	engineMetricsOnce.Do(func() {
		engineRegistry = &engineMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dsc",
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Count of engine state changes segmented by kind.",
			}, []string{"kind"}),
			volume: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dsc",
				Subsystem: "engine",
				Name:      "ledger_entries_total",
				Help:      "Count of ledger credits and debits segmented by asset.",
			}, []string{"direction", "asset"}),
		}
		prometheus.MustRegister(engineRegistry.operations, engineRegistry.volume)
	})
	return engineRegistry
}

// Emitter adapts the metrics registry to the engine's event sink.
func (m *engineMetrics) Emitter() dsc.EventEmitter {
	return dsc.EmitterFunc(func(evt dsc.Event) {
		if m == nil {
			return
		}
		switch evt.Kind {
		case dsc.EventLedgerCredit:
			m.volume.WithLabelValues("credit", evt.Asset.Hex()).Inc()
		case dsc.EventLedgerDebit:
			m.volume.WithLabelValues("debit", evt.Asset.Hex()).Inc()
		default:
			m.operations.WithLabelValues(evt.Kind).Inc()
		}
	})
}
