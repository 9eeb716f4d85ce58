package businessflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DispatchMetrics holds the Prometheus instruments for the dispatch pipeline.
// A fresh registerer per instance keeps tests independent of the default
// registry.
type DispatchMetrics struct {
	DispatchTotal   *prometheus.CounterVec // outcome: sent, blocked, failed
	BlockedTotal    *prometheus.CounterVec // reason: classifier block reasons
	SendDuration    prometheus.Histogram
	SuspendedTotal  prometheus.Counter
	FallbackTotal   prometheus.Counter
	PollCyclesTotal prometheus.Counter
	PollRowsTotal   *prometheus.CounterVec // sheet_type
	PrunedTotal     prometheus.Counter
}

func NewDispatchMetrics(reg prometheus.Registerer) *DispatchMetrics {
	factory := promauto.With(reg)
	return &DispatchMetrics{
		DispatchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "darzi_dispatch_total",
			Help: "Notification dispatch attempts by recorded outcome",
		}, []string{"outcome"}),
		BlockedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "darzi_dispatch_blocked_total",
			Help: "Blocked dispatches by classifier reason",
		}, []string{"reason"}),
		SendDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "darzi_send_duration_seconds",
			Help:    "Wall time of individual transport sends",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 15},
		}),
		SuspendedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "darzi_dispatch_suspended_total",
			Help: "Dispatches refused because the customer was suspended",
		}),
		FallbackTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "darzi_dispatch_fallback_total",
			Help: "Fallback messages attempted after a blocked dispatch",
		}),
		PollCyclesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "darzi_poll_cycles_total",
			Help: "Completed spreadsheet poll cycles",
		}),
		PollRowsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "darzi_poll_rows_total",
			Help: "Spreadsheet rows read per sheet type",
		}, []string{"sheet_type"}),
		PrunedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "darzi_ledger_pruned_events_total",
			Help: "Ledger events removed by retention pruning",
		}),
	}
}
