package daemon

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts dispatch outcomes per schedule kind plus DLQ traffic. One
// instance is shared by every poller and the drainer.
type Metrics struct {
	Dispatched    *prometheus.CounterVec
	DispatchError *prometheus.CounterVec
	Redelivered   prometheus.Counter
	DrainDropped  prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Dispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gamenight_schedule_dispatched_total",
			Help: "Schedule rows published and marked dispatched.",
		}, []string{"kind"}),
		DispatchError: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gamenight_schedule_dispatch_errors_total",
			Help: "Ticks aborted by a claim, publish, or commit failure.",
		}, []string{"kind"}),
		Redelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "gamenight_dlq_redelivered_total",
			Help: "Dead-lettered messages republished on the main exchange.",
		}),
		DrainDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "gamenight_dlq_dropped_total",
			Help: "Dead-lettered messages discarded for lack of a routing key.",
		}),
	}
}
