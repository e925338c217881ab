package listener

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	datagrams = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dns",
		Subsystem: "listener",
		Name:      "datagrams_total",
		Help:      "Total number of datagrams received by the listener",
	})

	queueLength = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dns",
		Subsystem: "listener",
		Name:      "queue_length",
		Help:      "Number of received queries waiting for a worker",
	})
)

func RegisterMetrics(r prometheus.Registerer) {
	r.MustRegister(datagrams, queueLength)
}
