package upstream

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	exchanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dns",
		Subsystem: "upstream",
		Name:      "exchanges_total",
		Help:      "Total number of DNS-over-TLS exchanges attempted, by upstream and result",
	}, []string{"upstream", "result"})

	exchangeSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dns",
		Subsystem: "upstream",
		Name:      "rtt_seconds",
		Help:      "A histogram of latencies for successful DNS-over-TLS exchanges",
	}, []string{"upstream"})
)

func RegisterMetrics(r prometheus.Registerer) {
	r.MustRegister(exchanges, exchangeSeconds)
}
