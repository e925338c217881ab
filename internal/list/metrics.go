package list

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainsBlocked = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "policy",
		Subsystem: "list",
		Name:      "domains_blocked_total",
		Help:      "Number of blocked domains across all block lists",
	})

	reloads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "policy",
		Subsystem: "list",
		Name:      "reloads_total",
		Help:      "Number of block list reloads, by result",
	}, []string{"result"})
)

func RegisterMetrics(r prometheus.Registerer) {
	r.MustRegister(domainsBlocked, reloads)
}
