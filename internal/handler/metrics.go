package handler

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	dnsQueries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dns",
		Subsystem: "handler",
		Name:      "queries_total",
		Help:      "Total number of DNS queries handled by the proxy",
	})

	dnsBlocked = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dns",
		Subsystem: "handler",
		Name:      "queries_blocked_total",
		Help:      "Total number of DNS queries answered with NXDOMAIN",
	})

	dnsUpstreamed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dns",
		Subsystem: "handler",
		Name:      "queries_upstreamed_total",
		Help:      "Total number of DNS queries answered by an upstream",
	})

	dnsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dns",
		Subsystem: "handler",
		Name:      "queries_dropped_total",
		Help:      "Total number of DNS queries dropped without a reply",
	}, []string{"reason"})

	dnsLockContention = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dns",
		Subsystem: "handler",
		Name:      "lock_contention_total",
		Help:      "Total number of DNS queries not checked against the block lists due to a reload",
	})
)

func RegisterMetrics(r prometheus.Registerer) {
	r.MustRegister(
		dnsQueries,
		dnsBlocked,
		dnsUpstreamed,
		dnsDropped,
		dnsLockContention,
	)
}
