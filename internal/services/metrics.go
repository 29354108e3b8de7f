package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// refundsCreated counts refund requests by source (dashboard, portal).
	refundsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refunds_created_total",
			Help: "Total number of refund requests created.",
		},
		[]string{"source"},
	)

	refundsApproved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "refunds_approved_total",
			Help: "Total number of refunds approved on the commerce platform.",
		},
	)

	// orderLookupFailures counts per-item order fetches that degraded to a
	// null order in list and detail views.
	orderLookupFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "order_lookup_failures_total",
			Help: "Total number of order lookups that failed during aggregation.",
		},
	)
)

func init() {
	prometheus.MustRegister(refundsCreated, refundsApproved, orderLookupFailures)
}
