// Package metrics holds the prometheus instruments the service exports
// on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP surface
var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapcal_http_requests_total",
		Help: "HTTP requests handled, by method and status code.",
	}, []string{"method", "code"})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "snapcal_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})
)

// Credit ledger
var CreditsConsumed = promauto.NewCounter(prometheus.CounterOpts{
	Name: "snapcal_credits_consumed_total",
	Help: "Credits spent on paid actions.",
})

// Vision api
var VisionRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "snapcal_vision_requests_total",
	Help: "Calls to the vision api, by outcome.",
}, []string{"outcome"})
