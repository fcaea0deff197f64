// Package metrics holds the Prometheus collectors shared by the server.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversations_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conversations_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// StoreLatency is recorded by the Mongo repositories via ObserveStore.
	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conversations_store_latency_seconds",
			Help:    "Store operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	IdentityLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversations_identity_lookups_total",
			Help: "Identity service lookups by outcome (hit, fetched, fallback)",
		},
		[]string{"outcome"},
	)

	MembershipRepairsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversations_membership_repairs_total",
			Help: "Participant rows created or archived by the reconciler",
		},
		[]string{"action"},
	)

	RateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conversations_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	})

	RealtimeClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "conversations_realtime_clients",
		Help: "Connected realtime websocket clients",
	})
)

// ObserveStore records the latency of one repository operation since start.
func ObserveStore(operation string, start time.Time) {
	StoreLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// ObserveRequest records one finished HTTP request.
func ObserveRequest(method, route string, status int, elapsed time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
