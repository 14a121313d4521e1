package httpapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthqueue_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "healthqueue_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	checkIns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthqueue_checkins_total",
			Help: "Check-ins by whether a new entry was created.",
		},
		[]string{"outcome"},
	)

	transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthqueue_status_transitions_total",
			Help: "Queue entry status changes by target status.",
		},
		[]string{"status"},
	)

	loginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthqueue_login_attempts_total",
			Help: "Login attempts by role and result.",
		},
		[]string{"role", "result"},
	)
)
