// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RateLimitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meetmap",
		Name:      "ratelimit_rejections_total",
		Help:      "Write requests rejected by the rate limiter, by tier.",
	}, []string{"tier"})

	RateLimitWindows = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "meetmap",
		Name:      "ratelimit_windows",
		Help:      "Live rate limiter windows after the last sweep.",
	})

	SessionsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "meetmap",
		Name:      "sessions_issued_total",
		Help:      "Session tokens issued by login, registration or the OAuth mock.",
	})

	SessionsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "meetmap",
		Name:      "sessions_expired_total",
		Help:      "Sessions deleted for inactivity, on resolve or by the sweeper.",
	})

	DocumentOps = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "meetmap",
		Name:      "document_op_duration_seconds",
		Help:      "Latency of whole-document loads and saves.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})

	Backups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meetmap",
		Name:      "backups_total",
		Help:      "Document backups uploaded to object storage, by result.",
	}, []string{"result"})

	PushNotifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meetmap",
		Name:      "push_notifications_total",
		Help:      "APNs pushes attempted, by result.",
	}, []string{"result"})
)
