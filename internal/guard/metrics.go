package guard

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	acquisitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guard_lock_acquisitions_total",
		Help: "Advisory lock acquisitions, by operation class.",
	}, []string{"class"})

	waitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "guard_lock_wait_seconds",
		Help:    "Time spent polling for a busy resource to become free.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
	})

	waitTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "guard_lock_wait_timeouts_total",
		Help: "Waits abandoned after exhausting the poll budget.",
	})
)
