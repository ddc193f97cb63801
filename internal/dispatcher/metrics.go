package dispatcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var actionsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_actions_dispatched_total",
	Help: "Enforcement actions dispatched by action and outcome",
}, []string{"action", "outcome"})

var dispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "automod_dispatch_duration_seconds",
	Help:    "Time spent carrying out one enforcement decision",
	Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
}, []string{"action"})
