package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventsHandled = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_events_handled_total",
	Help: "Inbound events handled by kind and outcome",
}, []string{"kind", "outcome"})

var violationsDetected = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_violations_detected_total",
	Help: "Violations detected by type",
}, []string{"type"})

var raidTriggers = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_raid_triggers_total",
	Help: "Raid bursts that crossed the threshold, by resulting action",
}, []string{"action"})

var queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "automod_queue_depth",
	Help: "Events waiting to be handled",
})
