package lockdown

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var activeLockdowns = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "automod_lockdowns_active",
	Help: "Number of guilds currently locked down",
})

var lockdownTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_lockdown_transitions_total",
	Help: "Lockdown and unlock attempts by outcome",
}, []string{"transition", "result"})
