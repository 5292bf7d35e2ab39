package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SelectionsTotal tracks token selections by workload class and outcome
	SelectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tokenpool_selections_total",
		Help: "Total number of token selections",
	}, []string{"class", "outcome"})

	// FailuresRecorded tracks call failures recorded against tokens
	FailuresRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tokenpool_failures_recorded_total",
		Help: "Total number of call failures recorded against tokens",
	}, []string{"kind"})

	// CooldownsApplied tracks cooldown windows applied to tokens
	CooldownsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tokenpool_cooldowns_applied_total",
		Help: "Total number of cooldown windows applied to tokens",
	}, []string{"reason"})

	// TokensExpired tracks tokens transitioned to the terminal expired state
	TokensExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tokenpool_tokens_expired_total",
		Help: "Total number of tokens expired after repeated client errors",
	})

	// CallsLogged tracks call outcome records written to the log
	CallsLogged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tokenpool_calls_logged_total",
		Help: "Total number of call outcome records written",
	})
)
