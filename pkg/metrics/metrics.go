package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsObserved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayer_events_observed_total",
			Help: "Gateway events observed per source chain and kind",
		}, []string{"chain", "kind"})

	EventsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayer_events_skipped_total",
			Help: "Events dropped without a command (already processed or unsupported destination)",
		}, []string{"chain", "reason"})

	CommandsExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayer_commands_executed_total",
			Help: "Commands successfully executed per destination chain",
		}, []string{"chain"})

	CommandFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayer_command_failures_total",
			Help: "Command execution failures per destination chain",
		}, []string{"chain"})

	Compensations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayer_compensations_total",
			Help: "Compensating refunds submitted per source chain",
		}, []string{"chain"})

	FailedTransactions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relayer_failed_transactions",
			Help: "Failed transactions currently tracked by the retry store",
		})
)
