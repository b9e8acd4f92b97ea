// Package metrics exposes the relayer's Prometheus counters. The teacher's
// go.mod already requires github.com/prometheus/client_golang but never
// wires it into source; this package is where that dependency earns its
// keep (SPEC_FULL.md's ambient-stack expansion).
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// EventsIngested counts events persisted by the Hub or EVM pipelines,
	// labelled by the event's wire type.
	EventsIngested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relayer_events_ingested_total",
		Help: "Number of events persisted into the event store, by event type.",
	}, []string{"event_type"})

	// RelaysBroadcast counts Hub messages submitted through the broadcaster,
	// labelled by message kind and outcome.
	RelaysBroadcast = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relayer_hub_broadcasts_total",
		Help: "Number of Hub transactions submitted, by message kind and outcome.",
	}, []string{"kind", "outcome"})

	// StartRelayRetries counts retry_count bumps performed by the Hub
	// pipeline's start_relay procedure.
	StartRelayRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relayer_start_relay_retries_total",
		Help: "Number of times a pending action's retry_count was bumped.",
	})

	// GasEscalations counts each gas-price escalation attempt the EVM client
	// makes while waiting for an execute() receipt.
	GasEscalations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relayer_evm_gas_escalations_total",
		Help: "Number of gas-price escalation attempts made per chain.",
	}, []string{"blockchain"})

	// ApprovedCallsExecuted counts EVM execute() outcomes, labelled by chain
	// and terminal status.
	ApprovedCallsExecuted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relayer_evm_executions_total",
		Help: "Number of approved calls resolved, by chain and terminal status.",
	}, []string{"blockchain", "status"})
)

func init() {
	prometheus.MustRegister(EventsIngested, RelaysBroadcast, StartRelayRetries, GasEscalations, ApprovedCallsExecuted)
}
