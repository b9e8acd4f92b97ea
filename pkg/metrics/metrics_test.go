package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestEventsIngested_IncrementsByLabel(t *testing.T) {
	EventsIngested.Reset()
	EventsIngested.WithLabelValues("PendingActionEvent").Inc()
	EventsIngested.WithLabelValues("PendingActionEvent").Inc()
	EventsIngested.WithLabelValues("AxelarCallContractEvent").Inc()

	if got := testutil.ToFloat64(EventsIngested.WithLabelValues("PendingActionEvent")); got != 2 {
		t.Errorf("PendingActionEvent count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(EventsIngested.WithLabelValues("AxelarCallContractEvent")); got != 1 {
		t.Errorf("AxelarCallContractEvent count = %v, want 1", got)
	}
}

func TestGasEscalations_PerChainLabel(t *testing.T) {
	GasEscalations.Reset()
	GasEscalations.WithLabelValues("1").Inc()
	GasEscalations.WithLabelValues("1").Inc()
	GasEscalations.WithLabelValues("137").Inc()

	if got := testutil.ToFloat64(GasEscalations.WithLabelValues("1")); got != 2 {
		t.Errorf("chain 1 escalations = %v, want 2", got)
	}
	if got := testutil.ToFloat64(GasEscalations.WithLabelValues("137")); got != 1 {
		t.Errorf("chain 137 escalations = %v, want 1", got)
	}
}
