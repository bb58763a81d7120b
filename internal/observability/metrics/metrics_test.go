package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestSchedulingMetricsObserve(t *testing.T) {
	m := NewSchedulingMetrics(prometheus.NewRegistry())
	m.ObserveBooking("created")
	m.ObserveConflict("provider")
	m.ObserveTransition("SCHEDULED", "IN_PROGRESS")
	m.ObserveConflictCheck("clear", 0.01)
}

func TestSchedulingMetricsNilSafe(t *testing.T) {
	var m *SchedulingMetrics
	m.ObserveBooking("created")
	m.ObserveConflict("room")
	m.ObserveTransition("SCHEDULED", "CANCELLED")
	m.ObserveConflictCheck("conflict", 0.1)
}

func TestTelemedicineMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewTelemedicineMetrics(reg)
	m.ObserveSession("ACTIVE")
	m.ObserveCreditsDebited(2)
	m.ObserveCreditsDebited(0)
	m.ObserveTermination("insufficient_credits")
	m.ObserveCreditCheck("debited", 0.02)
	m.ObserveSweep(0.5, 3, 1)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() == CreditCheckLatencyName {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected %s to be registered", CreditCheckLatencyName)
	}
}

func TestTelemedicineMetricsNilSafe(t *testing.T) {
	var m *TelemedicineMetrics
	m.ObserveSession("ACTIVE")
	m.ObserveCreditsDebited(1)
	m.ObserveTermination("insufficient_credits")
	m.ObserveCreditCheck("noop", 0.1)
	m.ObserveSweep(1, 0, 0)
}
