package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "managerclin"

// SchedulingMetrics exposes counters for the booking flow.
type SchedulingMetrics struct {
	bookingsTotal    *prometheus.CounterVec
	conflictsTotal   *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	checkLatency     *prometheus.HistogramVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "bookings_total",
			Help:      "Booking attempts by result",
		}, []string{"result"}),
		conflictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "conflicts_total",
			Help:      "Conflicting appointments detected by resource",
		}, []string{"resource"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "status_transitions_total",
			Help:      "Appointment status transitions",
		}, []string{"from", "to"}),
		checkLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "conflict_check_seconds",
			Help:      "Latency of conflict detection",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.conflictsTotal, m.transitionsTotal, m.checkLatency)
	return m
}

func (m *SchedulingMetrics) ObserveBooking(result string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(result).Inc()
}

func (m *SchedulingMetrics) ObserveConflict(resource string) {
	if m == nil {
		return
	}
	m.conflictsTotal.WithLabelValues(resource).Inc()
}

func (m *SchedulingMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(from, to).Inc()
}

func (m *SchedulingMetrics) ObserveConflictCheck(result string, seconds float64) {
	if m == nil {
		return
	}
	m.checkLatency.WithLabelValues(result).Observe(seconds)
}

// TelemedicineMetrics exposes counters/histograms for session metering.
type TelemedicineMetrics struct {
	sessionsTotal  *prometheus.CounterVec
	creditsDebited prometheus.Counter
	terminations   *prometheus.CounterVec
	checkLatency   *prometheus.HistogramVec
	sweepDuration  prometheus.Histogram
	sweepFailures  prometheus.Counter
	activeSessions prometheus.Gauge
}

// CreditCheckLatencyName is the fully qualified histogram name, read back by the dashboard.
const CreditCheckLatencyName = namespace + "_telemedicine_credit_check_seconds"

func NewTelemedicineMetrics(reg prometheus.Registerer) *TelemedicineMetrics {
	m := &TelemedicineMetrics{
		sessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telemedicine",
			Name:      "sessions_total",
			Help:      "Session lifecycle events by status",
		}, []string{"status"}),
		creditsDebited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telemedicine",
			Name:      "credits_debited_total",
			Help:      "Credits consumed by telemedicine sessions",
		}),
		terminations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telemedicine",
			Name:      "forced_terminations_total",
			Help:      "Sessions ended by the metering loop",
		}, []string{"reason"}),
		checkLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "telemedicine",
			Name:      "credit_check_seconds",
			Help:      "Latency of a single session credit check",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "telemedicine",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of a full metering sweep",
			Buckets:   prometheus.DefBuckets,
		}),
		sweepFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telemedicine",
			Name:      "sweep_failures_total",
			Help:      "Session credit checks that failed during a sweep",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "telemedicine",
			Name:      "active_sessions",
			Help:      "Active sessions seen by the last sweep",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.sessionsTotal, m.creditsDebited, m.terminations, m.checkLatency, m.sweepDuration, m.sweepFailures, m.activeSessions)
	return m
}

func (m *TelemedicineMetrics) ObserveSession(status string) {
	if m == nil {
		return
	}
	m.sessionsTotal.WithLabelValues(status).Inc()
}

func (m *TelemedicineMetrics) ObserveCreditsDebited(amount int) {
	if m == nil || amount <= 0 {
		return
	}
	m.creditsDebited.Add(float64(amount))
}

func (m *TelemedicineMetrics) ObserveTermination(reason string) {
	if m == nil {
		return
	}
	m.terminations.WithLabelValues(reason).Inc()
}

func (m *TelemedicineMetrics) ObserveCreditCheck(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.checkLatency.WithLabelValues(outcome).Observe(seconds)
}

func (m *TelemedicineMetrics) ObserveSweep(seconds float64, active, failures int) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(seconds)
	m.activeSessions.Set(float64(active))
	if failures > 0 {
		m.sweepFailures.Add(float64(failures))
	}
}
