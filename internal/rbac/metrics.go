package rbac

import (
	"strconv"
	"time"

	"github.com/medrex/hms-access/pkg/rbac"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for access decisions.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	decisionsTotal          *prometheus.CounterVec
	decisionDuration        *prometheus.HistogramVec
	emergencyOverridesTotal prometheus.Counter
	attributeLookupFailures prometheus.Counter
	securityAlertsTotal     *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "access_decisions_total",
				Help: "Total number of access decisions by rule and outcome",
			},
			[]string{"rule", "allowed"},
		),
		decisionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "access_decision_duration_seconds",
				Help:    "Duration of ABAC evaluations in seconds",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5},
			},
			[]string{"rule"},
		),
		emergencyOverridesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "access_emergency_overrides_total",
				Help: "Total number of audited emergency overrides",
			},
		),
		attributeLookupFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "access_attribute_lookup_failures_total",
				Help: "Total number of failed or timed out user attribute lookups",
			},
		),
		securityAlertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "access_security_alerts_total",
				Help: "Total number of security alerts by type",
			},
			[]string{"type"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.decisionsTotal,
			m.decisionDuration,
			m.emergencyOverridesTotal,
			m.attributeLookupFailures,
			m.securityAlertsTotal,
		)
	}
	return m
}

// ObserveDecision records one evaluation outcome
func (m *Metrics) ObserveDecision(decision *rbac.PermissionDecision, duration time.Duration) {
	if m == nil || decision == nil {
		return
	}
	rule := string(decision.Rule)
	m.decisionsTotal.WithLabelValues(rule, strconv.FormatBool(decision.Allowed)).Inc()
	m.decisionDuration.WithLabelValues(rule).Observe(duration.Seconds())
}

// EmergencyOverride counts an audited emergency override
func (m *Metrics) EmergencyOverride() {
	if m == nil {
		return
	}
	m.emergencyOverridesTotal.Inc()
}

// AttributeLookupFailed counts a failed attribute lookup
func (m *Metrics) AttributeLookupFailed() {
	if m == nil {
		return
	}
	m.attributeLookupFailures.Inc()
}

// SecurityAlert counts an alert raised by the activity monitor
func (m *Metrics) SecurityAlert(alertType AlertType) {
	if m == nil {
		return
	}
	m.securityAlertsTotal.WithLabelValues(string(alertType)).Inc()
}
