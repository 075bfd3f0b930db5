package rbac

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/medrex/hms-access/pkg/rbac"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveDecision(&rbac.PermissionDecision{Rule: rbac.RuleRBAC}, time.Millisecond)
		m.EmergencyOverride()
		m.AttributeLookupFailed()
	})
}

func TestMetrics_RecordsDecisions(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	audit := &MockAuditSink{}
	audit.On("RecordEmergencyAccess", mock.Anything, mock.Anything).Return(nil)
	source := &MockAttributeSource{}
	source.On("GetUserAttributes", mock.Anything, "doc-1").Return(physician(), nil)
	source.On("GetUserAttributes", mock.Anything, "ghost").Return(nil, errors.New("timeout"))

	engine := setupABACTest(WithMetrics(metrics), WithAuditSink(audit), WithAttributeSource(source))
	ctx := context.Background()

	_, err := engine.EvaluateAccess(ctx, request(physician(), rbac.CategoryPatient, "Cardiology", rbac.ActionRead))
	require.NoError(t, err)
	_, err = engine.EvaluateAccess(ctx, request(physician(), rbac.CategoryPatient, "Oncology", rbac.ActionRead))
	require.NoError(t, err)

	emergency := request(physician(), rbac.CategoryPatient, "Oncology", rbac.ActionRead)
	emergency.Environment.IsEmergency = true
	_, err = engine.EvaluateAccess(ctx, emergency)
	require.NoError(t, err)

	ghost := physician()
	ghost.ID = "ghost"
	_, err = engine.EvaluateAccess(ctx, request(ghost, rbac.CategoryPatient, "Cardiology", rbac.ActionRead))
	require.NoError(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.decisionsTotal.WithLabelValues(string(rbac.RuleRBAC), "true")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.decisionsTotal.WithLabelValues(string(rbac.RuleDepartment), "false")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.decisionsTotal.WithLabelValues(string(rbac.RuleEmergency), "true")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.decisionsTotal.WithLabelValues(string(rbac.RuleAttributeFetch), "false")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.emergencyOverridesTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.attributeLookupFailures))
	assert.Equal(t, 4, testutil.CollectAndCount(metrics.decisionDuration))
}

func TestNewMetrics_Registers(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)

	assert.Panics(t, func() {
		NewMetrics(reg)
	})
}
