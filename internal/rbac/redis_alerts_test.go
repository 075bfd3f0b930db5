package rbac

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/medrex/hms-access/pkg/rbac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisAlerts(t *testing.T, maxLen int) (*RedisAlertChannel, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	channel, err := NewRedisAlertChannel(context.Background(), "redis://"+mr.Addr(), "", maxLen)
	require.NoError(t, err)
	t.Cleanup(func() { channel.Close() })
	return channel, mr
}

func testAlert(n int) *SecurityAlert {
	return &SecurityAlert{
		ID:           fmt.Sprintf("alert-%d", n),
		Type:         AlertRepeatedDenials,
		Severity:     SeverityMedium,
		UserID:       "phys-1",
		ResourceType: rbac.CategoryPatient,
		Action:       rbac.ActionRead,
		Count:        n,
		Timestamp:    testNow,
	}
}

func TestRedisAlertChannel_SendAlert(t *testing.T) {
	ctx := context.Background()
	channel, mr := setupRedisAlerts(t, 2)

	for i := 1; i <= 3; i++ {
		require.NoError(t, channel.SendAlert(ctx, testAlert(i)))
	}

	stored, err := mr.List(DefaultAlertKey)
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	alerts, err := channel.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, "alert-3", alerts[0].ID)
	assert.Equal(t, "alert-2", alerts[1].ID)
	assert.Equal(t, AlertRepeatedDenials, alerts[0].Type)
	assert.True(t, testNow.Equal(alerts[0].Timestamp))

	t.Run("limit", func(t *testing.T) {
		alerts, err := channel.Recent(ctx, 1)
		require.NoError(t, err)
		assert.Len(t, alerts, 1)

		alerts, err = channel.Recent(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, alerts)
	})

	t.Run("corrupt entry", func(t *testing.T) {
		mr.Lpush(DefaultAlertKey, "{not json")
		_, err := channel.Recent(ctx, 1)
		assert.Error(t, err)
	})

	t.Run("server down", func(t *testing.T) {
		mr.Close()
		assert.Error(t, channel.Ping(ctx))
		assert.Error(t, channel.SendAlert(ctx, testAlert(4)))
	})
}

func TestRedisAlertChannel_ThroughMonitor(t *testing.T) {
	channel, mr := setupRedisAlerts(t, 0)
	monitor := NewActivityMonitor(ActivityThresholds{MaxConsecutiveDenials: 1}, testLogger(), nil, channel)

	req := request(physician(), rbac.CategoryPatient, "Oncology", rbac.ActionRead)
	alert := monitor.Observe(context.Background(), req, decisionAt(false, rbac.RuleDepartment, testNow))
	require.NotNil(t, alert)

	stored, err := mr.List(DefaultAlertKey)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Contains(t, stored[0], alert.ID)
}

func TestNewRedisAlertChannel_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := NewRedisAlertChannel(ctx, "http://not-redis", "", 0)
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err = NewRedisAlertChannel(ctx, "redis://"+addr, "", 0)
	assert.Error(t, err)
}
