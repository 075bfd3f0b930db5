package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticChecker struct {
	status HealthStatus
}

func (s staticChecker) Check(ctx context.Context) HealthCheck {
	return HealthCheck{Status: s.status}
}

func TestHealthManager_CheckHealth(t *testing.T) {
	ctx := context.Background()

	t.Run("no checks is healthy", func(t *testing.T) {
		report := NewHealthManager("hms-access", "1.0.0").CheckHealth(ctx)
		assert.Equal(t, HealthStatusHealthy, report.Status)
		assert.Equal(t, "hms-access", report.Service)
		assert.Empty(t, report.Checks)
	})

	tests := []struct {
		name     string
		statuses []HealthStatus
		expected HealthStatus
	}{
		{"all healthy", []HealthStatus{HealthStatusHealthy, HealthStatusHealthy}, HealthStatusHealthy},
		{"one degraded", []HealthStatus{HealthStatusHealthy, HealthStatusDegraded}, HealthStatusDegraded},
		{"unhealthy wins", []HealthStatus{HealthStatusDegraded, HealthStatusUnhealthy}, HealthStatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hm := NewHealthManager("hms-access", "1.0.0")
			for i, status := range tt.statuses {
				hm.RegisterChecker(string(rune('a'+i)), staticChecker{status: status})
			}

			report := hm.CheckHealth(ctx)
			assert.Equal(t, tt.expected, report.Status)
			require.Len(t, report.Checks, len(tt.statuses))
			assert.Equal(t, "a", report.Checks[0].Name)
			assert.Equal(t, "b", report.Checks[1].Name)
		})
	}

	t.Run("checks are bounded by the timeout", func(t *testing.T) {
		hm := NewHealthManager("hms-access", "1.0.0")
		hm.SetTimeout(10 * time.Millisecond)
		hm.RegisterChecker("slow", CheckerFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}))

		report := hm.CheckHealth(ctx)
		assert.Equal(t, HealthStatusUnhealthy, report.Status)
		assert.Contains(t, report.Checks[0].Message, "deadline exceeded")
	})
}

func TestHealthManager_HTTPHandler(t *testing.T) {
	hm := NewHealthManager("hms-access", "1.0.0")
	hm.RegisterChecker("cache", staticChecker{status: HealthStatusDegraded})

	rr := httptest.NewRecorder()
	hm.HTTPHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	var report HealthReport
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	assert.Equal(t, HealthStatusDegraded, report.Status)
	assert.Equal(t, 1, report.Summary["degraded"])

	hm.RegisterChecker("database", CheckerFunc(func(ctx context.Context) error { return errors.New("down") }))
	rr = httptest.NewRecorder()
	hm.HTTPHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestHealthManager_LivenessHandler(t *testing.T) {
	hm := NewHealthManager("hms-access", "1.0.0")
	hm.RegisterChecker("database", CheckerFunc(func(ctx context.Context) error { return errors.New("down") }))

	rr := httptest.NewRecorder()
	hm.LivenessHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "alive", body["status"])
	assert.Equal(t, "1.0.0", body["version"])
}

func TestDatabaseHealthChecker(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	checker := NewDatabaseHealthChecker(db)

	mock.ExpectPing()
	check := checker.Check(context.Background())
	assert.Equal(t, HealthStatusHealthy, check.Status)
	assert.Contains(t, check.Details, "open_connections")

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	check = checker.Check(context.Background())
	assert.Equal(t, HealthStatusUnhealthy, check.Status)
	assert.Contains(t, check.Message, "connection refused")

	assert.NoError(t, mock.ExpectationsWereMet())
}
