package rbac

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/medrex/hms-access/pkg/rbac"
	"github.com/sirupsen/logrus"
)

// AlertType classifies a security alert raised by the activity monitor
type AlertType string

// Alert types
const (
	AlertRepeatedDenials AlertType = "repeated_denials"
	AlertEmergencyBurst  AlertType = "emergency_override_burst"
	AlertHardDenyAttempt AlertType = "hard_deny_attempt"
)

// AlertSeverity levels
const (
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// SecurityAlert describes a suspicious access pattern
type SecurityAlert struct {
	ID           string    `json:"id"`
	Type         AlertType `json:"type"`
	Severity     string    `json:"severity"`
	UserID       string    `json:"user_id"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id,omitempty"`
	Action       string    `json:"action"`
	IPAddress    string    `json:"ip_address,omitempty"`
	Count        int       `json:"count"`
	Timestamp    time.Time `json:"timestamp"`
}

// AlertChannel delivers security alerts
type AlertChannel interface {
	SendAlert(ctx context.Context, alert *SecurityAlert) error
}

// LogAlertChannel writes alerts to the structured log
type LogAlertChannel struct {
	logger *logrus.Logger
}

// NewLogAlertChannel creates a log-backed alert channel
func NewLogAlertChannel(logger *logrus.Logger) *LogAlertChannel {
	return &LogAlertChannel{logger: logger}
}

// SendAlert logs the alert at warn level
func (lc *LogAlertChannel) SendAlert(ctx context.Context, alert *SecurityAlert) error {
	lc.logger.WithFields(logrus.Fields{
		"security":      true,
		"alert_id":      alert.ID,
		"alert_type":    alert.Type,
		"severity":      alert.Severity,
		"user_id":       alert.UserID,
		"resource_type": alert.ResourceType,
		"resource_id":   alert.ResourceID,
		"action":        alert.Action,
		"ip_address":    alert.IPAddress,
		"count":         alert.Count,
	}).Warn("Security alert")
	return nil
}

// ActivityThresholds bound per-user behaviour within Window. A zero limit
// disables that check.
type ActivityThresholds struct {
	MaxConsecutiveDenials int
	MaxEmergencyOverrides int
	Window                time.Duration
}

// DefaultActivityThresholds returns the production thresholds
func DefaultActivityThresholds() ActivityThresholds {
	return ActivityThresholds{
		MaxConsecutiveDenials: 5,
		MaxEmergencyOverrides: 3,
		Window:                15 * time.Minute,
	}
}

type userActivity struct {
	consecutiveDenials int
	overrides          []time.Time
	lastSeen           time.Time
}

// ActivityMonitor tracks decisions per user and raises alerts on
// suspicious patterns. It never changes a decision.
type ActivityMonitor struct {
	thresholds ActivityThresholds
	channels   []AlertChannel
	metrics    *Metrics
	logger     *logrus.Logger

	mu    sync.Mutex
	users map[string]*userActivity
}

// NewActivityMonitor creates a monitor delivering to channels
func NewActivityMonitor(thresholds ActivityThresholds, logger *logrus.Logger, metrics *Metrics, channels ...AlertChannel) *ActivityMonitor {
	if thresholds.Window <= 0 {
		thresholds.Window = DefaultActivityThresholds().Window
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &ActivityMonitor{
		thresholds: thresholds,
		channels:   channels,
		metrics:    metrics,
		logger:     logger,
		users:      make(map[string]*userActivity),
	}
}

// Observe records one decision and returns the alert it triggered, if any
func (am *ActivityMonitor) Observe(ctx context.Context, req *rbac.PermissionRequest, decision *rbac.PermissionDecision) *SecurityAlert {
	if am == nil || req == nil || req.User == nil || decision == nil {
		return nil
	}
	at := decision.EvaluatedAt
	if at.IsZero() {
		at = time.Now()
	}

	alert := am.record(req.User.ID, decision, at)
	if alert == nil {
		return nil
	}

	alert.ID = uuid.New().String()
	alert.UserID = req.User.ID
	alert.ResourceType = req.Resource.Type
	alert.ResourceID = req.Resource.ID
	alert.Action = req.Action
	alert.IPAddress = req.Environment.IPAddress
	alert.Timestamp = at

	am.metrics.SecurityAlert(alert.Type)
	for _, ch := range am.channels {
		if err := ch.SendAlert(ctx, alert); err != nil {
			am.logger.WithError(err).WithField("alert_id", alert.ID).Error("Failed to deliver security alert")
		}
	}
	return alert
}

func (am *ActivityMonitor) record(userID string, decision *rbac.PermissionDecision, at time.Time) *SecurityAlert {
	am.mu.Lock()
	defer am.mu.Unlock()

	activity, ok := am.users[userID]
	if !ok {
		activity = &userActivity{}
		am.users[userID] = activity
	}
	activity.lastSeen = at

	if decision.Rule == rbac.RuleHardDeny {
		return &SecurityAlert{Type: AlertHardDenyAttempt, Severity: SeverityHigh, Count: 1}
	}

	if !decision.Allowed {
		activity.consecutiveDenials++
		limit := am.thresholds.MaxConsecutiveDenials
		if limit > 0 && activity.consecutiveDenials >= limit {
			count := activity.consecutiveDenials
			activity.consecutiveDenials = 0
			return &SecurityAlert{Type: AlertRepeatedDenials, Severity: SeverityMedium, Count: count}
		}
		return nil
	}
	activity.consecutiveDenials = 0

	if decision.Rule != rbac.RuleEmergency {
		return nil
	}
	cutoff := at.Add(-am.thresholds.Window)
	kept := activity.overrides[:0]
	for _, t := range activity.overrides {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	activity.overrides = append(kept, at)

	limit := am.thresholds.MaxEmergencyOverrides
	if limit > 0 && len(activity.overrides) > limit {
		return &SecurityAlert{Type: AlertEmergencyBurst, Severity: SeverityHigh, Count: len(activity.overrides)}
	}
	return nil
}

// Cleanup forgets users not seen within the window before now
func (am *ActivityMonitor) Cleanup(now time.Time) {
	am.mu.Lock()
	defer am.mu.Unlock()

	cutoff := now.Add(-am.thresholds.Window)
	for userID, activity := range am.users {
		if activity.lastSeen.Before(cutoff) {
			delete(am.users, userID)
		}
	}
}

// StartCleanup runs Cleanup every interval until ctx is done
func (am *ActivityMonitor) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				am.Cleanup(now)
			}
		}
	}()
}

func (am *ActivityMonitor) tracked() int {
	am.mu.Lock()
	defer am.mu.Unlock()
	return len(am.users)
}
