package rbac

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/medrex/hms-access/pkg/logger"
	"github.com/medrex/hms-access/pkg/rbac"
	"github.com/sirupsen/logrus"
)

// PostgresAuditSink persists emergency-override records in PostgreSQL
type PostgresAuditSink struct {
	db     *sql.DB
	logger *logrus.Logger
}

// NewPostgresAuditSink creates an audit sink over an open database handle
func NewPostgresAuditSink(db *sql.DB, logger *logrus.Logger) *PostgresAuditSink {
	return &PostgresAuditSink{
		db:     db,
		logger: logger,
	}
}

// RecordEmergencyAccess inserts one emergency-override record
func (a *PostgresAuditSink) RecordEmergencyAccess(ctx context.Context, record *rbac.AuditRecord) error {
	metadataJSON, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO access_audit_log
		(id, event_type, user_id, roles, resource_type, resource_id, action, reason, timestamp, ip_address, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = a.db.ExecContext(ctx, query,
		record.ID,
		record.EventType,
		record.UserID,
		joinRoles(record.Roles),
		record.ResourceType,
		nullString(record.ResourceID),
		record.Action,
		record.Reason,
		record.Timestamp,
		nullString(record.IPAddress),
		metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}

	a.logger.WithFields(logrus.Fields{
		"audit_id": record.ID,
		"user_id":  record.UserID,
		"event":    record.EventType,
	}).Debug("Audit record stored")
	return nil
}

// ListEmergencyAccess returns emergency-override records for post-hoc review, newest first
func (a *PostgresAuditSink) ListEmergencyAccess(ctx context.Context, filter *rbac.AuditFilter) ([]*rbac.AuditRecord, error) {
	query := `
		SELECT id, event_type, user_id, roles, resource_type, resource_id, action, reason,
		       timestamp, ip_address, metadata
		FROM access_audit_log
		WHERE event_type = $1`

	args := []interface{}{rbac.AuditEventEmergencyOverride}
	argIndex := 2

	if filter == nil {
		filter = &rbac.AuditFilter{}
	}

	if filter.UserID != "" {
		query += fmt.Sprintf(" AND user_id = $%d", argIndex)
		args = append(args, filter.UserID)
		argIndex++
	}

	if filter.ResourceID != "" {
		query += fmt.Sprintf(" AND resource_id = $%d", argIndex)
		args = append(args, filter.ResourceID)
		argIndex++
	}

	if !filter.StartTime.IsZero() {
		query += fmt.Sprintf(" AND timestamp >= $%d", argIndex)
		args = append(args, filter.StartTime)
		argIndex++
	}

	if !filter.EndTime.IsZero() {
		query += fmt.Sprintf(" AND timestamp <= $%d", argIndex)
		args = append(args, filter.EndTime)
		argIndex++
	}

	query += " ORDER BY timestamp DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = rbac.DefaultAuditQueryLimit
	}
	query += fmt.Sprintf(" LIMIT $%d", argIndex)
	args = append(args, limit)
	argIndex++

	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIndex)
		args = append(args, filter.Offset)
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer rows.Close()

	var records []*rbac.AuditRecord
	for rows.Next() {
		var (
			record       rbac.AuditRecord
			roles        string
			resourceID   sql.NullString
			ipAddress    sql.NullString
			metadataJSON []byte
		)
		if err := rows.Scan(
			&record.ID,
			&record.EventType,
			&record.UserID,
			&roles,
			&record.ResourceType,
			&resourceID,
			&record.Action,
			&record.Reason,
			&record.Timestamp,
			&ipAddress,
			&metadataJSON,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}

		record.Roles = splitRoles(roles)
		record.ResourceID = resourceID.String
		record.IPAddress = ipAddress.String
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &record.Metadata); err != nil {
				a.logger.WithError(err).WithField("audit_id", record.ID).Warn("Failed to unmarshal audit metadata")
			}
		}
		records = append(records, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit records: %w", err)
	}

	return records, nil
}

// LogAuditSink writes emergency-override records to the structured audit log
type LogAuditSink struct {
	logger *logger.Logger
}

// NewLogAuditSink creates a log-backed audit sink
func NewLogAuditSink(log *logger.Logger) *LogAuditSink {
	return &LogAuditSink{logger: log}
}

// RecordEmergencyAccess emits the record as an audit event
func (l *LogAuditSink) RecordEmergencyAccess(ctx context.Context, record *rbac.AuditRecord) error {
	l.logger.Audit(record.UserID, record.Action, record.ResourceType, true, map[string]interface{}{
		"audit_id":    record.ID,
		"event_type":  record.EventType,
		"roles":       joinRoles(record.Roles),
		"resource_id": record.ResourceID,
		"reason":      record.Reason,
		"timestamp":   record.Timestamp.Format(rbac.TimeFormatDateTime),
		"ip_address":  record.IPAddress,
		"metadata":    record.Metadata,
	})
	return nil
}

// MultiAuditSink fans a record out to several sinks; any failure fails the write
type MultiAuditSink []rbac.AuditSink

// RecordEmergencyAccess writes to every sink and returns the first error
func (m MultiAuditSink) RecordEmergencyAccess(ctx context.Context, record *rbac.AuditRecord) error {
	var firstErr error
	for _, sink := range m {
		if err := sink.RecordEmergencyAccess(ctx, record); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func joinRoles(roles []rbac.Role) string {
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, ",")
}

func splitRoles(value string) []rbac.Role {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	roles := make([]rbac.Role, 0, len(parts))
	for _, p := range parts {
		roles = append(roles, rbac.Role(p))
	}
	return roles
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
