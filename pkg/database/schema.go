package database

import (
	"context"
	"fmt"
)

// CreateSchema creates the profile and access-audit tables
func (db *DB) CreateSchema(ctx context.Context) error {
	db.logger.Info("Creating database schema...")

	statements := []string{
		createUserProfilesTable,
		createUserRolesTable,
		createAccessAuditLogTable,
		createUserRolesIndexes,
		createAccessAuditLogIndexes,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	db.logger.Info("Database schema created successfully")
	return nil
}

// SQL DDL statements for table creation
const (
	createUserProfilesTable = `
		CREATE TABLE IF NOT EXISTS user_profiles (
			id VARCHAR(100) PRIMARY KEY,
			primary_role VARCHAR(50),
			hospital_id VARCHAR(100) NOT NULL,
			department VARCHAR(100),
			seniority INTEGER NOT NULL DEFAULT 0,
			clearance VARCHAR(20) NOT NULL DEFAULT 'low',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			last_login TIMESTAMP WITH TIME ZONE,
			device_type VARCHAR(50),
			location VARCHAR(100),
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);`

	createUserRolesTable = `
		CREATE TABLE IF NOT EXISTS user_roles (
			user_id VARCHAR(100) NOT NULL REFERENCES user_profiles(id) ON DELETE CASCADE,
			role VARCHAR(50) NOT NULL,
			granted_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			PRIMARY KEY (user_id, role)
		);`

	createAccessAuditLogTable = `
		CREATE TABLE IF NOT EXISTS access_audit_log (
			id VARCHAR(36) PRIMARY KEY,
			event_type VARCHAR(50) NOT NULL,
			user_id VARCHAR(100) NOT NULL,
			roles TEXT NOT NULL,
			resource_type VARCHAR(50) NOT NULL,
			resource_id VARCHAR(100),
			action VARCHAR(50) NOT NULL,
			reason TEXT NOT NULL,
			timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
			ip_address VARCHAR(64),
			metadata JSONB,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);`

	createUserRolesIndexes = `
		CREATE INDEX IF NOT EXISTS idx_user_roles_role ON user_roles(role);`

	createAccessAuditLogIndexes = `
		CREATE INDEX IF NOT EXISTS idx_access_audit_user_id ON access_audit_log(user_id);
		CREATE INDEX IF NOT EXISTS idx_access_audit_timestamp ON access_audit_log(timestamp);
		CREATE INDEX IF NOT EXISTS idx_access_audit_event_type ON access_audit_log(event_type);`
)
