package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/medrex/hms-access/pkg/database"
	"github.com/medrex/hms-access/pkg/rbac"
	"github.com/sirupsen/logrus"
)

// Store reads user profiles and role assignments from PostgreSQL.
// It is the attribute source the ABAC evaluator refreshes callers from.
type Store struct {
	db     *database.DB
	logger *logrus.Logger
}

// NewStore creates a profile store
func NewStore(db *database.DB, logger *logrus.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

const selectProfileSQL = `
	SELECT p.id, p.primary_role, p.hospital_id, p.department, p.seniority,
	       p.clearance, p.is_active, p.last_login, p.device_type, p.location,
	       COALESCE(array_agg(r.role ORDER BY r.role) FILTER (WHERE r.role IS NOT NULL), '{}')
	FROM user_profiles p
	LEFT JOIN user_roles r ON r.user_id = p.id
	WHERE p.id = $1
	GROUP BY p.id`

// GetUserAttributes returns the stored profile, or nil when the user has none
func (s *Store) GetUserAttributes(ctx context.Context, userID string) (*rbac.UserAttributes, error) {
	var (
		user        rbac.UserAttributes
		primaryRole sql.NullString
		department  sql.NullString
		clearance   string
		lastLogin   sql.NullTime
		deviceType  sql.NullString
		location    sql.NullString
		roles       []string
	)

	err := s.db.QueryRowContext(ctx, selectProfileSQL, userID).Scan(
		&user.ID,
		&primaryRole,
		&user.HospitalID,
		&department,
		&user.Seniority,
		&clearance,
		&user.Active,
		&lastLogin,
		&deviceType,
		&location,
		pq.Array(&roles),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.WithField("user_id", userID).Debug("No stored profile")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user profile: %w", err)
	}

	user.PrimaryRole = rbac.Role(primaryRole.String)
	user.Department = department.String
	user.Clearance = rbac.ClearanceLevel(clearance)
	user.DeviceType = deviceType.String
	user.Location = location.String
	if lastLogin.Valid {
		t := lastLogin.Time
		user.LastLogin = &t
	}

	user.Roles = make([]rbac.Role, 0, len(roles))
	for _, r := range roles {
		user.Roles = append(user.Roles, rbac.Role(r))
	}

	return &user, nil
}

// SaveProfile inserts or replaces a profile together with its role assignments
func (s *Store) SaveProfile(ctx context.Context, user *rbac.UserAttributes) error {
	if user == nil || user.ID == "" {
		return rbac.ErrMalformedRequest.WithField("user.id")
	}
	for _, r := range user.Roles {
		if r == "" {
			return rbac.ErrInvalidRole.WithContext(user.ID, "", "save_profile")
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	upsert := `
		INSERT INTO user_profiles
			(id, primary_role, hospital_id, department, seniority, clearance, is_active, device_type, location)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			primary_role = EXCLUDED.primary_role,
			hospital_id = EXCLUDED.hospital_id,
			department = EXCLUDED.department,
			seniority = EXCLUDED.seniority,
			clearance = EXCLUDED.clearance,
			is_active = EXCLUDED.is_active,
			device_type = EXCLUDED.device_type,
			location = EXCLUDED.location,
			updated_at = NOW()`

	if _, err := tx.ExecContext(ctx, upsert,
		user.ID,
		nullString(string(user.PrimaryRole)),
		user.HospitalID,
		nullString(user.Department),
		user.Seniority,
		string(user.Clearance),
		user.Active,
		nullString(user.DeviceType),
		nullString(user.Location),
	); err != nil {
		return fmt.Errorf("failed to save user profile: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = $1`, user.ID); err != nil {
		return fmt.Errorf("failed to clear user roles: %w", err)
	}

	if len(user.Roles) > 0 {
		roles := make([]string, len(user.Roles))
		for i, r := range user.Roles {
			roles[i] = string(r)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_roles (user_id, role) SELECT $1, unnest($2::text[])`,
			user.ID, pq.Array(roles),
		); err != nil {
			return fmt.Errorf("failed to save user roles: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit user profile: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id": user.ID,
		"roles":   user.Roles,
	}).Info("User profile saved")
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
