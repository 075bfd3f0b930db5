package profile

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/medrex/hms-access/pkg/database"
	"github.com/medrex/hms-access/pkg/logger"
	"github.com/medrex/hms-access/pkg/rbac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var profileColumns = []string{
	"id", "primary_role", "hospital_id", "department", "seniority",
	"clearance", "is_active", "last_login", "device_type", "location", "roles",
}

func setupStoreTest(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	log := logger.New("error")
	store := NewStore(database.Wrap(db, log), log.Logger)

	cleanup := func() {
		db.Close()
	}
	return store, mock, cleanup
}

func TestStore_GetUserAttributes(t *testing.T) {
	store, mock, cleanup := setupStoreTest(t)
	defer cleanup()

	lastLogin := time.Date(2026, time.March, 1, 7, 45, 0, 0, time.UTC)
	rows := sqlmock.NewRows(profileColumns).
		AddRow("doc-1", "physician", "hosp-1", "Cardiology", 12, "high", true, lastLogin, "desktop", nil, "{nurse,physician}")

	mock.ExpectQuery(regexp.QuoteMeta("FROM user_profiles p")).
		WithArgs("doc-1").
		WillReturnRows(rows)

	user, err := store.GetUserAttributes(context.Background(), "doc-1")
	require.NoError(t, err)
	require.NotNil(t, user)

	assert.Equal(t, "doc-1", user.ID)
	assert.Equal(t, rbac.RolePhysician, user.PrimaryRole)
	assert.Equal(t, []rbac.Role{rbac.RoleNurse, rbac.RolePhysician}, user.Roles)
	assert.Equal(t, "hosp-1", user.HospitalID)
	assert.Equal(t, "Cardiology", user.Department)
	assert.Equal(t, 12, user.Seniority)
	assert.Equal(t, rbac.ClearanceHigh, user.Clearance)
	assert.True(t, user.Active)
	require.NotNil(t, user.LastLogin)
	assert.True(t, lastLogin.Equal(*user.LastLogin))
	assert.Equal(t, "desktop", user.DeviceType)
	assert.Empty(t, user.Location)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetUserAttributes_NoRoles(t *testing.T) {
	store, mock, cleanup := setupStoreTest(t)
	defer cleanup()

	rows := sqlmock.NewRows(profileColumns).
		AddRow("rec-1", nil, "hosp-1", nil, 0, "low", false, nil, nil, nil, "{}")
	mock.ExpectQuery("FROM user_profiles").WithArgs("rec-1").WillReturnRows(rows)

	user, err := store.GetUserAttributes(context.Background(), "rec-1")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Empty(t, user.Roles)
	assert.Equal(t, rbac.Role(""), user.PrimaryRole)
	assert.Nil(t, user.LastLogin)
	assert.False(t, user.Active)
}

func TestStore_GetUserAttributes_NotFound(t *testing.T) {
	store, mock, cleanup := setupStoreTest(t)
	defer cleanup()

	mock.ExpectQuery("FROM user_profiles").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(profileColumns))

	user, err := store.GetUserAttributes(context.Background(), "ghost")
	assert.NoError(t, err)
	assert.Nil(t, user)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetUserAttributes_Error(t *testing.T) {
	store, mock, cleanup := setupStoreTest(t)
	defer cleanup()

	mock.ExpectQuery("FROM user_profiles").
		WithArgs("doc-1").
		WillReturnError(errors.New("connection refused"))

	user, err := store.GetUserAttributes(context.Background(), "doc-1")
	require.Error(t, err)
	assert.Nil(t, user)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestStore_SaveProfile(t *testing.T) {
	user := &rbac.UserAttributes{
		ID:          "nurse-1",
		Roles:       []rbac.Role{rbac.RoleNurse, rbac.RoleReceptionist},
		PrimaryRole: rbac.RoleNurse,
		HospitalID:  "hosp-1",
		Department:  "Emergency",
		Seniority:   3,
		Clearance:   rbac.ClearanceMedium,
		Active:      true,
	}

	t.Run("profile and roles in one transaction", func(t *testing.T) {
		store, mock, cleanup := setupStoreTest(t)
		defer cleanup()

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO user_profiles").
			WithArgs("nurse-1", "nurse", "hosp-1", "Emergency", 3, "medium", true, nil, nil).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM user_roles WHERE user_id = $1")).
			WithArgs("nurse-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO user_roles (user_id, role) SELECT $1, unnest($2::text[])")).
			WithArgs("nurse-1", "{\"nurse\",\"receptionist\"}").
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectCommit()

		require.NoError(t, store.SaveProfile(context.Background(), user))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on failure", func(t *testing.T) {
		store, mock, cleanup := setupStoreTest(t)
		defer cleanup()

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO user_profiles").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("DELETE FROM user_roles").WillReturnError(errors.New("lock timeout"))
		mock.ExpectRollback()

		err := store.SaveProfile(context.Background(), user)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to clear user roles")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects malformed input", func(t *testing.T) {
		store, _, cleanup := setupStoreTest(t)
		defer cleanup()

		err := store.SaveProfile(context.Background(), &rbac.UserAttributes{})
		assert.True(t, rbac.IsMalformedRequest(err))

		err = store.SaveProfile(context.Background(), &rbac.UserAttributes{ID: "x", Roles: []rbac.Role{""}})
		assert.ErrorIs(t, err, rbac.ErrInvalidRole)
	})
}
