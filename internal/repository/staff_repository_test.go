package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigexecs/gigexecs-api/internal/model"
)

func newStaffRepo(t *testing.T) (*StaffRepo, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStaffRepo(db), mock
}

func staffRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "email", "password_hash", "first_name", "last_name",
		"role", "is_active", "created_at", "updated_at"})
}

func TestStaffCreate_NormalizesAndAssignsIDs(t *testing.T) {
	repo, mock := newStaffRepo(t)
	mock.ExpectExec("INSERT INTO staff_users").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "kim@gigexecs.com", "hash", "Kim", "Ng",
			"support", true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	u, err := repo.Create(context.Background(), model.StaffUser{
		Email: " Kim@GigExecs.com ", PasswordHash: "hash", FirstName: "Kim", LastName: "Ng",
		Role: model.StaffSupport, IsActive: true,
	})
	require.NoError(t, err)
	assert.Len(t, u.ID, 36)
	assert.Len(t, u.UserID, 36)
	assert.NotEqual(t, u.ID, u.UserID)
	assert.Equal(t, "kim@gigexecs.com", u.Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStaffCreate_DuplicateEmail(t *testing.T) {
	repo, mock := newStaffRepo(t)
	mock.ExpectExec("INSERT INTO staff_users").WillReturnError(duplicateKey())

	_, err := repo.Create(context.Background(), model.StaffUser{Email: "kim@gigexecs.com", Role: model.StaffSupport})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestStaffUpdate_OnlySetsGivenFields(t *testing.T) {
	repo, mock := newStaffRepo(t)
	role := model.StaffAdmin
	off := false
	now := time.Now()
	mock.ExpectExec(`UPDATE staff_users SET updated_at=\?, role=\?, is_active=\? WHERE id=\?`).
		WithArgs(sqlmock.AnyArg(), "admin", false, "s-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT (.+) FROM staff_users WHERE id=").WithArgs("s-1").
		WillReturnRows(staffRows().AddRow("s-1", "u-1", "kim@gigexecs.com", "hash", "Kim", "Ng", "admin", false, now, now))

	u, err := repo.Update(context.Background(), "s-1", StaffPatch{Role: &role, IsActive: &off})
	require.NoError(t, err)
	assert.Equal(t, model.StaffAdmin, u.Role)
	assert.False(t, u.IsActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStaffUpdate_MissingRow(t *testing.T) {
	repo, mock := newStaffRepo(t)
	mock.ExpectExec("UPDATE staff_users SET").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT (.+) FROM staff_users WHERE id=").WillReturnRows(staffRows())

	_, err := repo.Update(context.Background(), "nope", StaffPatch{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStaffList_NewestFirst(t *testing.T) {
	repo, mock := newStaffRepo(t)
	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM staff_users ORDER BY created_at DESC").
		WillReturnRows(staffRows().
			AddRow("s-2", "u-2", "b@gigexecs.com", "h", "B", "", "support", true, now, now).
			AddRow("s-1", "u-1", "a@gigexecs.com", "h", "A", "", "super_user", true, now.Add(-time.Hour), now))

	list, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "s-2", list[0].ID)
	assert.Equal(t, model.StaffSuperUser, list[1].Role)
}
