package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigexecs/gigexecs-api/internal/model"
)

func userRow(id string, t model.UserType) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "email", "first_name", "last_name", "headline", "profile_photo_url",
		"user_type", "role", "status", "vetting_status", "profile_complete_pct", "created_at", "updated_at"}).
		AddRow(id, "a@b.com", "Ann", "Lee", nil, nil, string(t), "authenticated", "registered", "pending", 0, now, now)
}

func TestRegister_ClientWithoutCompanyStoresEmptyName(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewUserRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO client_profiles").
		WithArgs("u-1", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT (.+) FROM users").WillReturnRows(userRow("u-1", model.UserTypeClient))
	mock.ExpectCommit()

	u, err := repo.Register(context.Background(), Registration{
		ID: "u-1", Email: " A@B.com ", FirstName: "Ann", LastName: "Lee", UserType: model.UserTypeClient,
	})
	require.NoError(t, err)
	assert.Equal(t, model.UserTypeClient, u.UserType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegister_ConsultantGetsConsultantProfile(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewUserRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO consultant_profiles").
		WithArgs("u-2", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT (.+) FROM users").WillReturnRows(userRow("u-2", model.UserTypeConsultant))
	mock.ExpectCommit()

	_, err = repo.Register(context.Background(), Registration{
		ID: "u-2", Email: "c@d.com", FirstName: "Cy", LastName: "Do", UserType: model.UserTypeConsultant,
		CompanyName: "ignored",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegister_DuplicateRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewUserRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users").WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	mock.ExpectRollback()

	_, err = repo.Register(context.Background(), Registration{ID: "u-1", Email: "a@b.com", UserType: model.UserTypeClient})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}
