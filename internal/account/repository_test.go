package account

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupAccountMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	repo := NewRepository(sqlxDB)

	closer := func() { sqlxDB.Close() }
	return repo, mock, closer
}

func accountColumns() []string {
	return []string{"id", "name", "email", "password_hash", "role", "created_at", "updated_at"}
}

func TestCreateAccount(t *testing.T) {
	repo, mock, closer := setupAccountMock(t)
	defer closer()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO accounts (name, email, password_hash, role)")).
		WithArgs("Jane Plumber", "jane@example.com", "hash", "pro").
		WillReturnRows(sqlmock.NewRows(accountColumns()).
			AddRow(1, "Jane Plumber", "jane@example.com", "hash", "pro", now, now))

	acc, err := repo.Create(context.Background(), "Jane Plumber", "jane@example.com", "hash", "pro")
	require.NoError(t, err)
	assert.Equal(t, 1, acc.ID)
	assert.Equal(t, "pro", acc.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByEmail(t *testing.T) {
	repo, mock, closer := setupAccountMock(t)
	defer closer()

	t.Run("Found", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM accounts WHERE email = $1")).
			WithArgs("jane@example.com").
			WillReturnRows(sqlmock.NewRows(accountColumns()).
				AddRow(1, "Jane Plumber", "jane@example.com", "hash", "pro", now, now))

		acc, err := repo.FindByEmail(context.Background(), "jane@example.com")
		require.NoError(t, err)
		assert.Equal(t, "jane@example.com", acc.Email)
	})

	t.Run("Not found", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM accounts WHERE email = $1")).
			WithArgs("nobody@example.com").
			WillReturnError(sql.ErrNoRows)

		_, err := repo.FindByEmail(context.Background(), "nobody@example.com")
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})
}

func TestEmailExists(t *testing.T) {
	repo, mock, closer := setupAccountMock(t)
	defer closer()

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("jane@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.EmailExists(context.Background(), "jane@example.com")
	require.NoError(t, err)
	assert.True(t, exists)
}
