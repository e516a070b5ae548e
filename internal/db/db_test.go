package db

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return sqlx.NewDb(mockDB, "sqlmock"), mock
}

func TestExists_True(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("jane@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := Exists(context.Background(), db,
		`SELECT EXISTS(SELECT 1 FROM accounts WHERE email = $1)`, "jane@example.com")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExists_False(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	exists, err := Exists(context.Background(), db,
		`SELECT EXISTS(SELECT 1 FROM accounts WHERE email = $1)`, "nobody@example.com")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestExists_NoRows(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("SELECT EXISTS").
		WillReturnError(sql.ErrNoRows)

	exists, err := Exists(context.Background(), db, `SELECT EXISTS(SELECT 1 FROM accounts)`)
	require.NoError(t, err)
	assert.False(t, exists)
}
