package userstore

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

// Store depends concretely on *pgxpool.Pool, which a sqlmock *sql.DB
// cannot stand in for, so these tests give Store a nil pool and check only
// the validation CreateUser performs before any query; the sqlmock handle
// carries no expectations. Live-database behavior is not covered by this
// package's tests.
func TestCreateUserRejectsBadUsernameWithoutTouchingDB(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	_ = mock // no expectations set: CreateUser must fail before any query.

	var pool *pgxpool.Pool
	s := New(pool)
	err = s.CreateUser(context.Background(), "not-an-email", "Password1!")
	require.Error(t, err)
}

func TestCreateUserRejectsBadPasswordWithoutTouchingDB(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	_ = mock

	var pool *pgxpool.Pool
	s := New(pool)
	err = s.CreateUser(context.Background(), "user@example.com", "short")
	require.Error(t, err)
}
