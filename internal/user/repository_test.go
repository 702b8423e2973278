package user

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func setupUserMock(t *testing.T) (Repository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	repo := NewRepository(sqlxDB)

	closer := func() { sqlxDB.Close() }
	return repo, mock, closer
}

func TestCreateAndFindUser(t *testing.T) {
	repo, mock, closer := setupUserMock(t)
	defer closer()

	ctx := context.Background()
	now := time.Now()
	cols := []string{"id", "name", "email", "password_hash", "role", "stripe_customer_id", "created_at"}

	// Create
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users (name, email, password_hash, role) VALUES ($1, $2, $3, $4) RETURNING id, name, email, password_hash, role, stripe_customer_id, created_at")).
		WithArgs("Alice", "a@example.com", "hash", "user").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(1, "Alice", "a@example.com", "hash", "user", nil, now))

	u, err := repo.Create(ctx, "Alice", "a@example.com", "hash", "user")
	require.NoError(t, err)
	require.Equal(t, 1, u.ID)
	require.False(t, u.StripeCustomerID.Valid)

	// FindByEmail
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, email, password_hash, role, stripe_customer_id, created_at FROM users WHERE email = $1")).
		WithArgs("a@example.com").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(1, "Alice", "a@example.com", "hash", "user", nil, now))

	fu, err := repo.FindByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	require.Equal(t, "Alice", fu.Name)

	// EmailExists true
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)")).
		WithArgs("a@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.EmailExists(ctx, "a@example.com")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetStripeCustomerID(t *testing.T) {
	repo, mock, closer := setupUserMock(t)
	defer closer()

	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET stripe_customer_id = COALESCE(stripe_customer_id, $1) WHERE id = $2")).
		WithArgs("cus_123", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetStripeCustomerID(ctx, 1, "cus_123"))

	// Unknown user updates zero rows.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET stripe_customer_id = COALESCE(stripe_customer_id, $1) WHERE id = $2")).
		WithArgs("cus_123", 99).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetStripeCustomerID(ctx, 99, "cus_123")
	require.ErrorIs(t, err, ErrUserNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}
