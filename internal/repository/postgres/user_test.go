package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapcal/snapcal/internal/apperrors"
	"github.com/snapcal/snapcal/internal/testutil"
)

func Test_UserRepo(t *testing.T) {
	t.Parallel() // It's ok to run in parallel with other tests, but not with subtests

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	t.Run("create user ok", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}

			user, err := r.CreateUser(t.Context(), "testuser", "hashedpassword123")

			require.NoError(t, err)
			assert.Equal(t, "testuser", user.Username)
			assert.Equal(t, "hashedpassword123", user.HashedPassword)
			assert.Nil(t, user.Email, "password users have no email")
			assert.Nil(t, user.GoogleID, "password users have no google id")
			assert.False(t, user.IsAdmin, "users should not be admins by default")
			assert.WithinDuration(t, time.Now(), user.CreatedAt, time.Second, "CreatedAt should be recent")
		})
	})

	t.Run("create duplicate username fail", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}

			_, err := r.CreateUser(t.Context(), "testuser", "hashedpassword123")
			require.NoError(t, err)

			_, err = r.CreateUser(t.Context(), "testuser", "otherhash")

			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrUserAlreadyExists, "should return well known error")
		})
	})

	t.Run("create google user ok", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}

			user, err := r.CreateGoogleUser(t.Context(), "gmailuser", "gmailuser@gmail.com", "google-sub-1")

			require.NoError(t, err)
			assert.Equal(t, "gmailuser", user.Username)
			assert.Empty(t, user.HashedPassword, "google users have no usable password")
			require.NotNil(t, user.Email)
			assert.Equal(t, "gmailuser@gmail.com", *user.Email)
			require.NotNil(t, user.GoogleID)
			assert.Equal(t, "google-sub-1", *user.GoogleID)
		})
	})

	t.Run("create google user duplicate google id fail", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}

			_, err := r.CreateGoogleUser(t.Context(), "gmailuser", "gmailuser@gmail.com", "google-sub-1")
			require.NoError(t, err)

			_, err = r.CreateGoogleUser(t.Context(), "othername", "other@gmail.com", "google-sub-1")

			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrUserAlreadyExists, "should return well known error")
		})
	})

	t.Run("get user by id ok", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}
			// Create user first
			created, err := r.CreateUser(t.Context(), "findbyid", "hashedpassword123")
			require.NoError(t, err)

			// Get user by ID
			got, err := r.GetUserByID(t.Context(), created.ID)

			require.NoError(t, err)
			assert.Equal(t, created.ID, got.ID)
			assert.Equal(t, created.Username, got.Username)
			assert.Equal(t, created.HashedPassword, got.HashedPassword)
			assert.Equal(t, created.CreatedAt, got.CreatedAt)
		})
	})

	t.Run("get user by id not found", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}
			// Try to get non-existent user
			_, err := r.GetUserByID(t.Context(), uuid.New())

			assert.Error(t, err, "Should return error for non-existent user")
			assert.ErrorIs(t, err, apperrors.ErrUserNotFound, "should return well known error")
		})
	})

	t.Run("get user by username ok", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}
			// Create user first
			created, err := r.CreateUser(t.Context(), "findbyusername", "hashedpassword123")
			require.NoError(t, err)

			// Get user by username
			got, err := r.GetUserByUsername(t.Context(), created.Username)

			require.NoError(t, err)
			assert.Equal(t, created.ID, got.ID)
			assert.Equal(t, created.Username, got.Username)
		})
	})

	t.Run("get user by username not found", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}

			// Try to get non-existent user
			_, err := r.GetUserByUsername(t.Context(), "nonexistentuser")

			assert.Error(t, err, "Should return error for non-existent user")
			assert.ErrorIs(t, err, apperrors.ErrUserNotFound, "should return well known error")
		})
	})

	t.Run("get user by google id ok", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}
			created, err := r.CreateGoogleUser(t.Context(), "findbygoogle", "findbygoogle@gmail.com", "google-sub-42")
			require.NoError(t, err)

			got, err := r.GetUserByGoogleID(t.Context(), "google-sub-42")

			require.NoError(t, err)
			assert.Equal(t, created.ID, got.ID)
			assert.Equal(t, created.Username, got.Username)
		})
	})

	t.Run("get user by google id not found", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}

			_, err := r.GetUserByGoogleID(t.Context(), "no-such-sub")

			assert.Error(t, err, "Should return error for non-existent user")
			assert.ErrorIs(t, err, apperrors.ErrUserNotFound, "should return well known error")
		})
	})
}
