package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/snapcal/snapcal/internal/logger"
	"github.com/snapcal/snapcal/internal/repository/postgres"
	"github.com/snapcal/snapcal/internal/service/auth"
	"github.com/snapcal/snapcal/internal/service/auth/tokenmanager"
	"github.com/snapcal/snapcal/internal/service/user"
	"github.com/snapcal/snapcal/internal/testutil"
)

// Allow to use a function as google verifier
type verifierFunc func(ctx context.Context, idToken string) (auth.GoogleClaims, error)

func (f verifierFunc) Verify(ctx context.Context, idToken string) (auth.GoogleClaims, error) {
	return f(ctx, idToken)
}

func Test_AuthHandlers(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	// Run http server with auth handlers attached
	// Production AuthService will be used
	withTx := func(dbpool *pgxpool.Pool, t *testing.T, fn func(url string, auth *auth.AuthService)) {
		testutil.InTx(dbpool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			users := user.NewService(user.Config{}, storage)

			tokenManager, err := tokenmanager.New(tokenmanager.Config{SecretKey: "test-secret"}, storage)
			require.NoError(t, err, "token manager should be created without errors")

			verifier := verifierFunc(func(ctx context.Context, idToken string) (auth.GoogleClaims, error) {
				return auth.GoogleClaims{Subject: "google-sub-1", Email: "jane@example.com", EmailVerified: true}, nil
			})

			// Initialize production auth service
			s, err := auth.NewService(auth.Config{GoogleVerifier: verifier}, tokenManager, users)
			require.NoError(t, err, "auth service starting error", err)

			l := logger.NewNoOpLogger()
			mux := http.NewServeMux()
			mux.Handle("POST /register", handleRegister(s, l))
			mux.Handle("POST /login", handleLogin(s, l))
			mux.Handle("POST /refresh", handleTokenRefresh(s, l))
			mux.Handle("POST /google", handleGoogleLogin(s, l))

			srv := httptest.NewServer(mux)
			defer srv.Close()

			fn(srv.URL, s)
		})
	}

	t.Run("login ok", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string, auth *auth.AuthService) {
			_, err := auth.Register(t.Context(), "snapper", "StrongEnoughPassword")
			require.NoError(t, err)

			data := `{"username": "snapper", "password": "StrongEnoughPassword"}`
			resp, err := http.Post(url+"/login", "application/json", strings.NewReader(data))
			require.NoError(t, err)
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", string(body))
			require.JSONEq(t, `
				{
					"message": "User logged in successfully"
				}`, string(body))

			require.Equal(t, 1, len(resp.Cookies()))
			cookie := resp.Cookies()[0]
			require.Equal(t, "refreshtoken", cookie.Name)
			require.Equal(t, cookie.HttpOnly, true, "refresh cookie should be HttpOnly")
			require.Equal(t, "/", cookie.Path, "refresh cookie should be available on / path")
			require.Equal(t, http.SameSiteStrictMode, cookie.SameSite, "refresh cookie should be SameSite Strict")
			require.InDelta(t, (24 * time.Hour).Seconds(), cookie.MaxAge, 1, "max age should be refresh TTL with 1 second delta")
			require.NotEmpty(t, cookie.Value, "refresh cookie should not be empty")

			require.Contains(t, resp.Header, "Authorization")
			header := resp.Header.Get("Authorization")
			require.Contains(t, header, "Bearer")
		})
	})

	t.Run("login failed", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string, auth *auth.AuthService) {
			data := `{"username": "snapper", "password": "WrongPassword"}`

			resp, err := http.Post(url+"/login", "application/json", strings.NewReader(data))
			require.NoError(t, err)
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			require.Equalf(t, http.StatusUnauthorized, resp.StatusCode, "not expected code. Body: %s", string(body))
			require.JSONEq(t, `
				{
					"error": "service_error",
					"message": "User not found"
				}`, string(body))

			require.Equal(t, 0, len(resp.Cookies()), "no cookies should be set on login error")
			require.NotContains(t, resp.Header, "Authorization", "Authorization header should not be set")
		})
	})

	t.Run("register ok", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string, auth *auth.AuthService) {
			data := `{"username": "snapper", "password": "StrongEnoughPassword"}`

			resp, err := http.Post(url+"/register", "application/json", strings.NewReader(data))
			require.NoError(t, err)
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", string(body))
			require.JSONEq(t, `
				{
					"message": "User registered successfully"
				}`, string(body))

			require.Equal(t, 1, len(resp.Cookies()), "refresh cookie should be set")
			require.Contains(t, resp.Header, "Authorization")
		})
	})

	t.Run("register duplicate username", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string, auth *auth.AuthService) {
			_, err := auth.Register(t.Context(), "snapper", "StrongEnoughPassword")
			require.NoError(t, err)

			data := `{"username": "snapper", "password": "OtherStrongPassword"}`
			resp, err := http.Post(url+"/register", "application/json", strings.NewReader(data))
			require.NoError(t, err)
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			require.Equalf(t, http.StatusConflict, resp.StatusCode, "not expected code. Body: %s", string(body))
			require.JSONEq(t, `
				{
					"error": "service_error",
					"message": "User already exists"
				}`, string(body))
		})
	})

	t.Run("register short password", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string, auth *auth.AuthService) {
			data := `{"username": "snapper", "password": "short"}`

			resp, err := http.Post(url+"/register", "application/json", strings.NewReader(data))
			require.NoError(t, err)
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			require.Equalf(t, http.StatusBadRequest, resp.StatusCode, "not expected code. Body: %s", string(body))
			require.Contains(t, string(body), "validation_failed")
		})
	})

	t.Run("refresh ok", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string, auth *auth.AuthService) {
			pair, err := auth.Register(t.Context(), "snapper", "StrongEnoughPassword")
			require.NoError(t, err)

			req, err := http.NewRequest("POST", url+"/refresh", nil)
			require.NoError(t, err)
			req.AddCookie(&http.Cookie{Name: "refreshtoken", Value: pair.Refresh.Value})

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", string(body))
			require.JSONEq(t, `
				{
					"message": "Tokens refreshed successfully"
				}`, string(body))
		})
	})

	t.Run("refresh without cookie", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string, auth *auth.AuthService) {
			resp, err := http.Post(url+"/refresh", "application/json", nil)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	})

	t.Run("google login ok", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string, auth *auth.AuthService) {
			data := `{"id_token": "any-token-the-fake-accepts"}`

			resp, err := http.Post(url+"/google", "application/json", strings.NewReader(data))
			require.NoError(t, err)
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", string(body))
			require.JSONEq(t, `
				{
					"message": "User logged in successfully"
				}`, string(body))
			require.Contains(t, resp.Header, "Authorization")
		})
	})
}
