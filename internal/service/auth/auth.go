package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/snapcal/snapcal/internal/apperrors"
	"github.com/snapcal/snapcal/internal/models"
)

const (
	defaultAccessHeaderName  = "Authorization"
	defaultAccessAuthScheme  = "Bearer"
	defaultRefreshCookieName = "refreshtoken"
)

// Issues token pairs and validates access tokens
type tokenManager interface {
	GeneratePair(ctx context.Context, user models.User) (models.TokenPair, error)
	UseRefresh(ctx context.Context, refresh string) (models.RefreshToken, error)
	ParseAccess(ctx context.Context, access string) (uuid.UUID, error)
}

// Manages users and their credentials
type userService interface {
	CreateUser(ctx context.Context, username string, password string) (models.User, error)
	Login(ctx context.Context, username string, password string) (models.User, error)
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetOrCreateGoogleUser(ctx context.Context, googleID string, email string) (models.User, error)
}

// Auth service with sensible defaults
type Config struct {
	// Header and auth scheme to set the access token on responses
	// If not set than default is used
	AccessHeaderName string
	AccessAuthScheme string

	// Cookie name to keep the refresh token
	// If not set than default is used
	RefreshCookieName string

	// Verifier of google issued id tokens
	// Required for LoginWithGoogle only
	GoogleVerifier GoogleVerifier
}

// Auth service
type AuthService struct {
	accessHeaderName  string
	accessAuthScheme  string
	refreshCookieName string

	google GoogleVerifier

	// Manager to issue token pairs (access and refresh)
	token tokenManager

	// Service to manage users and their credentials
	users userService
}

func NewService(cfg Config, token tokenManager, users userService) (*AuthService, error) {
	if cfg.AccessHeaderName == "" {
		cfg.AccessHeaderName = defaultAccessHeaderName
	}
	if cfg.AccessAuthScheme == "" {
		cfg.AccessAuthScheme = defaultAccessAuthScheme
	}
	if cfg.RefreshCookieName == "" {
		cfg.RefreshCookieName = defaultRefreshCookieName
	}

	return &AuthService{
		accessHeaderName:  cfg.AccessHeaderName,
		accessAuthScheme:  cfg.AccessAuthScheme,
		refreshCookieName: cfg.RefreshCookieName,
		google:            cfg.GoogleVerifier,
		token:             token,
		users:             users,
	}, nil
}

func (s *AuthService) Register(ctx context.Context, username string, password string) (models.TokenPair, error) {
	user, err := s.users.CreateUser(ctx, username, password)
	if err != nil {
		return models.TokenPair{}, err
	}

	pair, err := s.token.GeneratePair(ctx, user)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	return pair, nil
}

func (s *AuthService) Login(ctx context.Context, username string, password string) (models.TokenPair, error) {
	user, err := s.users.Login(ctx, username, password)
	if err != nil {
		return models.TokenPair{}, err
	}

	pair, err := s.token.GeneratePair(ctx, user)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	return pair, nil
}

// Exchange a not used refresh token for a fresh pair
func (s *AuthService) RefreshPair(ctx context.Context, refresh string) (models.TokenPair, error) {
	token, err := s.token.UseRefresh(ctx, refresh)
	if err != nil {
		return models.TokenPair{}, err
	}

	user, err := s.users.GetUserByID(ctx, token.UserID)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("can't get token owner. Err: %w", err)
	}

	pair, err := s.token.GeneratePair(ctx, user)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	return pair, nil
}

// Verify google id token and login the linked user, creating it on first visit
func (s *AuthService) LoginWithGoogle(ctx context.Context, idToken string) (models.TokenPair, error) {
	if s.google == nil {
		return models.TokenPair{}, apperrors.ErrGoogleAuthNotConfigured
	}

	claims, err := s.google.Verify(ctx, idToken)
	if err != nil {
		return models.TokenPair{}, err
	}
	if !claims.EmailVerified {
		return models.TokenPair{}, fmt.Errorf("google account email not verified. Err: %w", apperrors.ErrGoogleTokenInvalid)
	}

	user, err := s.users.GetOrCreateGoogleUser(ctx, claims.Subject, claims.Email)
	if err != nil {
		return models.TokenPair{}, err
	}

	pair, err := s.token.GeneratePair(ctx, user)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	return pair, nil
}

// Get request and return user if it authenticated or error
func (s *AuthService) Auth(ctx context.Context, r *http.Request) (models.User, error) {
	var user models.User

	header := r.Header.Get(s.accessHeaderName)
	if header == "" {
		return user, fmt.Errorf("no '%s' header in request", s.accessHeaderName)
	}

	scheme, access, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, s.accessAuthScheme) {
		return user, fmt.Errorf("auth header is not in '%s <token>' form", s.accessAuthScheme)
	}

	userID, err := s.token.ParseAccess(ctx, access)
	if err != nil {
		return user, err
	}

	return s.users.GetUserByID(ctx, userID)
}

// Set auth tokens (access, refresh) to response
func (s *AuthService) SetTokenPairToResponse(w http.ResponseWriter, pair models.TokenPair) {
	w.Header().Set(s.accessHeaderName, s.accessAuthScheme+" "+pair.Access.Value)

	http.SetCookie(w, &http.Cookie{
		Name:     s.refreshCookieName,
		Value:    pair.Refresh.Value,
		Path:     "/",
		MaxAge:   int(time.Until(pair.Refresh.ExpiresAt).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// Set auth tokens (access, refresh) to request
// Mostly useful in tests that call the API as an already logged in user
func (s *AuthService) SetTokenPairToRequest(r *http.Request, pair models.TokenPair) {
	r.Header.Set(s.accessHeaderName, s.accessAuthScheme+" "+pair.Access.Value)

	r.AddCookie(&http.Cookie{
		Name:  s.refreshCookieName,
		Value: pair.Refresh.Value,
	})
}

// Get refresh token from request
func (s *AuthService) GetRefreshString(r *http.Request) (string, error) {
	cookie, err := r.Cookie(s.refreshCookieName)
	if err != nil {
		return "", fmt.Errorf("refresh cookie not set. Err: %w", apperrors.ErrRefreshTokenNotFound)
	}

	return cookie.Value, nil
}
