package apperrors

import (
	"errors"
)

var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")

	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenIsUsed   = errors.New("refresh token is used")
	ErrRefreshTokenExpired  = errors.New("refresh token is expired")

	ErrGoogleTokenInvalid      = errors.New("google id token is invalid")
	ErrGoogleAuthNotConfigured = errors.New("google sign in is not configured")

	ErrAPIKeyNotFound = errors.New("api key not found")
	ErrAPIKeyRevoked  = errors.New("api key is revoked")

	ErrAccountNotFound     = errors.New("credit account not found")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrCreditLimitExceeded = errors.New("credit limit exceeded")
	ErrInvalidCreditAmount = errors.New("credit amount must be positive")
)
