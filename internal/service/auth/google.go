package auth

import (
	"context"
	"fmt"

	"google.golang.org/api/idtoken"

	"github.com/snapcal/snapcal/internal/apperrors"
)

// Claims we care about from a verified google id token
type GoogleClaims struct {
	// Stable google account id ('sub' claim)
	Subject string

	Email         string
	EmailVerified bool
}

// Verifier of google issued id tokens
type GoogleVerifier interface {
	// Verify token signature and audience, return its claims
	// If the token is not valid must return apperrors.ErrGoogleTokenInvalid
	Verify(ctx context.Context, idToken string) (GoogleClaims, error)
}

// GoogleVerifier backed by google certs, audience bound to single client id
type IDTokenVerifier struct {
	clientID string
}

func NewGoogleVerifier(clientID string) *IDTokenVerifier {
	return &IDTokenVerifier{clientID: clientID}
}

func (v *IDTokenVerifier) Verify(ctx context.Context, token string) (GoogleClaims, error) {
	payload, err := idtoken.Validate(ctx, token, v.clientID)
	if err != nil {
		return GoogleClaims{}, fmt.Errorf("%w. Err: %v", apperrors.ErrGoogleTokenInvalid, err)
	}

	claims := GoogleClaims{Subject: payload.Subject}
	if email, ok := payload.Claims["email"].(string); ok {
		claims.Email = email
	}
	if verified, ok := payload.Claims["email_verified"].(bool); ok {
		claims.EmailVerified = verified
	}

	return claims, nil
}
