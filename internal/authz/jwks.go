package authz

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

// JWKSValidator verifies tokens against a remote key set that is refreshed
// in the background.
type JWKSValidator struct {
	jwks   *keyfunc.JWKS
	issuer string
}

func NewJWKSValidator(jwksURL, issuer string) (*JWKSValidator, error) {
	options := keyfunc.Options{
		RefreshInterval:   time.Minute * 15,
		RefreshTimeout:    time.Second * 10,
		RefreshUnknownKID: true,
	}
	jwks, err := keyfunc.Get(jwksURL, options)
	if err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}
	return &JWKSValidator{jwks: jwks, issuer: issuer}, nil
}

func (j *JWKSValidator) Method() string { return "jwks" }

func (j *JWKSValidator) Validate(_ context.Context, r *http.Request) (uuid.UUID, error) {
	tokStr, err := BearerToken(r)
	if err != nil {
		return uuid.Nil, err
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokStr, claims, j.jwks.Keyfunc)
	if err != nil || !token.Valid {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if err := checkIssuer(claims.Issuer, j.issuer); err != nil {
		return uuid.Nil, err
	}
	return subjectToUser(claims.Subject)
}

// Close stops the background refresh.
func (j *JWKSValidator) Close() {
	j.jwks.EndBackground()
}
