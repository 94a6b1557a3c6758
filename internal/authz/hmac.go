package authz

import (
	"context"
	"fmt"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// HMACValidator accepts HS256/384/512 tokens signed with a shared secret.
type HMACValidator struct {
	secret []byte
	issuer string
}

func NewHMACValidator(secret, issuer string) *HMACValidator {
	return &HMACValidator{
		secret: []byte(secret),
		issuer: issuer,
	}
}

func (h *HMACValidator) Method() string { return "hmac" }

func (h *HMACValidator) Validate(_ context.Context, r *http.Request) (uuid.UUID, error) {
	tokStr, err := BearerToken(r)
	if err != nil {
		return uuid.Nil, err
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %T", token.Method)
		}
		return h.secret, nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if err := checkIssuer(claims.Issuer, h.issuer); err != nil {
		return uuid.Nil, err
	}
	return subjectToUser(claims.Subject)
}
