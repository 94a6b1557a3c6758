package jwtsigner

import (
	"crypto/ed25519"
	"encoding/base64"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func TestHMACSignerRoundTrip(t *testing.T) {
	s, err := NewHMAC("secret", "dm")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	sub := uuid.New()
	tok, err := s.Sign(sub, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims := &jwt.RegisteredClaims{}
	if _, err := jwt.ParseWithClaims(tok, claims, func(*jwt.Token) (interface{}, error) { return []byte("secret"), nil }); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != sub.String() || claims.Issuer != "dm" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if _, err := NewHMAC("", "dm"); err == nil {
		t.Fatalf("expected empty secret to be rejected")
	}
}

func TestEdDSASignerPublishesVerifyingKey(t *testing.T) {
	s, err := NewEdDSAFromBase64("", "kid-1", "dm")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	tok, err := s.Sign(uuid.New(), time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	jwk := s.PublicJWK()
	raw, err := base64.RawURLEncoding.DecodeString(jwk["x"].(string))
	if err != nil {
		t.Fatalf("decode x: %v", err)
	}
	parsed, err := jwt.Parse(tok, func(tk *jwt.Token) (interface{}, error) {
		if tk.Header["kid"] != "kid-1" {
			t.Fatalf("missing kid header")
		}
		return ed25519.PublicKey(raw), nil
	})
	if err != nil || !parsed.Valid {
		t.Fatalf("verify with published key: %v", err)
	}

	if _, err := NewEdDSAFromBase64("AAAA", "k", "dm"); err == nil {
		t.Fatalf("expected short key to be rejected")
	}
}
