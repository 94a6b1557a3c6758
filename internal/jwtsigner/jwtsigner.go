package jwtsigner

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Signer issues identity tokens whose subject is a user id. It exists for
// local development and tests; production tokens come from the auth service.
type Signer interface {
	Sign(sub uuid.UUID, ttl time.Duration) (string, error)
}

// HMACSigner signs HS256 tokens with a shared secret.
type HMACSigner struct {
	secret []byte
	Issuer string
}

func NewHMAC(secret, iss string) (*HMACSigner, error) {
	if secret == "" {
		return nil, errors.New("jwtsigner: empty hmac secret")
	}
	return &HMACSigner{secret: []byte(secret), Issuer: iss}, nil
}

func (s *HMACSigner) Sign(sub uuid.UUID, ttl time.Duration) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claimsFor(s.Issuer, sub, ttl))
	return t.SignedString(s.secret)
}

// EdDSASigner holds an Ed25519 keypair and publishes its public half as a JWK.
type EdDSASigner struct {
	private ed25519.PrivateKey
	public  ed25519.PublicKey
	KeyID   string
	Issuer  string
}

// NewEdDSAFromBase64 creates a signer from base64-encoded ed25519 private key
// bytes. An empty privB64 generates an ephemeral key.
func NewEdDSAFromBase64(privB64, kid, iss string) (*EdDSASigner, error) {
	var priv ed25519.PrivateKey
	if privB64 == "" {
		var err error
		if _, priv, err = ed25519.GenerateKey(rand.Reader); err != nil {
			return nil, err
		}
	} else {
		raw, err := base64.StdEncoding.DecodeString(privB64)
		if err != nil {
			return nil, err
		}
		if len(raw) != ed25519.PrivateKeySize {
			return nil, errors.New("jwtsigner: invalid ed25519 private key size")
		}
		priv = ed25519.PrivateKey(raw)
	}
	pub := priv.Public().(ed25519.PublicKey)
	return &EdDSASigner{private: priv, public: pub, KeyID: kid, Issuer: iss}, nil
}

func (s *EdDSASigner) Sign(sub uuid.UUID, ttl time.Duration) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claimsFor(s.Issuer, sub, ttl))
	t.Header["kid"] = s.KeyID
	return t.SignedString(s.private)
}

// PublicJWK renders the public part as a JWK.
func (s *EdDSASigner) PublicJWK() map[string]any {
	return map[string]any{
		"kty": "OKP",
		"crv": "Ed25519",
		"alg": "EdDSA",
		"use": "sig",
		"kid": s.KeyID,
		"x":   base64.RawURLEncoding.EncodeToString(s.public),
	}
}

// JWKS wraps PublicJWK in a key set document.
func (s *EdDSASigner) JWKS() map[string]any {
	return map[string]any{"keys": []any{s.PublicJWK()}}
}

func claimsFor(iss string, sub uuid.UUID, ttl time.Duration) jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		Issuer:    iss,
		Subject:   sub.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}
