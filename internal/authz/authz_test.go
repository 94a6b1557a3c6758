package authz

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dmcore/internal/jwtsigner"

	"github.com/google/uuid"
)

func protected(v Validator) (http.Handler, *uuid.UUID) {
	var seen uuid.UUID
	h := Middleware(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
	return h, &seen
}

func TestHMACValidator(t *testing.T) {
	signer, err := jwtsigner.NewHMAC("s3cret", "dm-test")
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	h, seen := protected(NewHMACValidator("s3cret", "dm-test"))
	user := uuid.New()

	tok, err := signer.Sign(user, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/v1/unread-count", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || *seen != user {
		t.Fatalf("expected pass-through for %s, got %d %s", user, rec.Code, *seen)
	}

	// Query parameter fallback for websocket upgrades.
	*seen = uuid.Nil
	req = httptest.NewRequest(http.MethodGet, "/v1/stream?access_token="+tok, nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || *seen != user {
		t.Fatalf("expected query token to authenticate, got %d", rec.Code)
	}
}

func TestHMACValidatorRejects(t *testing.T) {
	good, _ := jwtsigner.NewHMAC("s3cret", "dm-test")
	other, _ := jwtsigner.NewHMAC("other", "dm-test")
	wrongIss, _ := jwtsigner.NewHMAC("s3cret", "someone-else")
	user := uuid.New()

	expired, _ := good.Sign(user, -time.Minute)
	badSig, _ := other.Sign(user, time.Minute)
	badIss, _ := wrongIss.Sign(user, time.Minute)

	cases := map[string]string{
		"missing":   "",
		"garbage":   "Bearer not-a-jwt",
		"expired":   "Bearer " + expired,
		"signature": "Bearer " + badSig,
		"issuer":    "Bearer " + badIss,
	}
	h, _ := protected(NewHMACValidator("s3cret", "dm-test"))
	for name, header := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", name, rec.Code)
		}
		var body map[string]string
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil || body["code"] != "unauthorized" {
			t.Fatalf("%s: expected json error body, got %v %v", name, body, err)
		}
	}
}

func TestHeaderValidator(t *testing.T) {
	h, seen := protected(NewHeaderValidator(""))
	user := uuid.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(DefaultUserHeader, user.String())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || *seen != user {
		t.Fatalf("expected trusted header to pass, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(DefaultUserHeader, "bob")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected non-uuid subject to be rejected, got %d", rec.Code)
	}
}

func TestJWKSValidator(t *testing.T) {
	signer, err := jwtsigner.NewEdDSAFromBase64("", "k1", "dm-test")
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(signer.JWKS())
	}))
	defer srv.Close()

	v, err := NewJWKSValidator(srv.URL, "dm-test")
	if err != nil {
		t.Fatalf("jwks validator: %v", err)
	}
	defer v.Close()

	h, seen := protected(v)
	user := uuid.New()
	tok, err := signer.Sign(user, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || *seen != user {
		t.Fatalf("expected jwks token to pass, got %d", rec.Code)
	}

	hmacSigner, _ := jwtsigner.NewHMAC("s3cret", "dm-test")
	forged, _ := hmacSigner.Sign(user, time.Minute)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected hmac token to be rejected by jwks validator, got %d", rec.Code)
	}
}
