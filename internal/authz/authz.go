package authz

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"dmcore/internal/observability/metrics"
	obsmw "dmcore/internal/observability/middleware"

	"github.com/google/uuid"
)

var (
	ErrMissingToken   = errors.New("missing bearer token")
	ErrInvalidToken   = errors.New("invalid token")
	ErrIssuerMismatch = errors.New("issuer mismatch")
	ErrNoSubject      = errors.New("no subject")
)

// Validator turns the credential on a request into a trusted user id.
type Validator interface {
	Method() string
	Validate(ctx context.Context, r *http.Request) (uuid.UUID, error)
}

// Middleware authenticates every request with v and stores the user id in
// the context. Failures answer 401.
func Middleware(v Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result := "success"
			defer func() {
				metrics.AuthAttemptsTotal.WithLabelValues(v.Method(), result).Inc()
			}()
			corr := obsmw.LogAttrs(r.Context())

			user, err := v.Validate(r.Context(), r)
			if err != nil {
				result = "failure"
				slog.Warn("dm auth rejected", append([]any{"method", v.Method(), "error", err}, corr...)...)
				writeUnauthorized(w, err)
				return
			}

			slog.Debug("dm auth passed", append([]any{"method", v.Method(), "user_id", user}, corr...)...)
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// BearerToken reads the Authorization header. Websocket clients in browsers
// cannot set headers, so an access_token query parameter is accepted too.
func BearerToken(r *http.Request) (string, error) {
	raw := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(raw), "bearer ") {
		if tok := strings.TrimSpace(raw[len("Bearer "):]); tok != "" {
			return tok, nil
		}
	}
	if tok := r.URL.Query().Get("access_token"); tok != "" {
		return tok, nil
	}
	return "", ErrMissingToken
}

func subjectToUser(sub string) (uuid.UUID, error) {
	if sub == "" {
		return uuid.Nil, ErrNoSubject
	}
	id, err := uuid.Parse(sub)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, ErrNoSubject
	}
	return id, nil
}

func checkIssuer(got, want string) error {
	if want != "" && got != want {
		return ErrIssuerMismatch
	}
	return nil
}

func writeUnauthorized(w http.ResponseWriter, err error) {
	msg := ErrInvalidToken.Error()
	switch {
	case errors.Is(err, ErrMissingToken), errors.Is(err, ErrIssuerMismatch), errors.Is(err, ErrNoSubject):
		msg = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": "unauthorized"})
}
