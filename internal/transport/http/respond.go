package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"dmcore/internal/authz"
	"dmcore/internal/dto"
	"dmcore/internal/observability/middleware"
	"dmcore/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Ciphertexts are at most a few base64 blobs; anything larger is refused.
const maxBodyBytes = 4 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorKind struct {
	target error
	status int
	code   string
}

var errorKinds = []errorKind{
	{service.ErrInvalidRequest, http.StatusBadRequest, "invalid_request"},
	{service.ErrNotParticipant, http.StatusForbidden, "not_participant"},
	{service.ErrConversationNotFound, http.StatusNotFound, "conversation_not_found"},
	{service.ErrMessageNotFound, http.StatusNotFound, "message_not_found"},
	{service.ErrNoKeyRecord, http.StatusNotFound, "no_key_record"},
	{service.ErrKeyConflict, http.StatusConflict, "key_conflict"},
	{service.ErrConversationRace, http.StatusServiceUnavailable, "conversation_race"},
}

func statusFor(err error) (int, string) {
	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			return k.status, k.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

// writeError maps a service error to a status and logs it with the request
// ids. Internal errors are not echoed to the client.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	attrs := append(middleware.LogAttrs(r.Context()), "op", op, "error", err, "status", status)
	if status == http.StatusInternalServerError {
		msg = "internal error"
		slog.Error("dm request failed", attrs...)
	} else {
		slog.Warn("dm request rejected", attrs...)
	}
	writeJSON(w, status, dto.ErrorResponse{Error: msg, Code: code})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return invalid("malformed json body")
	}
	return nil
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", service.ErrInvalidRequest, msg)
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, invalid("invalid " + name)
	}
	return id, nil
}

func optionalUUID(raw, name string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, invalid("invalid " + name)
	}
	return id, nil
}

// caller returns the authenticated user. The authz middleware guarantees it
// on every /v1 route.
func caller(r *http.Request) uuid.UUID {
	id, _ := authz.UserFrom(r.Context())
	return id
}

func logAttrs(r *http.Request, kv ...any) []any {
	return append(append(kv, "user_id", caller(r)), middleware.LogAttrs(r.Context())...)
}
