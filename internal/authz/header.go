package authz

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const DefaultUserHeader = "X-User-ID"

// HeaderValidator trusts a user id header set by an upstream gateway that has
// already authenticated the caller. Only deploy it behind such a gateway.
type HeaderValidator struct {
	header string
}

func NewHeaderValidator(header string) *HeaderValidator {
	if header == "" {
		header = DefaultUserHeader
	}
	return &HeaderValidator{header: header}
}

func (h *HeaderValidator) Method() string { return "header" }

func (h *HeaderValidator) Validate(_ context.Context, r *http.Request) (uuid.UUID, error) {
	v := r.Header.Get(h.header)
	if v == "" {
		return uuid.Nil, ErrMissingToken
	}
	return subjectToUser(v)
}
