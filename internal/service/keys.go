package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"dmcore/internal/domain"
	"dmcore/internal/observability/metrics"
	"dmcore/internal/store"
	"dmcore/pkg/e2ee"

	"github.com/google/uuid"
)

const currentKeyVersion = 1

type ProvisionRequest struct {
	UserID            uuid.UUID
	PublicKey         string
	WrappedPrivateKey string
}

// ProvisionKeys stores a user's key record exactly once. A second call for
// the same user, concurrent or not, fails with ErrKeyConflict and leaves the
// first record untouched.
func (s *Service) ProvisionKeys(ctx context.Context, req ProvisionRequest) (*domain.KeyRecord, error) {
	if req.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing userId", ErrInvalidRequest)
	}
	pub := strings.TrimSpace(req.PublicKey)
	if pub == "" || strings.TrimSpace(req.WrappedPrivateKey) == "" {
		return nil, fmt.Errorf("%w: missing key material", ErrInvalidRequest)
	}
	if _, err := e2ee.ParsePublicKey(pub); err != nil {
		metrics.KeysProvisionedTotal.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	rec := &domain.KeyRecord{
		UserID:              req.UserID,
		PublicKey:           pub,
		EncryptedPrivateKey: req.WrappedPrivateKey,
		KeyVersion:          currentKeyVersion,
		CreatedAt:           s.clock(),
	}
	if err := s.store.Keys().Create(ctx, rec); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			metrics.KeysProvisionedTotal.WithLabelValues("conflict").Inc()
			return nil, ErrKeyConflict
		}
		metrics.KeysProvisionedTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.KeysProvisionedTotal.WithLabelValues("created").Inc()
	return rec, nil
}

// GetOwnKeys returns the caller's record with the private key still wrapped.
func (s *Service) GetOwnKeys(ctx context.Context, userID uuid.UUID) (*domain.KeyRecord, error) {
	return s.keyRecord(ctx, userID)
}

func (s *Service) GetPublicKey(ctx context.Context, userID uuid.UUID) (string, error) {
	rec, err := s.keyRecord(ctx, userID)
	if err != nil {
		return "", err
	}
	return rec.PublicKey, nil
}

func (s *Service) keyRecord(ctx context.Context, userID uuid.UUID) (*domain.KeyRecord, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing userId", ErrInvalidRequest)
	}
	rec, err := s.store.Keys().Get(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, ErrNoKeyRecord
		}
		return nil, err
	}
	return rec, nil
}
