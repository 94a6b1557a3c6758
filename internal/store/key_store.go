package store

import (
	"context"

	"dmcore/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type KeyStore struct{ db *gorm.DB }

func (s *Store) Keys() *KeyStore { return &KeyStore{db: s.DB} }

// Create inserts a key record. A second record for the same user fails with
// ErrDuplicate; existing key material is never overwritten.
func (k *KeyStore) Create(ctx context.Context, rec *domain.KeyRecord) error {
	return translate(k.db.WithContext(ctx).Create(rec).Error)
}

func (k *KeyStore) Get(ctx context.Context, userID uuid.UUID) (*domain.KeyRecord, error) {
	var rec domain.KeyRecord
	if err := k.db.WithContext(ctx).First(&rec, "user_id = ?", userID).Error; err != nil {
		return nil, translate(err)
	}
	return &rec, nil
}

func (k *KeyStore) Exists(ctx context.Context, userID uuid.UUID) (bool, error) {
	var n int64
	if err := k.db.WithContext(ctx).Model(&domain.KeyRecord{}).Where("user_id = ?", userID).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}
