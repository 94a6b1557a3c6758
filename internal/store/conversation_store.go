package store

import (
	"context"
	"time"

	"dmcore/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ConversationStore struct{ db *gorm.DB }

func (s *Store) Conversations() *ConversationStore { return &ConversationStore{db: s.DB} }

// Create inserts conv, which must already be canonicalized. The unique pair
// index turns a concurrent duplicate into ErrDuplicate.
func (c *ConversationStore) Create(ctx context.Context, conv *domain.Conversation) error {
	if conv.ID == uuid.Nil {
		conv.ID = uuid.New()
	}
	return translate(c.db.WithContext(ctx).Create(conv).Error)
}

func (c *ConversationStore) Get(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	var conv domain.Conversation
	if err := c.db.WithContext(ctx).First(&conv, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &conv, nil
}

// GetByPair looks up the conversation for an unordered pair.
func (c *ConversationStore) GetByPair(ctx context.Context, a, b uuid.UUID) (*domain.Conversation, error) {
	first, second := domain.Canonical(a, b)
	var conv domain.Conversation
	err := c.db.WithContext(ctx).
		Where("participant_a = ? AND participant_b = ?", first, second).
		First(&conv).Error
	if err != nil {
		return nil, translate(err)
	}
	return &conv, nil
}

// Touch moves last_activity_at forward to at; it never moves it back.
func (c *ConversationStore) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	return c.db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ? AND last_activity_at < ?", id, at).
		Update("last_activity_at", at).Error
}

// ListFor returns the user's conversations, most recently active first.
func (c *ConversationStore) ListFor(ctx context.Context, userID uuid.UUID) ([]domain.Conversation, error) {
	var convs []domain.Conversation
	err := c.db.WithContext(ctx).
		Where("participant_a = ? OR participant_b = ?", userID, userID).
		Order("last_activity_at desc, id asc").
		Find(&convs).Error
	if err != nil {
		return nil, err
	}
	return convs, nil
}
