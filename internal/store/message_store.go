package store

import (
	"context"
	"time"

	"dmcore/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MessageStore struct{ db *gorm.DB }

func (s *Store) Messages() *MessageStore { return &MessageStore{db: s.DB} }

// Create appends a message. Rows are never updated except for read state.
func (m *MessageStore) Create(ctx context.Context, msg *domain.Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	return translate(m.db.WithContext(ctx).Create(msg).Error)
}

func (m *MessageStore) Get(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	var msg domain.Message
	if err := m.db.WithContext(ctx).First(&msg, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &msg, nil
}

// PageNewestFirst returns one page of a conversation ordered newest first.
func (m *MessageStore) PageNewestFirst(ctx context.Context, convID uuid.UUID, limit, offset int) ([]domain.Message, error) {
	var msgs []domain.Message
	err := m.db.WithContext(ctx).
		Where("conversation_id = ?", convID).
		Order("created_at desc, id desc").
		Limit(limit).
		Offset(offset).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// Latest returns the newest message of a conversation, or nil when empty.
func (m *MessageStore) Latest(ctx context.Context, convID uuid.UUID) (*domain.Message, error) {
	msgs, err := m.PageNewestFirst(ctx, convID, 1, 0)
	if err != nil || len(msgs) == 0 {
		return nil, err
	}
	return &msgs[0], nil
}

// MarkDelivered stamps delivered_at on the given messages that have not been
// delivered yet.
func (m *MessageStore) MarkDelivered(ctx context.Context, ids []uuid.UUID, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := m.db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id IN ? AND delivered_at IS NULL", ids).
		Update("delivered_at", at)
	return res.RowsAffected, res.Error
}

// MarkConversationSeen flips every unread message in convID that viewer did
// not send. Already-read rows are untouched, so repeats are no-ops.
func (m *MessageStore) MarkConversationSeen(ctx context.Context, convID, viewer uuid.UUID, at time.Time) (int64, error) {
	res := m.db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND is_read = ?", convID, viewer, false).
		Updates(seenAssignments(at))
	return res.RowsAffected, res.Error
}

// MarkSeen flips a single message if it is still unread.
func (m *MessageStore) MarkSeen(ctx context.Context, id uuid.UUID, at time.Time) (int64, error) {
	res := m.db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id = ? AND is_read = ?", id, false).
		Updates(seenAssignments(at))
	return res.RowsAffected, res.Error
}

func seenAssignments(at time.Time) map[string]any {
	return map[string]any{
		"is_read":      true,
		"read_at":      at,
		"delivered_at": gorm.Expr("COALESCE(delivered_at, ?)", at),
	}
}

// UnreadCount counts messages in the user's conversations sent by the other
// participant that are still unread.
func (m *MessageStore) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	err := m.unreadQuery(ctx, userID).Count(&n).Error
	return n, err
}

// UnreadByConversation is UnreadCount grouped per conversation.
func (m *MessageStore) UnreadByConversation(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]int64, error) {
	var rows []struct {
		ConversationID uuid.UUID
		Unread         int64
	}
	err := m.unreadQuery(ctx, userID).
		Select("messages.conversation_id AS conversation_id, COUNT(*) AS unread").
		Group("messages.conversation_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]int64, len(rows))
	for _, r := range rows {
		out[r.ConversationID] = r.Unread
	}
	return out, nil
}

func (m *MessageStore) unreadQuery(ctx context.Context, userID uuid.UUID) *gorm.DB {
	return m.db.WithContext(ctx).
		Model(&domain.Message{}).
		Joins("JOIN conversations ON conversations.id = messages.conversation_id").
		Where("(conversations.participant_a = ? OR conversations.participant_b = ?) AND messages.sender_id <> ? AND messages.is_read = ?",
			userID, userID, userID, false)
}
