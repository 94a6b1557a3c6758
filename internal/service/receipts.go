package service

import (
	"context"
	"fmt"

	"dmcore/internal/domain"
	"dmcore/internal/events"
	"dmcore/internal/observability/metrics"

	"github.com/google/uuid"
)

// MarkConversationSeen flips every unread message viewer received in the
// conversation. It returns how many changed; repeating it returns 0.
func (s *Service) MarkConversationSeen(ctx context.Context, viewer, convID uuid.UUID) (int64, error) {
	conv, err := s.GetConversation(ctx, viewer, convID)
	if err != nil {
		return 0, err
	}
	now := s.clock()
	n, err := s.store.Messages().MarkConversationSeen(ctx, conv.ID, viewer, now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.ReceiptsMarkedTotal.WithLabelValues("conversation").Add(float64(n))
		s.publish(ctx, events.Event{
			Type:           events.MessagesSeen,
			ConversationID: conv.ID,
			ActorID:        viewer,
			Count:          n,
			At:             now,
		}, conv.Other(viewer))
	}
	return n, nil
}

// MarkMessageSeen flips a single message. Only the recipient may mark it;
// marking an already-seen message is a no-op that returns the stored row.
func (s *Service) MarkMessageSeen(ctx context.Context, viewer, msgID uuid.UUID) (*domain.Message, error) {
	msg, conv, err := s.messageFor(ctx, viewer, msgID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID == viewer {
		return nil, fmt.Errorf("%w: only the recipient can mark a message seen", ErrNotParticipant)
	}
	if msg.Read {
		return msg, nil
	}

	now := s.clock()
	n, err := s.store.Messages().MarkSeen(ctx, msg.ID, now)
	if err != nil {
		return nil, err
	}
	updated, err := s.store.Messages().Get(ctx, msg.ID)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		metrics.ReceiptsMarkedTotal.WithLabelValues("message").Inc()
		id := msg.ID
		s.publish(ctx, events.Event{
			Type:           events.MessagesSeen,
			ConversationID: conv.ID,
			MessageID:      &id,
			ActorID:        viewer,
			Count:          n,
			At:             now,
		}, msg.SenderID)
	}
	return updated, nil
}

// UnreadCount counts messages sent to userID that are still unread, across
// all of the user's conversations.
func (s *Service) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, fmt.Errorf("%w: missing userId", ErrInvalidRequest)
	}
	return s.store.Messages().UnreadCount(ctx, userID)
}
