package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"dmcore/internal/domain"
	"dmcore/internal/events"
	"dmcore/internal/observability/metrics"
	"dmcore/internal/store"
	"dmcore/pkg/e2ee"

	"github.com/google/uuid"
)

// SendRequest addresses a message by exactly one of ConversationID or
// RecipientID.
type SendRequest struct {
	SenderID       uuid.UUID
	ConversationID uuid.UUID
	RecipientID    uuid.UUID
	Envelope       e2ee.Envelope
}

// SendMessage resolves the target conversation, checks the recipient has
// messaging keys, and appends the envelope.
func (s *Service) SendMessage(ctx context.Context, req SendRequest) (*domain.Message, error) {
	if req.SenderID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing senderId", ErrInvalidRequest)
	}
	hasConv, hasRecipient := req.ConversationID != uuid.Nil, req.RecipientID != uuid.Nil
	if hasConv == hasRecipient {
		return nil, fmt.Errorf("%w: exactly one of conversationId or recipientId is required", ErrInvalidRequest)
	}
	if err := validateEnvelope(req.Envelope); err != nil {
		return nil, err
	}

	var (
		conv *domain.Conversation
		err  error
	)
	if hasConv {
		conv, err = s.GetConversation(ctx, req.SenderID, req.ConversationID)
	} else {
		if req.RecipientID == req.SenderID {
			return nil, fmt.Errorf("%w: cannot message yourself", ErrInvalidRequest)
		}
		if err := s.requireKeys(ctx, req.RecipientID); err != nil {
			return nil, err
		}
		conv, _, err = s.ResolveConversation(ctx, req.SenderID, req.RecipientID)
	}
	if err != nil {
		return nil, err
	}
	if hasConv {
		if err := s.requireKeys(ctx, conv.Other(req.SenderID)); err != nil {
			return nil, err
		}
	}

	return s.AppendMessage(ctx, conv.ID, req.SenderID, req.Envelope)
}

func (s *Service) requireKeys(ctx context.Context, userID uuid.UUID) error {
	ok, err := s.store.Keys().Exists(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoKeyRecord
	}
	return nil
}

func validateEnvelope(env e2ee.Envelope) error {
	switch e := env.(type) {
	case e2ee.DualEncrypted:
		if !e.Recipient.Complete() || !e.Sender.Complete() {
			return fmt.Errorf("%w: incomplete ciphertext triple", ErrInvalidRequest)
		}
	case e2ee.RecipientOnly:
		if !e.Recipient.Complete() {
			return fmt.Errorf("%w: incomplete ciphertext triple", ErrInvalidRequest)
		}
	default:
		return fmt.Errorf("%w: missing ciphertext", ErrInvalidRequest)
	}
	return nil
}

func envelopeForm(env e2ee.Envelope) string {
	if _, ok := env.(e2ee.DualEncrypted); ok {
		return "dual"
	}
	return "recipient_only"
}

func envelopeSize(env e2ee.Envelope) int {
	n := env.RecipientCopy().Size()
	if d, ok := env.(e2ee.DualEncrypted); ok {
		n += d.Sender.Size()
	}
	return n
}

// AppendMessage stores env in convID and bumps the conversation's activity
// in the same transaction, then notifies both participants. Ciphertexts are
// stored as-is and never rewritten.
func (s *Service) AppendMessage(ctx context.Context, convID, senderID uuid.UUID, env e2ee.Envelope) (*domain.Message, error) {
	if err := validateEnvelope(env); err != nil {
		return nil, err
	}

	var (
		msg  *domain.Message
		conv *domain.Conversation
	)
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		var err error
		conv, err = conversationFor(ctx, tx, senderID, convID)
		if err != nil {
			return err
		}
		now := s.clock()
		msg = &domain.Message{
			ConversationID: conv.ID,
			SenderID:       senderID,
			CreatedAt:      now,
		}
		msg.SetEnvelope(env)
		if err := tx.Messages().Create(ctx, msg); err != nil {
			return err
		}
		return touchConversation(ctx, tx, conv.ID, now)
	})
	if err != nil {
		return nil, err
	}

	form := envelopeForm(env)
	metrics.MessagesStoredTotal.WithLabelValues(form).Inc()
	metrics.MessagesCiphertextBytes.WithLabelValues(form).Observe(float64(envelopeSize(env)))
	slog.Default().Debug("message stored",
		"message_id", msg.ID,
		"conversation_id", conv.ID,
		"form", form,
	)

	id := msg.ID
	s.publish(ctx, events.Event{
		Type:           events.MessageCreated,
		ConversationID: conv.ID,
		MessageID:      &id,
		ActorID:        senderID,
		At:             msg.CreatedAt,
	}, conv.ParticipantA, conv.ParticipantB)
	return msg, nil
}

// ListMessages returns one page of a conversation in chronological order.
// Pages are 1-based and count back from the newest message, so page 1 holds
// the latest pageSize messages. Messages addressed to the viewer are marked
// delivered by this fetch.
func (s *Service) ListMessages(ctx context.Context, viewer, convID uuid.UUID, page, pageSize int) ([]domain.Message, error) {
	conv, err := s.GetConversation(ctx, viewer, convID)
	if err != nil {
		return nil, err
	}
	page, pageSize = s.normalizePage(page, pageSize)

	msgs, err := s.store.Messages().PageNewestFirst(ctx, conv.ID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	metrics.HistoryFetchedTotal.Inc()

	var pending []uuid.UUID
	for _, m := range msgs {
		if m.SenderID != viewer && m.DeliveredAt == nil {
			pending = append(pending, m.ID)
		}
	}
	if len(pending) > 0 {
		now := s.clock()
		if _, err := s.store.Messages().MarkDelivered(ctx, pending, now); err != nil {
			return nil, err
		}
		for i := range msgs {
			if msgs[i].SenderID != viewer && msgs[i].DeliveredAt == nil {
				at := now
				msgs[i].DeliveredAt = &at
			}
		}
	}

	chronological(msgs)
	return msgs, nil
}

// GetMessage returns a single message visible to viewer.
func (s *Service) GetMessage(ctx context.Context, viewer, msgID uuid.UUID) (*domain.Message, error) {
	msg, _, err := s.messageFor(ctx, viewer, msgID)
	return msg, err
}

func (s *Service) messageFor(ctx context.Context, viewer, msgID uuid.UUID) (*domain.Message, *domain.Conversation, error) {
	if msgID == uuid.Nil {
		return nil, nil, fmt.Errorf("%w: missing messageId", ErrInvalidRequest)
	}
	msg, err := s.store.Messages().Get(ctx, msgID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, nil, ErrMessageNotFound
		}
		return nil, nil, err
	}
	conv, err := s.GetConversation(ctx, viewer, msg.ConversationID)
	if err != nil {
		if errors.Is(err, ErrConversationNotFound) {
			return nil, nil, ErrMessageNotFound
		}
		return nil, nil, err
	}
	return msg, conv, nil
}

// PageBounds reports the page and size ListMessages uses for the given
// request values.
func (s *Service) PageBounds(page, pageSize int) (int, int) {
	return s.normalizePage(page, pageSize)
}

func (s *Service) normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = s.pageSize
	}
	if pageSize > s.maxPageSize {
		pageSize = s.maxPageSize
	}
	// Keeps (page-1)*pageSize a valid SQL offset. Pages past the cap are
	// empty anyway.
	if last := math.MaxInt32 / s.maxPageSize; page > last {
		page = last
	}
	return page, pageSize
}

// chronological reverses a newest-first page in place.
func chronological(msgs []domain.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
