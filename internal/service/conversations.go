package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dmcore/internal/domain"
	"dmcore/internal/observability/metrics"
	"dmcore/internal/store"

	"github.com/google/uuid"
)

// ConversationSummary is one row of a user's conversation list. The last
// message is returned as ciphertext for the caller to decrypt.
type ConversationSummary struct {
	Conversation domain.Conversation
	Peer         uuid.UUID
	LastMessage  *domain.Message
	Unread       int64
}

// ResolveConversation finds or creates the conversation for the unordered
// pair (a, b). created reports whether this call inserted the row.
func (s *Service) ResolveConversation(ctx context.Context, a, b uuid.UUID) (conv *domain.Conversation, created bool, err error) {
	if a == uuid.Nil || b == uuid.Nil {
		return nil, false, fmt.Errorf("%w: missing participant", ErrInvalidRequest)
	}
	if a == b {
		return nil, false, fmt.Errorf("%w: cannot start a conversation with yourself", ErrInvalidRequest)
	}

	convs := s.store.Conversations()
	conv, err = convs.GetByPair(ctx, a, b)
	if err == nil {
		metrics.ConversationsResolvedTotal.WithLabelValues("existing").Inc()
		return conv, false, nil
	}
	if !errors.Is(err, store.ErrRecordNotFound) {
		return nil, false, err
	}

	first, second := domain.Canonical(a, b)
	now := s.clock()
	conv = &domain.Conversation{
		ParticipantA:   first,
		ParticipantB:   second,
		LastActivityAt: now,
		CreatedAt:      now,
	}
	err = convs.Create(ctx, conv)
	if err == nil {
		metrics.ConversationsResolvedTotal.WithLabelValues("created").Inc()
		return conv, true, nil
	}
	if !errors.Is(err, store.ErrDuplicate) {
		return nil, false, err
	}

	// The other side created it between our lookup and insert.
	conv, err = convs.GetByPair(ctx, a, b)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, false, ErrConversationRace
		}
		return nil, false, err
	}
	metrics.ConversationsResolvedTotal.WithLabelValues("raced").Inc()
	return conv, false, nil
}

// GetConversation returns the conversation if viewer participates in it.
func (s *Service) GetConversation(ctx context.Context, viewer, convID uuid.UUID) (*domain.Conversation, error) {
	return conversationFor(ctx, s.store, viewer, convID)
}

func conversationFor(ctx context.Context, st *store.Store, viewer, convID uuid.UUID) (*domain.Conversation, error) {
	if convID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing conversationId", ErrInvalidRequest)
	}
	conv, err := st.Conversations().Get(ctx, convID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	if !conv.HasParticipant(viewer) {
		return nil, ErrNotParticipant
	}
	return conv, nil
}

// touchConversation bumps last activity to at. It never moves backwards, so
// a late commit of an older message cannot reorder the conversation list.
func touchConversation(ctx context.Context, st *store.Store, convID uuid.UUID, at time.Time) error {
	return st.Conversations().Touch(ctx, convID, at)
}

// ListConversations returns the user's conversations, most recent first,
// each with the peer, the latest message and the user's unread count.
func (s *Service) ListConversations(ctx context.Context, userID uuid.UUID) ([]ConversationSummary, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing userId", ErrInvalidRequest)
	}
	convs, err := s.store.Conversations().ListFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(convs) == 0 {
		return []ConversationSummary{}, nil
	}
	unread, err := s.store.Messages().UnreadByConversation(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]ConversationSummary, 0, len(convs))
	for _, c := range convs {
		last, err := s.store.Messages().Latest(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, ConversationSummary{
			Conversation: c,
			Peer:         c.Other(userID),
			LastMessage:  last,
			Unread:       unread[c.ID],
		})
	}
	return out, nil
}

// SummarizeConversation builds the list row for a single conversation.
func (s *Service) SummarizeConversation(ctx context.Context, viewer, convID uuid.UUID) (ConversationSummary, error) {
	conv, err := s.GetConversation(ctx, viewer, convID)
	if err != nil {
		return ConversationSummary{}, err
	}
	last, err := s.store.Messages().Latest(ctx, conv.ID)
	if err != nil {
		return ConversationSummary{}, err
	}
	unread, err := s.store.Messages().UnreadByConversation(ctx, viewer)
	if err != nil {
		return ConversationSummary{}, err
	}
	return ConversationSummary{
		Conversation: *conv,
		Peer:         conv.Other(viewer),
		LastMessage:  last,
		Unread:       unread[conv.ID],
	}, nil
}
