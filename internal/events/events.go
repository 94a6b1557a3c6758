package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	MessageCreated Type = "message.created"
	MessagesSeen   Type = "messages.seen"
)

// Event notifies a participant that a conversation changed. It carries ids
// and timestamps only; clients re-fetch the ciphertexts.
type Event struct {
	Type           Type       `json:"type"`
	ConversationID uuid.UUID  `json:"conversationId"`
	MessageID      *uuid.UUID `json:"messageId,omitempty"`
	ActorID        uuid.UUID  `json:"actorId"`
	Count          int64      `json:"count,omitempty"`
	At             time.Time  `json:"at"`
}

// Bus delivers events addressed to a user to that user's live subscribers.
type Bus interface {
	Publish(ctx context.Context, userID uuid.UUID, ev Event) error
	Subscribe(ctx context.Context, userID uuid.UUID) (*Subscription, error)
}

// Subscription is a live event feed. C is closed after Close.
type Subscription struct {
	C <-chan Event

	once    sync.Once
	closeFn func()
}

func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(s.closeFn)
}

const subscriberBuffer = 32
