package service

import "errors"

var (
	ErrInvalidRequest       = errors.New("invalid request")
	ErrKeyConflict          = errors.New("key record already exists")
	ErrNoKeyRecord          = errors.New("user has not set up messaging keys")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrNotParticipant       = errors.New("not a participant of this conversation")
	// ErrConversationRace is returned when a concurrent create could not be
	// re-read; callers retry resolve once.
	ErrConversationRace = errors.New("conversation resolve raced, retry")
)
