package dto

import "time"

type ResolveConversationRequest struct {
	PeerID string `json:"peerId"`
}

type ConversationResponse struct {
	ID             string           `json:"id"`
	PeerID         string           `json:"peerId"`
	LastActivityAt time.Time        `json:"lastActivityAt"`
	CreatedAt      time.Time        `json:"createdAt"`
	UnreadCount    int64            `json:"unreadCount"`
	LastMessage    *MessageResponse `json:"lastMessage,omitempty"`
}

type ConversationListResponse struct {
	Conversations []ConversationResponse `json:"conversations"`
}

type MarkSeenResponse struct {
	Updated int64 `json:"updated"`
}

type UnreadCountResponse struct {
	Unread int64 `json:"unread"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
