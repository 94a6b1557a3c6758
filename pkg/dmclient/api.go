package dmclient

import (
	"time"

	"github.com/google/uuid"
)

// Wire types of the DM API as seen by clients.

// Ciphertext is one hybrid ciphertext triple, all fields base64.
type Ciphertext struct {
	Content    string `json:"content"`
	WrappedKey string `json:"wrappedKey"`
	IV         string `json:"iv"`
}

type KeyRecord struct {
	UserID              string    `json:"userId"`
	PublicKey           string    `json:"publicKey"`
	EncryptedPrivateKey string    `json:"encryptedPrivateKey"`
	KeyVersion          int       `json:"keyVersion"`
	CreatedAt           time.Time `json:"createdAt"`
}

// SendRequest carries exactly one of ConversationID or RecipientID. A nil
// SenderCiphertext sends a recipient-only message the sender cannot reread.
type SendRequest struct {
	ConversationID      string      `json:"conversationId,omitempty"`
	RecipientID         string      `json:"recipientId,omitempty"`
	RecipientCiphertext Ciphertext  `json:"recipientCiphertext"`
	SenderCiphertext    *Ciphertext `json:"senderCiphertext,omitempty"`
}

type Message struct {
	ID                  string      `json:"id"`
	ConversationID      string      `json:"conversationId"`
	SenderID            string      `json:"senderId"`
	RecipientCiphertext Ciphertext  `json:"recipientCiphertext"`
	SenderCiphertext    *Ciphertext `json:"senderCiphertext,omitempty"`
	State               string      `json:"state"`
	Read                bool        `json:"read"`
	ReadAt              *time.Time  `json:"readAt,omitempty"`
	DeliveredAt         *time.Time  `json:"deliveredAt,omitempty"`
	CreatedAt           time.Time   `json:"createdAt"`
}

type MessagePage struct {
	ConversationID string    `json:"conversationId"`
	Page           int       `json:"page"`
	PageSize       int       `json:"pageSize"`
	Messages       []Message `json:"messages"`
}

type Conversation struct {
	ID             string    `json:"id"`
	PeerID         string    `json:"peerId"`
	LastActivityAt time.Time `json:"lastActivityAt"`
	CreatedAt      time.Time `json:"createdAt"`
	UnreadCount    int64     `json:"unreadCount"`
	LastMessage    *Message  `json:"lastMessage,omitempty"`
}

const (
	EventMessageCreated = "message.created"
	EventMessagesSeen   = "messages.seen"
)

// Event is a change notification from the stream. It never carries
// ciphertext; re-fetch the conversation to read it.
type Event struct {
	Type           string     `json:"type"`
	ConversationID uuid.UUID  `json:"conversationId"`
	MessageID      *uuid.UUID `json:"messageId,omitempty"`
	ActorID        uuid.UUID  `json:"actorId"`
	Count          int64      `json:"count,omitempty"`
	At             time.Time  `json:"at"`
}

type provisionKeysRequest struct {
	PublicKey           string `json:"publicKey"`
	EncryptedPrivateKey string `json:"encryptedPrivateKey"`
}

type publicKeyResponse struct {
	UserID    string `json:"userId"`
	PublicKey string `json:"publicKey"`
}

type resolveConversationRequest struct {
	PeerID string `json:"peerId"`
}

type conversationList struct {
	Conversations []Conversation `json:"conversations"`
}

type markSeenResponse struct {
	Updated int64 `json:"updated"`
}

type unreadCountResponse struct {
	Unread int64 `json:"unread"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
