package dto

import "time"

// Ciphertext mirrors e2ee.Triple on the wire.
type Ciphertext struct {
	Content    string `json:"content"`
	WrappedKey string `json:"wrappedKey"`
	IV         string `json:"iv"`
}

// SendMessageRequest carries exactly one of ConversationID or RecipientID.
// SenderCiphertext is omitted only by clients that predate dual encryption.
type SendMessageRequest struct {
	ConversationID      string      `json:"conversationId,omitempty"`
	RecipientID         string      `json:"recipientId,omitempty"`
	RecipientCiphertext Ciphertext  `json:"recipientCiphertext"`
	SenderCiphertext    *Ciphertext `json:"senderCiphertext,omitempty"`
}

type MessageResponse struct {
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

type MessagePageResponse struct {
	ConversationID string            `json:"conversationId"`
	Page           int               `json:"page"`
	PageSize       int               `json:"pageSize"`
	Messages       []MessageResponse `json:"messages"`
}
