package domain

import (
	"time"

	"dmcore/pkg/e2ee"
)

// KeyRecord is a user's messaging key material. The private key is wrapped
// client-side and never interpreted here.
type KeyRecord struct {
	UserID              UserID    `gorm:"type:uuid;primaryKey"`
	PublicKey           string    `gorm:"type:text;not null"`
	EncryptedPrivateKey string    `gorm:"type:text;not null"`
	KeyVersion          int       `gorm:"not null;default:1"`
	CreatedAt           time.Time `gorm:"not null"`
}

func (KeyRecord) TableName() string { return "key_records" }

// Conversation is canonicalized so that ParticipantA sorts before ParticipantB.
type Conversation struct {
	ID             ConversationID `gorm:"type:uuid;primaryKey"`
	ParticipantA   UserID         `gorm:"type:uuid;not null;uniqueIndex:ux_conversations_pair,priority:1"`
	ParticipantB   UserID         `gorm:"type:uuid;not null;uniqueIndex:ux_conversations_pair,priority:2;index"`
	LastActivityAt time.Time      `gorm:"not null;index"`
	CreatedAt      time.Time      `gorm:"not null"`
}

func (Conversation) TableName() string { return "conversations" }

// HasParticipant reports whether user is one of the two participants.
func (c Conversation) HasParticipant(user UserID) bool {
	return c.ParticipantA == user || c.ParticipantB == user
}

// Other returns the participant that is not user.
func (c Conversation) Other(user UserID) UserID {
	if c.ParticipantA == user {
		return c.ParticipantB
	}
	return c.ParticipantA
}

// Message stores two ciphertext triples as opaque strings. The sender columns
// are nullable for rows written before dual encryption.
type Message struct {
	ID             MessageID      `gorm:"type:uuid;primaryKey"`
	ConversationID ConversationID `gorm:"type:uuid;not null;index:idx_messages_conversation_created,priority:1"`
	SenderID       UserID         `gorm:"type:uuid;not null;index"`

	RecipientContent    string `gorm:"type:text;not null"`
	RecipientWrappedKey string `gorm:"type:text;not null"`
	RecipientIV         string `gorm:"type:text;not null"`

	SenderContent    *string `gorm:"type:text"`
	SenderWrappedKey *string `gorm:"type:text"`
	SenderIV         *string `gorm:"type:text"`

	Read        bool       `gorm:"column:is_read;not null;default:false;index"`
	ReadAt      *time.Time `gorm:"type:timestamptz"`
	DeliveredAt *time.Time `gorm:"type:timestamptz"`
	CreatedAt   time.Time  `gorm:"not null;index:idx_messages_conversation_created,priority:2"`
}

func (Message) TableName() string { return "messages" }

// ReadState is the receipt state derived from the stored timestamps.
type ReadState string

const (
	StateUnread    ReadState = "unread"
	StateDelivered ReadState = "delivered"
	StateSeen      ReadState = "seen"
)

// State derives the receipt state.
func (m Message) State() ReadState {
	switch {
	case m.Read:
		return StateSeen
	case m.DeliveredAt != nil:
		return StateDelivered
	default:
		return StateUnread
	}
}

// Envelope returns the stored ciphertexts as the tagged variant.
func (m Message) Envelope() e2ee.Envelope {
	recipient := e2ee.Triple{
		Content:    m.RecipientContent,
		WrappedKey: m.RecipientWrappedKey,
		IV:         m.RecipientIV,
	}
	if m.SenderContent == nil || m.SenderWrappedKey == nil || m.SenderIV == nil {
		return e2ee.NewEnvelope(recipient, nil)
	}
	sender := e2ee.Triple{
		Content:    *m.SenderContent,
		WrappedKey: *m.SenderWrappedKey,
		IV:         *m.SenderIV,
	}
	return e2ee.NewEnvelope(recipient, &sender)
}

// SetEnvelope copies env into the ciphertext columns.
func (m *Message) SetEnvelope(env e2ee.Envelope) {
	r := env.RecipientCopy()
	m.RecipientContent = r.Content
	m.RecipientWrappedKey = r.WrappedKey
	m.RecipientIV = r.IV
	m.SenderContent, m.SenderWrappedKey, m.SenderIV = nil, nil, nil
	if d, ok := env.(e2ee.DualEncrypted); ok {
		m.SenderContent = &d.Sender.Content
		m.SenderWrappedKey = &d.Sender.WrappedKey
		m.SenderIV = &d.Sender.IV
	}
}

// Canonical orders a participant pair so (a, b) and (b, a) map to one row.
func Canonical(a, b UserID) (UserID, UserID) {
	if lessUUID(b, a) {
		return b, a
	}
	return a, b
}

func lessUUID(a, b UserID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
