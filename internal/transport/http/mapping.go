package http

import (
	"dmcore/internal/domain"
	"dmcore/internal/dto"
	"dmcore/internal/service"
	"dmcore/pkg/e2ee"
)

func ciphertextFrom(t e2ee.Triple) dto.Ciphertext {
	return dto.Ciphertext{Content: t.Content, WrappedKey: t.WrappedKey, IV: t.IV}
}

func tripleFrom(c dto.Ciphertext) e2ee.Triple {
	return e2ee.Triple{Content: c.Content, WrappedKey: c.WrappedKey, IV: c.IV}
}

func messageResponse(m domain.Message) dto.MessageResponse {
	env := m.Envelope()
	resp := dto.MessageResponse{
		ID:                  m.ID.String(),
		ConversationID:      m.ConversationID.String(),
		SenderID:            m.SenderID.String(),
		RecipientCiphertext: ciphertextFrom(env.RecipientCopy()),
		State:               string(m.State()),
		Read:                m.Read,
		ReadAt:              m.ReadAt,
		DeliveredAt:         m.DeliveredAt,
		CreatedAt:           m.CreatedAt,
	}
	switch e := env.(type) {
	case e2ee.DualEncrypted:
		sender := ciphertextFrom(e.Sender)
		resp.SenderCiphertext = &sender
	case e2ee.RecipientOnly:
	}
	return resp
}

func messageResponses(msgs []domain.Message) []dto.MessageResponse {
	out := make([]dto.MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageResponse(m))
	}
	return out
}

func conversationResponse(s service.ConversationSummary) dto.ConversationResponse {
	resp := dto.ConversationResponse{
		ID:             s.Conversation.ID.String(),
		PeerID:         s.Peer.String(),
		LastActivityAt: s.Conversation.LastActivityAt,
		CreatedAt:      s.Conversation.CreatedAt,
		UnreadCount:    s.Unread,
	}
	if s.LastMessage != nil {
		last := messageResponse(*s.LastMessage)
		resp.LastMessage = &last
	}
	return resp
}

func keyRecordResponse(rec domain.KeyRecord) dto.KeyRecordResponse {
	return dto.KeyRecordResponse{
		UserID:              rec.UserID.String(),
		PublicKey:           rec.PublicKey,
		EncryptedPrivateKey: rec.EncryptedPrivateKey,
		KeyVersion:          rec.KeyVersion,
		CreatedAt:           rec.CreatedAt,
	}
}

// envelopeFrom rejects a partially filled sender copy instead of silently
// storing the message as recipient-only.
func envelopeFrom(req dto.SendMessageRequest) (e2ee.Envelope, error) {
	recipient := tripleFrom(req.RecipientCiphertext)
	if !recipient.Complete() {
		return nil, invalid("recipientCiphertext requires content, wrappedKey and iv")
	}
	if req.SenderCiphertext == nil {
		return e2ee.RecipientOnly{Recipient: recipient}, nil
	}
	sender := tripleFrom(*req.SenderCiphertext)
	if !sender.Complete() {
		return nil, invalid("senderCiphertext requires content, wrappedKey and iv")
	}
	return e2ee.DualEncrypted{Recipient: recipient, Sender: sender}, nil
}
