package e2ee

import "fmt"

// Role is the reader's relation to a message.
type Role int

const (
	RoleRecipient Role = iota
	RoleSender
)

func (r Role) String() string {
	if r == RoleSender {
		return "sender"
	}
	return "recipient"
}

// Envelope is the stored ciphertext of one message. It is either
// DualEncrypted or RecipientOnly; the latter exists for messages written
// before the sender-addressed copy was introduced.
type Envelope interface {
	RecipientCopy() Triple
	envelope()
}

// DualEncrypted carries the same plaintext addressed to both participants.
type DualEncrypted struct {
	Recipient Triple
	Sender    Triple
}

// RecipientOnly is the legacy single-ciphertext form.
type RecipientOnly struct {
	Recipient Triple
}

func (d DualEncrypted) RecipientCopy() Triple { return d.Recipient }
func (r RecipientOnly) RecipientCopy() Triple { return r.Recipient }

func (DualEncrypted) envelope() {}
func (RecipientOnly) envelope() {}

// NewEnvelope builds the variant matching the stored columns: a complete
// sender triple yields DualEncrypted, anything else RecipientOnly.
func NewEnvelope(recipient Triple, sender *Triple) Envelope {
	if sender != nil && sender.Complete() {
		return DualEncrypted{Recipient: recipient, Sender: *sender}
	}
	return RecipientOnly{Recipient: recipient}
}

// Select picks the triple a reader in role can open.
func Select(env Envelope, role Role) (Triple, error) {
	switch e := env.(type) {
	case DualEncrypted:
		if role == RoleSender {
			return e.Sender, nil
		}
		return e.Recipient, nil
	case RecipientOnly:
		if role == RoleSender {
			return Triple{}, ErrSenderCopyMissing
		}
		return e.Recipient, nil
	default:
		return Triple{}, fmt.Errorf("e2ee: unknown envelope %T", env)
	}
}

// SealDual runs EncryptFor twice with independent symmetric keys so that
// both the recipient and the sender can later read the plaintext.
func SealDual(plaintext []byte, recipient, sender *PublicKey) (DualEncrypted, error) {
	forRecipient, err := EncryptFor(plaintext, recipient)
	if err != nil {
		return DualEncrypted{}, fmt.Errorf("encrypt for recipient: %w", err)
	}
	forSender, err := EncryptFor(plaintext, sender)
	if err != nil {
		return DualEncrypted{}, fmt.Errorf("encrypt for sender: %w", err)
	}
	return DualEncrypted{Recipient: forRecipient, Sender: forSender}, nil
}

// Open selects the triple for role and decrypts it with priv.
func Open(env Envelope, role Role, priv *PrivateKey) ([]byte, error) {
	t, err := Select(env, role)
	if err != nil {
		return nil, err
	}
	return DecryptWith(t, priv)
}
