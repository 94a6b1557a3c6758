package dmclient

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"dmcore/pkg/e2ee"

	"github.com/google/uuid"
)

// ErrKeyRecordMismatch means the unwrapped private key does not belong to the
// public key the server holds for this user.
var ErrKeyRecordMismatch = errors.New("dmclient: private key does not match published public key")

// Session is a signed-in user with an unwrapped private key held in memory.
// Close destroys the key.
type Session struct {
	client *Client
	userID uuid.UUID
	priv   *e2ee.PrivateKey
	pub    *e2ee.PublicKey

	mu       sync.Mutex
	peerKeys map[uuid.UUID]*e2ee.PublicKey
	keyBits  int
	keystore *e2ee.Keystore
}

// Decrypted is one history entry. Err is set instead of Plaintext when this
// message alone could not be opened.
type Decrypted struct {
	Message   Message
	Role      e2ee.Role
	Plaintext []byte
	Err       error
}

type SessionOption func(*Session)

// WithKeyBits sets the RSA size used when Open has to create keys.
func WithKeyBits(bits int) SessionOption {
	return func(s *Session) { s.keyBits = bits }
}

// Open loads the caller's key record and unwraps it with passphrase. A user
// without a record gets a fresh key pair, wrapped locally and provisioned.
// If another device provisions first, the winner's record is used instead.
func Open(ctx context.Context, c *Client, passphrase []byte, ks *e2ee.Keystore, opts ...SessionOption) (*Session, error) {
	s := &Session{
		client:   c,
		peerKeys: make(map[uuid.UUID]*e2ee.PublicKey),
		keyBits:  e2ee.DefaultKeyBits,
		keystore: ks,
	}
	for _, opt := range opts {
		opt(s)
	}

	rec, err := c.OwnKeys(ctx)
	switch {
	case err == nil:
		return s.unlock(rec, passphrase)
	case errors.Is(err, ErrNoKeyRecord):
	default:
		return nil, fmt.Errorf("fetch own keys: %w", err)
	}

	kp, err := e2ee.GenerateKeyPair(s.keyBits)
	if err != nil {
		return nil, err
	}
	wrapped, err := ks.Wrap(kp.Private, passphrase)
	if err != nil {
		kp.Private.Destroy()
		return nil, fmt.Errorf("wrap private key: %w", err)
	}
	pubEnc, err := kp.Public.Encode()
	if err != nil {
		kp.Private.Destroy()
		return nil, err
	}

	rec, err = c.ProvisionKeys(ctx, pubEnc, wrapped)
	if errors.Is(err, ErrKeyConflict) {
		kp.Private.Destroy()
		rec, err = c.OwnKeys(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch keys after conflict: %w", err)
		}
		return s.unlock(rec, passphrase)
	}
	if err != nil {
		kp.Private.Destroy()
		return nil, fmt.Errorf("provision keys: %w", err)
	}
	userID, err := uuid.Parse(rec.UserID)
	if err != nil {
		kp.Private.Destroy()
		return nil, fmt.Errorf("provisioned record has invalid user id: %w", err)
	}
	s.userID, s.priv, s.pub = userID, kp.Private, kp.Public
	return s, nil
}

func (s *Session) unlock(rec *KeyRecord, passphrase []byte) (*Session, error) {
	userID, err := uuid.Parse(rec.UserID)
	if err != nil {
		return nil, fmt.Errorf("key record has invalid user id: %w", err)
	}
	published, err := e2ee.ParsePublicKey(rec.PublicKey)
	if err != nil {
		return nil, err
	}
	priv, err := s.keystore.Unwrap(rec.EncryptedPrivateKey, passphrase)
	if err != nil {
		return nil, err
	}
	derived, err := priv.Public()
	if err != nil {
		priv.Destroy()
		return nil, err
	}
	if !derived.Equal(published) {
		priv.Destroy()
		return nil, ErrKeyRecordMismatch
	}
	s.userID, s.priv, s.pub = userID, priv, published
	return s, nil
}

func (s *Session) UserID() uuid.UUID { return s.userID }

func (s *Session) Client() *Client { return s.client }

// Close destroys the in-memory private key. The session is unusable after.
func (s *Session) Close() {
	s.priv.Destroy()
}

func (s *Session) peerKey(ctx context.Context, peer uuid.UUID) (*e2ee.PublicKey, error) {
	s.mu.Lock()
	pub, ok := s.peerKeys[peer]
	s.mu.Unlock()
	if ok {
		return pub, nil
	}
	enc, err := s.client.PublicKey(ctx, peer)
	if err != nil {
		return nil, err
	}
	pub, err = e2ee.ParsePublicKey(enc)
	if err != nil {
		return nil, fmt.Errorf("peer %s public key: %w", peer, err)
	}
	s.mu.Lock()
	s.peerKeys[peer] = pub
	s.mu.Unlock()
	return pub, nil
}

// Send encrypts plaintext for peer and for this session's own key, then posts
// both copies.
func (s *Session) Send(ctx context.Context, peer uuid.UUID, plaintext []byte) (*Message, error) {
	if s.priv.Destroyed() {
		return nil, e2ee.ErrKeyDestroyed
	}
	peerPub, err := s.peerKey(ctx, peer)
	if err != nil {
		return nil, err
	}
	sealed, err := e2ee.SealDual(plaintext, peerPub, s.pub)
	if err != nil {
		return nil, err
	}
	sender := ciphertextOf(sealed.Sender)
	return s.client.Send(ctx, SendRequest{
		RecipientID:         peer.String(),
		RecipientCiphertext: ciphertextOf(sealed.Recipient),
		SenderCiphertext:    &sender,
	})
}

// Read fetches a history page and decrypts each message independently.
func (s *Session) Read(ctx context.Context, convID uuid.UUID, page, pageSize int) ([]Decrypted, error) {
	resp, err := s.client.Messages(ctx, convID, page, pageSize)
	if err != nil {
		return nil, err
	}
	out := make([]Decrypted, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		out = append(out, s.Decrypt(m))
	}
	return out, nil
}

// Decrypt opens the copy of m addressed to this session. Messages this user
// sent before dual encryption existed fail with e2ee.ErrSenderCopyMissing.
func (s *Session) Decrypt(m Message) Decrypted {
	role := e2ee.RoleRecipient
	if m.SenderID == s.userID.String() {
		role = e2ee.RoleSender
	}
	d := Decrypted{Message: m, Role: role}
	d.Plaintext, d.Err = e2ee.Open(envelopeOf(m), role, s.priv)
	return d
}

func ciphertextOf(t e2ee.Triple) Ciphertext {
	return Ciphertext{Content: t.Content, WrappedKey: t.WrappedKey, IV: t.IV}
}

func tripleOf(c Ciphertext) e2ee.Triple {
	return e2ee.Triple{Content: c.Content, WrappedKey: c.WrappedKey, IV: c.IV}
}

func envelopeOf(m Message) e2ee.Envelope {
	recipient := tripleOf(m.RecipientCiphertext)
	if m.SenderCiphertext == nil {
		return e2ee.NewEnvelope(recipient, nil)
	}
	sender := tripleOf(*m.SenderCiphertext)
	return e2ee.NewEnvelope(recipient, &sender)
}
