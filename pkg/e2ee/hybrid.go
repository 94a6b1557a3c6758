package e2ee

import (
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

// Triple is one hybrid ciphertext addressed to a single public key. All
// fields are base64 (standard encoding) and opaque to the relay.
type Triple struct {
	Content    string `json:"content"`
	WrappedKey string `json:"wrappedKey"`
	IV         string `json:"iv"`
}

// IsZero reports whether no field is set.
func (t Triple) IsZero() bool {
	return t.Content == "" && t.WrappedKey == "" && t.IV == ""
}

// Complete reports whether every field is set.
func (t Triple) Complete() bool {
	return t.Content != "" && t.WrappedKey != "" && t.IV != ""
}

// Size is the total encoded length, used for metrics only.
func (t Triple) Size() int {
	return len(t.Content) + len(t.WrappedKey) + len(t.IV)
}

// EncryptFor encrypts plaintext under a fresh symmetric key and wraps that
// key for recipient with RSA-OAEP (SHA-256).
func EncryptFor(plaintext []byte, recipient *PublicKey) (Triple, error) {
	if recipient == nil || recipient.key == nil {
		return Triple{}, ErrInvalidKey
	}
	ciphertext, key, iv, err := Encrypt(plaintext, nil)
	if err != nil {
		return Triple{}, err
	}
	defer wipe(key)
	wrapped, err := rsa.EncryptOAEP(sha256.New(), sourceReader{}, recipient.key, key, nil)
	if err != nil {
		return Triple{}, err
	}
	return Triple{
		Content:    base64.StdEncoding.EncodeToString(ciphertext),
		WrappedKey: base64.StdEncoding.EncodeToString(wrapped),
		IV:         base64.StdEncoding.EncodeToString(iv),
	}, nil
}

// DecryptWith unwraps the symmetric key with priv and opens the content.
// Unwrap failures return ErrKeyMismatch; content failures return
// ErrAuthenticationFailed.
func DecryptWith(t Triple, priv *PrivateKey) ([]byte, error) {
	wrapped, err := base64.StdEncoding.DecodeString(t.WrappedKey)
	if err != nil || len(wrapped) == 0 {
		return nil, ErrKeyMismatch
	}
	var key []byte
	err = priv.use(func(k *rsa.PrivateKey) error {
		var derr error
		key, derr = rsa.DecryptOAEP(sha256.New(), sourceReader{}, k, wrapped, nil)
		return derr
	})
	if err != nil {
		if errors.Is(err, ErrKeyDestroyed) {
			return nil, err
		}
		return nil, ErrKeyMismatch
	}
	defer wipe(key)
	if len(key) != KeySize {
		return nil, ErrKeyMismatch
	}
	content, err := base64.StdEncoding.DecodeString(t.Content)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	iv, err := base64.StdEncoding.DecodeString(t.IV)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return Decrypt(content, key, iv)
}
