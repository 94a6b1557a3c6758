package e2ee

import (
	"crypto/aes"
	"crypto/cipher"
)

const (
	// KeySize is the AES-256 key length.
	KeySize = 32
	// IVSize is the GCM nonce length.
	IVSize = 12
)

// Encrypt seals plaintext with AES-256-GCM. When key is nil a fresh random
// key is generated; the IV is always fresh, so a key and IV pair is never
// used twice.
func Encrypt(plaintext, key []byte) (ciphertext, usedKey, iv []byte, err error) {
	if key == nil {
		key = make([]byte, KeySize)
		if err := readRandom(key); err != nil {
			return nil, nil, nil, err
		}
	} else {
		if len(key) != KeySize {
			return nil, nil, nil, ErrInvalidKey
		}
		key = append([]byte(nil), key...)
	}
	aead, err := newGCM(key)
	if err != nil {
		return nil, nil, nil, err
	}
	iv = make([]byte, IVSize)
	if err := readRandom(iv); err != nil {
		return nil, nil, nil, err
	}
	ciphertext = aead.Seal(nil, iv, plaintext, nil)
	return ciphertext, key, iv, nil
}

// Decrypt opens a ciphertext produced by Encrypt. Every failure, including a
// malformed key or IV, surfaces as ErrAuthenticationFailed.
func Decrypt(ciphertext, key, iv []byte) ([]byte, error) {
	if len(key) != KeySize || len(iv) != IVSize {
		return nil, ErrAuthenticationFailed
	}
	aead, err := newGCM(key)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	plaintext, err := aead.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
