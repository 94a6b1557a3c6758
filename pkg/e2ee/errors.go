package e2ee

import "errors"

var (
	// ErrKeyGeneration is fatal for the operation that triggered it.
	ErrKeyGeneration = errors.New("e2ee: key generation failed")
	ErrInvalidKey    = errors.New("e2ee: invalid key material")

	// ErrKeyMismatch means the wrapped key was not addressed to the key used.
	ErrKeyMismatch = errors.New("e2ee: ciphertext not addressed to this key")
	// ErrAuthenticationFailed covers wrong key, corrupted data and tampering alike.
	ErrAuthenticationFailed = errors.New("e2ee: message authentication failed")
	// ErrSenderCopyMissing is returned when a sender reads a legacy message
	// that only carries the recipient-addressed ciphertext.
	ErrSenderCopyMissing = errors.New("e2ee: message has no sender-addressed copy")

	ErrKeyDestroyed        = errors.New("e2ee: private key destroyed")
	ErrEmptyPassphrase     = errors.New("e2ee: empty passphrase")
	ErrWrongPassphrase     = errors.New("e2ee: wrong passphrase")
	ErrMalformedWrappedKey = errors.New("e2ee: malformed wrapped private key")
)
