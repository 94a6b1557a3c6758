package e2ee

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	wrapScheme  = "argon2id"
	wrapVersion = 1
	saltSize    = 16

	maxWrapTime      = 10
	maxWrapMemoryKiB = 1 << 20
)

// WrapParams are the argon2id cost parameters used to derive the wrapping key.
type WrapParams struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
}

// DefaultWrapParams follow the argon2id interactive recommendation.
var DefaultWrapParams = WrapParams{Time: 3, MemoryKiB: 64 * 1024, Threads: 4}

// Keystore wraps private keys under a passphrase so that only the owning
// client can recover them. The wrapped form is
//
//	argon2id$v=1$t=<time>,m=<memKiB>,p=<threads>$<salt>$<nonce>$<ciphertext>
//
// with raw base64url segments and XChaCha20-Poly1305 over the PKCS#8 DER.
// The header up to the salt is bound as associated data.
type Keystore struct {
	params WrapParams
}

// NewKeystore returns a Keystore that wraps with params. Zero fields fall
// back to DefaultWrapParams.
func NewKeystore(params WrapParams) *Keystore {
	if params.Time == 0 {
		params.Time = DefaultWrapParams.Time
	}
	if params.MemoryKiB == 0 {
		params.MemoryKiB = DefaultWrapParams.MemoryKiB
	}
	if params.Threads == 0 {
		params.Threads = DefaultWrapParams.Threads
	}
	return &Keystore{params: params}
}

// Wrap seals priv under passphrase.
func (ks *Keystore) Wrap(priv *PrivateKey, passphrase []byte) (string, error) {
	if len(passphrase) == 0 {
		return "", ErrEmptyPassphrase
	}
	var der []byte
	err := priv.use(func(k *rsa.PrivateKey) error {
		var merr error
		der, merr = x509.MarshalPKCS8PrivateKey(k)
		return merr
	})
	if err != nil {
		return "", err
	}
	defer wipe(der)

	salt := make([]byte, saltSize)
	if err := readRandom(salt); err != nil {
		return "", err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if err := readRandom(nonce); err != nil {
		return "", err
	}
	kek := ks.params.derive(passphrase, salt)
	defer wipe(kek)
	aead, err := chacha20poly1305.NewX(kek)
	if err != nil {
		return "", err
	}
	header := ks.params.header()
	sealed := aead.Seal(nil, nonce, der, []byte(header))
	enc := base64.RawURLEncoding
	return strings.Join([]string{header, enc.EncodeToString(salt), enc.EncodeToString(nonce), enc.EncodeToString(sealed)}, "$"), nil
}

// Unwrap recovers the private key. The cost parameters are read from the
// wrapped form, not from the Keystore, so keys wrapped under older settings
// stay readable.
func (ks *Keystore) Unwrap(wrapped string, passphrase []byte) (*PrivateKey, error) {
	if len(passphrase) == 0 {
		return nil, ErrEmptyPassphrase
	}
	params, header, salt, nonce, sealed, err := parseWrapped(wrapped)
	if err != nil {
		return nil, err
	}
	kek := params.derive(passphrase, salt)
	defer wipe(kek)
	aead, err := chacha20poly1305.NewX(kek)
	if err != nil {
		return nil, err
	}
	der, err := aead.Open(nil, nonce, sealed, []byte(header))
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	defer wipe(der)
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedWrappedKey, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported key type %T", ErrMalformedWrappedKey, parsed)
	}
	return newPrivateKey(key), nil
}

// WithUnwrapped unwraps the key, hands it to fn and destroys it afterwards.
func (ks *Keystore) WithUnwrapped(wrapped string, passphrase []byte, fn func(*PrivateKey) error) error {
	priv, err := ks.Unwrap(wrapped, passphrase)
	if err != nil {
		return err
	}
	defer priv.Destroy()
	return fn(priv)
}

func (p WrapParams) derive(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, p.Time, p.MemoryKiB, p.Threads, chacha20poly1305.KeySize)
}

func (p WrapParams) header() string {
	return fmt.Sprintf("%s$v=%d$t=%d,m=%d,p=%d", wrapScheme, wrapVersion, p.Time, p.MemoryKiB, p.Threads)
}

func parseWrapped(wrapped string) (params WrapParams, header string, salt, nonce, sealed []byte, err error) {
	parts := strings.Split(wrapped, "$")
	if len(parts) != 6 || parts[0] != wrapScheme {
		return params, "", nil, nil, nil, ErrMalformedWrappedKey
	}
	var version int
	if _, serr := fmt.Sscanf(parts[1], "v=%d", &version); serr != nil || version != wrapVersion {
		return params, "", nil, nil, nil, fmt.Errorf("%w: unsupported version %q", ErrMalformedWrappedKey, parts[1])
	}
	var threads uint32
	if _, serr := fmt.Sscanf(parts[2], "t=%d,m=%d,p=%d", &params.Time, &params.MemoryKiB, &threads); serr != nil {
		return params, "", nil, nil, nil, fmt.Errorf("%w: bad parameters", ErrMalformedWrappedKey)
	}
	if params.Time == 0 || params.Time > maxWrapTime || params.MemoryKiB == 0 || params.MemoryKiB > maxWrapMemoryKiB || threads == 0 || threads > 255 {
		return params, "", nil, nil, nil, fmt.Errorf("%w: parameters out of range", ErrMalformedWrappedKey)
	}
	params.Threads = uint8(threads)
	header = strings.Join(parts[:3], "$")

	enc := base64.RawURLEncoding
	if salt, err = enc.DecodeString(parts[3]); err != nil || len(salt) != saltSize {
		return params, "", nil, nil, nil, errors.Join(ErrMalformedWrappedKey, err)
	}
	if nonce, err = enc.DecodeString(parts[4]); err != nil || len(nonce) != chacha20poly1305.NonceSizeX {
		return params, "", nil, nil, nil, errors.Join(ErrMalformedWrappedKey, err)
	}
	if sealed, err = enc.DecodeString(parts[5]); err != nil || len(sealed) == 0 {
		return params, "", nil, nil, nil, errors.Join(ErrMalformedWrappedKey, err)
	}
	return params, header, salt, nonce, sealed, nil
}
