package e2ee

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"math/big"
	"sync"
)

const (
	DefaultKeyBits = 2048
	MinKeyBits     = 2048
)

// KeyPair is a freshly generated key pair. Private holds the only plaintext
// copy of the private key and must be wrapped before it leaves the process.
type KeyPair struct {
	Public  *PublicKey
	Private *PrivateKey
}

// GenerateKeyPair creates an RSA key pair for key wrapping. bits of zero
// selects DefaultKeyBits.
func GenerateKeyPair(bits int) (*KeyPair, error) {
	if bits == 0 {
		bits = DefaultKeyBits
	}
	if bits < MinKeyBits {
		return nil, fmt.Errorf("%w: %d bits is below the %d-bit minimum", ErrKeyGeneration, bits, MinKeyBits)
	}
	priv, err := rsa.GenerateKey(sourceReader{}, bits)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}
	pub := priv.PublicKey
	return &KeyPair{
		Public:  &PublicKey{key: &pub},
		Private: newPrivateKey(priv),
	}, nil
}

// PublicKey is the shareable half of a key pair.
type PublicKey struct {
	key *rsa.PublicKey
}

// Encode renders the key as base64 PKIX (SPKI) DER.
func (p *PublicKey) Encode() (string, error) {
	if p == nil || p.key == nil {
		return "", ErrInvalidKey
	}
	der, err := x509.MarshalPKIXPublicKey(p.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// Bits reports the modulus size.
func (p *PublicKey) Bits() int {
	if p == nil || p.key == nil {
		return 0
	}
	return p.key.N.BitLen()
}

// Equal reports whether both keys carry the same RSA public key.
func (p *PublicKey) Equal(other *PublicKey) bool {
	if p == nil || other == nil || p.key == nil || other.key == nil {
		return false
	}
	return p.key.Equal(other.key)
}

// ParsePublicKey decodes a key produced by Encode.
func ParsePublicKey(encoded string) (*PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: public key is not base64", ErrInvalidKey)
	}
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported public key type %T", ErrInvalidKey, parsed)
	}
	if key.N.BitLen() < MinKeyBits {
		return nil, fmt.Errorf("%w: %d-bit key is below the minimum", ErrInvalidKey, key.N.BitLen())
	}
	return &PublicKey{key: key}, nil
}

// PrivateKey is a capability over unwrapped private key material. Access is
// scoped through the package's decrypt and wrap operations; after Destroy
// every use fails with ErrKeyDestroyed.
type PrivateKey struct {
	mu  sync.Mutex
	key *rsa.PrivateKey
}

func newPrivateKey(key *rsa.PrivateKey) *PrivateKey {
	key.Precompute()
	return &PrivateKey{key: key}
}

func (k *PrivateKey) use(fn func(*rsa.PrivateKey) error) error {
	if k == nil {
		return ErrKeyDestroyed
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.key == nil {
		return ErrKeyDestroyed
	}
	return fn(k.key)
}

// Public returns the matching public key.
func (k *PrivateKey) Public() (*PublicKey, error) {
	var pub *PublicKey
	err := k.use(func(priv *rsa.PrivateKey) error {
		cp := rsa.PublicKey{N: new(big.Int).Set(priv.N), E: priv.E}
		pub = &PublicKey{key: &cp}
		return nil
	})
	return pub, err
}

// Destroyed reports whether Destroy has run.
func (k *PrivateKey) Destroyed() bool {
	if k == nil {
		return true
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.key == nil
}

// Destroy zeroes the private exponent, primes and CRT values and drops the
// key. Zeroing is best effort: crypto/rsa keeps its own unexported copies of
// the moduli in Precomputed, which are released to the garbage collector but
// not wiped. It is safe to call more than once.
func (k *PrivateKey) Destroy() {
	if k == nil {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.key == nil {
		return
	}
	wipeInt(k.key.D)
	for _, p := range k.key.Primes {
		wipeInt(p)
	}
	wipeInt(k.key.Precomputed.Dp)
	wipeInt(k.key.Precomputed.Dq)
	wipeInt(k.key.Precomputed.Qinv)
	for i := range k.key.Precomputed.CRTValues {
		wipeInt(k.key.Precomputed.CRTValues[i].Exp)
		wipeInt(k.key.Precomputed.CRTValues[i].Coeff)
		wipeInt(k.key.Precomputed.CRTValues[i].R)
	}
	k.key = nil
}

func wipeInt(x *big.Int) {
	if x == nil {
		return
	}
	words := x.Bits()
	for i := range words {
		words[i] = 0
	}
	x.SetInt64(0)
}
