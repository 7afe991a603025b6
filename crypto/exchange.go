package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"
)

// ExchangeKeySize is the length of X25519 public and private keys.
const ExchangeKeySize = curve25519.ScalarSize

// ExchangePrivateKey is an X25519 private key. Every party, including the
// enclave, holds one; the matching public key is the party's identity.
type ExchangePrivateKey [ExchangeKeySize]byte

// GenerateExchangeKey generates a new X25519 key pair.
func GenerateExchangeKey() (PublicKey, ExchangePrivateKey, error) {
	var sk ExchangePrivateKey
	if _, err := rand.Read(sk[:]); err != nil {
		return nil, sk, err
	}

	pk, err := sk.PublicKey()
	if err != nil {
		return nil, sk, err
	}
	return pk, sk, nil
}

// NewExchangePrivateKeyFromString parses a hex-encoded X25519 private key.
func NewExchangePrivateKeyFromString(data string) (ExchangePrivateKey, error) {
	var sk ExchangePrivateKey
	raw, err := hex.DecodeString(data)
	if err != nil {
		return sk, err
	}
	if len(raw) != ExchangeKeySize {
		return sk, fmt.Errorf("exchange key must be %d bytes, got %d", ExchangeKeySize, len(raw))
	}
	copy(sk[:], raw)
	return sk, nil
}

// PublicKey returns the X25519 public key for sk.
func (sk ExchangePrivateKey) PublicKey() (PublicKey, error) {
	pk, err := curve25519.X25519(sk[:], curve25519.Basepoint)
	if err != nil {
		return nil, err
	}
	return PublicKey(pk), nil
}

// String returns the hex encoding of the private key.
func (sk ExchangePrivateKey) String() string {
	return hex.EncodeToString(sk[:])
}

// DeriveSharedSecret performs X25519 key agreement and derives a 32-byte key
// with HKDF-SHA3-256.
func DeriveSharedSecret(privateKey ExchangePrivateKey, publicKey PublicKey, info []byte) (SharedKey, error) {
	if len(publicKey) != ExchangeKeySize {
		return nil, errors.New("invalid exchange public key size")
	}

	// X25519 rejects low-order points with an all-zero output.
	sharedPoint, err := curve25519.X25519(privateKey[:], publicKey)
	if err != nil {
		return nil, fmt.Errorf("key agreement: %w", err)
	}

	kdf := hkdf.New(sha3.New256, sharedPoint, nil, info)
	secret := make([]byte, 32)
	if _, err := kdf.Read(secret); err != nil {
		return nil, err
	}

	return SharedKey(secret), nil
}
