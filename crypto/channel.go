package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
)

// ChannelInfo is the HKDF info string binding derived keys to mail sealing.
var ChannelInfo = []byte("180protocol-mail-v1")

var (
	ErrEnvelopeTooShort = errors.New("sealed envelope too short")
	ErrOpenFailed       = errors.New("sealed envelope authentication failed")
)

// Sealed is an encrypted mail body.
// Format: sender pubkey (32 bytes) || nonce (24 bytes) || ciphertext+tag
type Sealed struct {
	Sender     PublicKey
	Nonce      []byte
	Ciphertext []byte
}

// Bytes serializes the envelope.
func (m *Sealed) Bytes() []byte {
	result := make([]byte, 0, len(m.Sender)+len(m.Nonce)+len(m.Ciphertext))
	result = append(result, m.Sender...)
	result = append(result, m.Nonce...)
	result = append(result, m.Ciphertext...)
	return result
}

// ParseSealed splits a serialized envelope into its parts.
func ParseSealed(data []byte) (*Sealed, error) {
	minLen := ExchangeKeySize + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead
	if len(data) < minLen {
		return nil, ErrEnvelopeTooShort
	}

	return &Sealed{
		Sender:     NewPublicKeyFromBytes(data[:ExchangeKeySize]),
		Nonce:      data[ExchangeKeySize : ExchangeKeySize+chacha20poly1305.NonceSizeX],
		Ciphertext: data[ExchangeKeySize+chacha20poly1305.NonceSizeX:],
	}, nil
}

// Channel seals and opens mail between its owner and any peer identity.
// Keys come from static-static X25519 agreement, so the owner of either side
// derives the same key for a pair. Derived keys are cached per peer.
type Channel struct {
	priv ExchangePrivateKey
	pub  PublicKey

	mu   sync.Mutex
	keys map[string]SharedKey
}

// NewChannel creates a channel owned by priv.
func NewChannel(priv ExchangePrivateKey) (*Channel, error) {
	pub, err := priv.PublicKey()
	if err != nil {
		return nil, err
	}
	return &Channel{
		priv: priv,
		pub:  pub,
		keys: make(map[string]SharedKey),
	}, nil
}

// PublicKey returns the owner's identity.
func (c *Channel) PublicKey() PublicKey {
	return c.pub
}

func (c *Channel) keyFor(peer PublicKey) (SharedKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if key, ok := c.keys[peer.String()]; ok {
		return key, nil
	}

	key, err := DeriveSharedSecret(c.priv, peer, ChannelInfo)
	if err != nil {
		return nil, err
	}
	c.keys[peer.String()] = key
	return key, nil
}

// EncryptFor seals plaintext for recipient.
func (c *Channel) EncryptFor(recipient PublicKey, plaintext []byte) ([]byte, error) {
	key, err := c.keyFor(recipient)
	if err != nil {
		return nil, fmt.Errorf("deriving channel key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create AEAD: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	sealed := &Sealed{
		Sender:     c.pub,
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, plaintext, associatedData(c.pub, recipient)),
	}
	return sealed.Bytes(), nil
}

// Decrypt opens an envelope addressed to the owner and reveals its sender.
func (c *Channel) Decrypt(envelope []byte) (PublicKey, []byte, error) {
	sealed, err := ParseSealed(envelope)
	if err != nil {
		return nil, nil, err
	}

	key, err := c.keyFor(sealed.Sender)
	if err != nil {
		return nil, nil, fmt.Errorf("deriving channel key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, nil, fmt.Errorf("create AEAD: %w", err)
	}

	plaintext, err := aead.Open(nil, sealed.Nonce, sealed.Ciphertext, associatedData(sealed.Sender, c.pub))
	if err != nil {
		return nil, nil, ErrOpenFailed
	}

	return sealed.Sender, plaintext, nil
}

func associatedData(sender, recipient PublicKey) []byte {
	ad := make([]byte, 0, len(sender)+len(recipient))
	ad = append(ad, sender...)
	return append(ad, recipient...)
}
