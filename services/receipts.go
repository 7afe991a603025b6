package services

import (
	"context"
	"encoding/hex"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"

	"github.com/chhavsingh/180protocol/crypto"
	"github.com/chhavsingh/180protocol/protocol"
)

// ErrReceiptNotFound is returned when no receipt has the requested id.
var ErrReceiptNotFound = errors.New("receipt not found")

// DeliveryReceipt records one encrypted reply handed to the host. The host
// signs it so recipients can prove what the enclave released and when.
type DeliveryReceipt struct {
	ID              string        `json:"id"`
	Sequence        uint64        `json:"sequence"`
	Recipient       string        `json:"recipient"`
	Role            protocol.Role `json:"role"`
	DataType        string        `json:"data_type"`
	CycleID         string        `json:"cycle_id"`
	Topic           string        `json:"topic"`
	OutputDigest    string        `json:"output_digest"`
	EncryptedOutput []byte        `json:"encrypted_output"`
	Attestation     []byte        `json:"attestation,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}

// OutputDigest is the hex SHA3-256 of an encrypted output.
func OutputDigest(ciphertext []byte) string {
	sum := sha3.Sum256(ciphertext)
	return hex.EncodeToString(sum[:])
}

// NewReceipt builds and signs the receipt for reply.
func NewReceipt(signingKey crypto.PrivateKey, seq uint64, topic string, attestation []byte, reply *protocol.Reply) (*protocol.Signed[DeliveryReceipt], error) {
	r := &DeliveryReceipt{
		ID:              uuid.NewString(),
		Sequence:        seq,
		Recipient:       reply.Recipient.Base64(),
		Role:            reply.Role,
		DataType:        reply.DataType,
		CycleID:         reply.CycleID,
		Topic:           topic,
		OutputDigest:    OutputDigest(reply.Ciphertext),
		EncryptedOutput: reply.Ciphertext,
		Attestation:     attestation,
		// Microsecond precision survives a round trip through postgres.
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	return protocol.NewSigned(signingKey, r)
}

// VerifyReceipt checks the signature and the output digest of a receipt.
func VerifyReceipt(signed *protocol.Signed[DeliveryReceipt], host crypto.PublicKey) (*DeliveryReceipt, error) {
	r, signer, err := signed.Recover()
	if err != nil {
		return nil, err
	}
	if host != nil && !signer.Equal(host) {
		return nil, errors.New("receipt signed by another host")
	}
	if OutputDigest(r.EncryptedOutput) != r.OutputDigest {
		return nil, errors.New("output digest mismatch")
	}
	return r, nil
}

// ReceiptStore persists signed delivery receipts.
type ReceiptStore interface {
	SaveReceipt(ctx context.Context, r *protocol.Signed[DeliveryReceipt]) error
	LoadReceipt(ctx context.Context, id string) (*protocol.Signed[DeliveryReceipt], error)
	ListReceipts(ctx context.Context) ([]*protocol.Signed[DeliveryReceipt], error)
	Close() error
}

// InMemoryStore implements ReceiptStore without persistence.
type InMemoryStore struct {
	mu       sync.RWMutex
	receipts map[string]*protocol.Signed[DeliveryReceipt]
}

// NewInMemoryStore creates an in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		receipts: make(map[string]*protocol.Signed[DeliveryReceipt]),
	}
}

// SaveReceipt stores a receipt in memory.
func (s *InMemoryStore) SaveReceipt(_ context.Context, r *protocol.Signed[DeliveryReceipt]) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts[r.Object.ID] = r
	return nil
}

// LoadReceipt returns the receipt with id.
func (s *InMemoryStore) LoadReceipt(_ context.Context, id string) (*protocol.Signed[DeliveryReceipt], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.receipts[id]
	if !ok {
		return nil, ErrReceiptNotFound
	}
	return r, nil
}

// ListReceipts returns all receipts, oldest first.
func (s *InMemoryStore) ListReceipts(_ context.Context) ([]*protocol.Signed[DeliveryReceipt], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*protocol.Signed[DeliveryReceipt], 0, len(s.receipts))
	for _, r := range s.receipts {
		out = append(out, r)
	}
	sortReceipts(out)
	return out, nil
}

// Close is a no-op.
func (s *InMemoryStore) Close() error {
	return nil
}

func sortReceipts(rs []*protocol.Signed[DeliveryReceipt]) {
	sort.SliceStable(rs, func(i, j int) bool {
		a, b := rs[i].Object, rs[j].Object
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.Sequence < b.Sequence
	})
}
