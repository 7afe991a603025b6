package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/chhavsingh/180protocol/crypto"
)

// Kind is the host-supplied hint describing how a mail payload is framed.
type Kind string

const (
	KindSchema   Kind = "schema"
	KindIdentity Kind = "identity"
	KindClient   Kind = "client"
)

// Valid returns true if the kind is recognized.
func (k Kind) Valid() bool {
	switch k {
	case KindSchema, KindIdentity, KindClient:
		return true
	}
	return false
}

// Role is the declared role of a registered identity.
type Role string

const (
	RoleProvider   Role = "provider"
	RoleConsumer   Role = "consumer"
	RoleProvenance Role = "provenance"
)

// Valid returns true if the role is recognized.
func (r Role) Valid() bool {
	switch r {
	case RoleProvider, RoleConsumer, RoleProvenance:
		return true
	}
	return false
}

// ParseRole validates a role string from an identity batch.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Mail is one inbound message for the enclave.
// Schema and identity payloads travel in clear. Client payloads are sealed
// envelopes produced by crypto.Channel.
type Mail struct {
	Sequence uint64 `json:"sequence"`
	Kind     Kind   `json:"kind"`
	Payload  []byte `json:"payload"`
}

// Reply is an encrypted output addressed to the consumer or provenance
// identity whose request produced it.
type Reply struct {
	Recipient  crypto.PublicKey `json:"recipient"`
	Role       Role             `json:"role"`
	DataType   string           `json:"data_type"`
	CycleID    string           `json:"cycle_id"`
	Ciphertext []byte           `json:"ciphertext"`
}

// Signed provides authentication for host-published objects.
// Note: signature covers serialized object + public key to prevent substitution.
type Signed[T any] struct {
	PublicKey crypto.PublicKey `json:"public_key"`
	Signature crypto.Signature `json:"signature"`
	Object    *T               `json:"object"`
}

// NewSigned creates a signed message.
func NewSigned[T any](privkey crypto.PrivateKey, obj *T) (*Signed[T], error) {
	pubkey, err := privkey.PublicKey()
	if err != nil {
		return nil, err
	}

	serializedData, err := SerializeMessage(obj)
	if err != nil {
		return nil, err
	}

	signature, err := crypto.Sign(privkey, append(serializedData, pubkey...))
	if err != nil {
		return nil, err
	}

	return &Signed[T]{
		PublicKey: pubkey,
		Signature: signature,
		Object:    obj,
	}, nil
}

// UnsafeObject returns the object without signature verification.
func (s *Signed[T]) UnsafeObject() *T {
	return s.Object
}

// Recover verifies the signature and returns the object and signer's public key.
func (s *Signed[T]) Recover() (*T, crypto.PublicKey, error) {
	serializedData, err := SerializeMessage(s.Object)
	if err != nil {
		return nil, nil, err
	}

	ok := s.Signature.Verify(s.PublicKey, append(serializedData, s.PublicKey...))
	if !ok {
		return nil, nil, errors.New("signature not valid")
	}

	return s.Object, s.PublicKey, nil
}

// UnmarshalMessage deserializes a message from JSON bytes.
func UnmarshalMessage[T any](data []byte) (*T, error) {
	var msg T
	err := json.Unmarshal(data, &msg)
	return &msg, err
}

// DecodeMessage deserializes a message from a JSON reader.
func DecodeMessage[T any](reader io.Reader) (*T, error) {
	var msg T
	err := json.NewDecoder(reader).Decode(&msg)
	return &msg, err
}

// SerializeMessage serializes a message to JSON bytes.
func SerializeMessage[T any](msg *T) ([]byte, error) {
	return json.Marshal(msg)
}
