package testutil

import (
	"fmt"

	"github.com/hamba/avro/v2"

	"github.com/chhavsingh/180protocol/crypto"
	"github.com/chhavsingh/180protocol/protocol"
	"github.com/chhavsingh/180protocol/schema"
)

// Party is a registered data party with its own channel.
type Party struct {
	Role    protocol.Role
	Channel *crypto.Channel
}

// NewParty generates a fresh identity for role.
func NewParty(role protocol.Role) (*Party, error) {
	_, sk, err := crypto.GenerateExchangeKey()
	if err != nil {
		return nil, err
	}
	ch, err := crypto.NewChannel(sk)
	if err != nil {
		return nil, err
	}
	return &Party{Role: role, Channel: ch}, nil
}

// PublicKey returns the party identity.
func (p *Party) PublicKey() crypto.PublicKey {
	return p.Channel.PublicKey()
}

// Coalition is the reference party set: providers, one consumer and one
// provenance auditor.
type Coalition struct {
	Providers  []*Party
	Consumer   *Party
	Provenance *Party
}

// NewCoalition generates a coalition with the given number of providers.
func NewCoalition(providers int) (*Coalition, error) {
	c := &Coalition{}
	for i := 0; i < providers; i++ {
		p, err := NewParty(protocol.RoleProvider)
		if err != nil {
			return nil, err
		}
		c.Providers = append(c.Providers, p)
	}

	var err error
	if c.Consumer, err = NewParty(protocol.RoleConsumer); err != nil {
		return nil, err
	}
	if c.Provenance, err = NewParty(protocol.RoleProvenance); err != nil {
		return nil, err
	}
	return c, nil
}

// Parties lists providers first, then the consumer and the provenance auditor.
func (c *Coalition) Parties() []*Party {
	all := append([]*Party{}, c.Providers...)
	return append(all, c.Consumer, c.Provenance)
}

// SchemaMail frames an envelope as a schema mail.
func SchemaMail(seq uint64, envelope string) *protocol.Mail {
	return &protocol.Mail{Sequence: seq, Kind: protocol.KindSchema, Payload: []byte(envelope)}
}

// IdentityRecords builds identity records for parties under set.
func IdentityRecords(set *schema.Set, parties ...*Party) []schema.Record {
	keyField, roleField := set.IdentityFields()
	records := make([]schema.Record, len(parties))
	for i, p := range parties {
		records[i] = schema.Record{
			keyField:  p.PublicKey().Base64(),
			roleField: string(p.Role),
		}
	}
	return records
}

// IdentityMail encodes an identity batch for parties.
func IdentityMail(seq uint64, set *schema.Set, parties ...*Party) (*protocol.Mail, error) {
	payload, err := schema.NewAvroCodec().Encode(IdentityRecords(set, parties...), set.Identity)
	if err != nil {
		return nil, err
	}
	return &protocol.Mail{Sequence: seq, Kind: protocol.KindIdentity, Payload: payload}, nil
}

// ClientMail seals body from p to the enclave identity.
func ClientMail(seq uint64, p *Party, enclave crypto.PublicKey, body []byte) (*protocol.Mail, error) {
	envelope, err := p.Channel.EncryptFor(enclave, body)
	if err != nil {
		return nil, err
	}
	return &protocol.Mail{Sequence: seq, Kind: protocol.KindClient, Payload: envelope}, nil
}

// ProviderMail encodes records under the input schema and seals them.
func ProviderMail(seq uint64, p *Party, enclave crypto.PublicKey, set *schema.Set, records []schema.Record) (*protocol.Mail, error) {
	body, err := schema.NewAvroCodec().Encode(records, set.Input)
	if err != nil {
		return nil, err
	}
	return ClientMail(seq, p, enclave, body)
}

// OpenReply decrypts a reply addressed to p and decodes it under s.
func OpenReply(p *Party, reply *protocol.Reply, s *avro.RecordSchema) ([]schema.Record, error) {
	if !reply.Recipient.Equal(p.PublicKey()) {
		return nil, fmt.Errorf("reply addressed to %s", reply.Recipient)
	}
	_, body, err := p.Channel.Decrypt(reply.Ciphertext)
	if err != nil {
		return nil, err
	}
	return schema.NewAvroCodec().Decode(body, s)
}
