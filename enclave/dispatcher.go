package enclave

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hamba/avro/v2"

	"github.com/chhavsingh/180protocol/aggregation"
	"github.com/chhavsingh/180protocol/crypto"
	"github.com/chhavsingh/180protocol/metrics"
	"github.com/chhavsingh/180protocol/protocol"
	"github.com/chhavsingh/180protocol/schema"
)

// SecureChannel seals replies for a party and opens envelopes sent by one.
// *crypto.Channel implements it.
type SecureChannel interface {
	EncryptFor(recipient crypto.PublicKey, plaintext []byte) ([]byte, error)
	Decrypt(envelope []byte) (crypto.PublicKey, []byte, error)
}

// Config wires the dispatcher to its collaborators.
type Config struct {
	Channel    SecureChannel
	Codec      schema.Codec
	Strategies *aggregation.Registry
	Log        *slog.Logger
}

// Status is a point-in-time summary safe to expose outside the enclave.
type Status struct {
	State        State         `json:"state"`
	CurrentRole  protocol.Role `json:"current_role,omitempty"`
	DataType     string        `json:"data_type,omitempty"`
	CycleID      string        `json:"cycle_id"`
	LastSequence uint64        `json:"last_sequence"`
	Identities   int           `json:"identities"`
	Providers    int           `json:"providers"`
}

// Dispatcher is the enclave state machine. It owns the schema set, the
// identity registry and the client data store for the lifetime of the
// enclave. It is not safe for concurrent use; the host serializes mail.
type Dispatcher struct {
	channel    SecureChannel
	codec      schema.Codec
	strategies *aggregation.Registry
	log        *slog.Logger

	state       State
	currentRole protocol.Role
	cycleID     string
	lastSeq     uint64
	seenMail    bool

	schemas    *schema.Set
	identities *IdentityRegistry
	store      *ClientDataStore
}

// NewDispatcher creates a dispatcher awaiting its schema.
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if cfg.Channel == nil {
		return nil, errors.New("enclave: secure channel is required")
	}
	if cfg.Strategies == nil {
		return nil, errors.New("enclave: strategy registry is required")
	}
	if cfg.Codec == nil {
		cfg.Codec = schema.NewAvroCodec()
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	return &Dispatcher{
		channel:    cfg.Channel,
		codec:      cfg.Codec,
		strategies: cfg.Strategies,
		log:        cfg.Log,
		state:      AwaitingSchema,
		cycleID:    uuid.NewString(),
		identities: NewIdentityRegistry(),
		store:      NewClientDataStore(),
	}, nil
}

// State returns the lifecycle state.
func (d *Dispatcher) State() State {
	return d.state
}

// CurrentRole returns the role of the last successfully processed client mail.
func (d *Dispatcher) CurrentRole() protocol.Role {
	return d.currentRole
}

// Schemas returns the registered schema set, or nil before the schema mail.
func (d *Dispatcher) Schemas() *schema.Set {
	return d.schemas
}

// Status summarizes the dispatcher without exposing any party data.
func (d *Dispatcher) Status() Status {
	st := Status{
		State:        d.state,
		CurrentRole:  d.currentRole,
		CycleID:      d.cycleID,
		LastSequence: d.lastSeq,
		Identities:   d.identities.Len(),
		Providers:    d.store.RawLen(),
	}
	if d.schemas != nil {
		st.DataType = d.schemas.DataType
	}
	return st
}

// ProcessMessage handles one inbound mail. It returns a reply only for
// consumer and provenance requests. On error the dispatcher is unchanged.
func (d *Dispatcher) ProcessMessage(mail *protocol.Mail) (*protocol.Reply, error) {
	if mail == nil {
		return nil, newError(KindInvalidPayload, "nil mail", nil)
	}
	start := time.Now()
	log := d.log.With("sequence", mail.Sequence, "kind", mail.Kind)

	reply, err := d.process(mail)
	metrics.RecordProcessing(string(mail.Kind), start)
	if err != nil {
		var e *Error
		if !errors.As(err, &e) {
			e = newError(KindInvalidPayload, "", err)
		}
		e.Sequence = mail.Sequence
		metrics.IncRejection(string(e.Kind))
		log.Warn("mail rejected", "state", d.state, "error", e)
		return nil, e
	}

	d.lastSeq = mail.Sequence
	d.seenMail = true
	metrics.IncMessage(string(mail.Kind))
	if reply != nil {
		metrics.IncReply(string(reply.Role))
	}
	log.Debug("mail processed", "state", d.state, "role", d.currentRole)
	return reply, nil
}

func (d *Dispatcher) process(mail *protocol.Mail) (*protocol.Reply, error) {
	if d.seenMail && mail.Sequence < d.lastSeq {
		return nil, newError(KindOutOfOrderMessage, fmt.Sprintf("sequence regressed from %d", d.lastSeq), nil)
	}

	switch mail.Kind {
	case protocol.KindSchema:
		return nil, d.handleSchema(mail.Payload)
	case protocol.KindIdentity:
		return nil, d.handleIdentities(mail.Payload)
	case protocol.KindClient:
		return d.handleClient(mail.Payload)
	}
	return nil, newError(KindInvalidPayload, fmt.Sprintf("unknown mail kind %q", mail.Kind), nil)
}

func (d *Dispatcher) handleSchema(payload []byte) error {
	if d.state != AwaitingSchema {
		return newError(KindSchemaAlreadySet, "", nil)
	}

	set, err := schema.ParseEnvelope(payload)
	if err != nil {
		return newError(KindMalformedSchema, "", err)
	}
	if _, err := d.strategies.Lookup(set.DataType); err != nil {
		// Requests will fail with UnsupportedDataType; registration still succeeds.
		d.log.Warn("no strategy for data type", "data_type", set.DataType)
	}

	d.schemas = set
	d.state = AwaitingIdentities
	d.log.Info("schema registered", "data_type", set.DataType)
	return nil
}

func (d *Dispatcher) handleIdentities(payload []byte) error {
	if d.state == AwaitingSchema {
		return newError(KindOutOfOrderMessage, "identities before schema", nil)
	}

	batch, err := d.decodeIdentities(payload)
	if err != nil {
		return err
	}
	if err := d.identities.RegisterBatch(batch); err != nil {
		return err
	}

	if d.state == AwaitingIdentities {
		d.state = AcceptingData
	}
	d.log.Info("identities registered",
		"added", len(batch),
		"providers", d.identities.CountRole(protocol.RoleProvider),
		"total", d.identities.Len(),
	)
	return nil
}

func (d *Dispatcher) decodeIdentities(payload []byte) ([]Identity, error) {
	records, err := d.codec.Decode(payload, d.schemas.Identity)
	if err != nil {
		return nil, newError(KindInvalidPayload, "identity batch", err)
	}
	if len(records) == 0 {
		return nil, newError(KindInvalidIdentity, "empty identity batch", nil)
	}

	keyField, roleField := d.schemas.IdentityFields()
	batch := make([]Identity, 0, len(records))
	for i, rec := range records {
		encoded, _ := rec[keyField].(string)
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil || len(raw) != crypto.ExchangeKeySize {
			return nil, newError(KindInvalidIdentity, fmt.Sprintf("record %d: bad public key", i), err)
		}
		roleName, _ := rec[roleField].(string)
		role, err := protocol.ParseRole(roleName)
		if err != nil {
			return nil, newError(KindInvalidIdentity, fmt.Sprintf("record %d", i), err)
		}
		batch = append(batch, Identity{PublicKey: crypto.NewPublicKeyFromBytes(raw), Role: role})
	}
	return batch, nil
}

func (d *Dispatcher) handleClient(payload []byte) (*protocol.Reply, error) {
	if d.state == AwaitingSchema || d.state == AwaitingIdentities {
		return nil, newError(KindOutOfOrderMessage, "client mail before identities", nil)
	}

	sender, body, err := d.channel.Decrypt(payload)
	if err != nil {
		return nil, newError(KindChannelFailure, "", err)
	}
	id, ok := d.identities.Lookup(sender)
	if !ok {
		return nil, newError(KindUnknownSender, sender.String(), nil)
	}

	switch id.Role {
	case protocol.RoleProvider:
		return nil, d.handleProvider(id, payload, body)
	case protocol.RoleConsumer:
		return d.handleConsumer(id)
	case protocol.RoleProvenance:
		return d.handleProvenance(id)
	}
	return nil, newError(KindUnknownSender, fmt.Sprintf("unhandled role %q", id.Role), nil)
}

func (d *Dispatcher) handleProvider(id Identity, envelope, body []byte) error {
	records, err := d.codec.Decode(body, d.schemas.Input)
	if err != nil {
		return newError(KindInvalidPayload, "provider data", err)
	}

	d.store.Put(id.PublicKey, envelope, records)
	d.currentRole = protocol.RoleProvider
	d.log.Info("provider data stored", "records", len(records), "providers", d.store.RawLen())
	return nil
}

func (d *Dispatcher) handleConsumer(id Identity) (*protocol.Reply, error) {
	strategy, err := d.strategy()
	if err != nil {
		return nil, err
	}

	aggregate, err := strategy.Aggregate(d.store.All(), d.schemas.AggregateOutput)
	if err != nil {
		return nil, classify(err)
	}
	reply, err := d.seal(id, []schema.Record{aggregate}, d.schemas.AggregateOutput)
	if err != nil {
		return nil, err
	}

	d.state = ServingRequests
	d.currentRole = protocol.RoleConsumer
	d.log.Info("aggregate served", "providers", d.store.RawLen())
	return reply, nil
}

func (d *Dispatcher) handleProvenance(id Identity) (*protocol.Reply, error) {
	strategy, err := d.strategy()
	if err != nil {
		return nil, err
	}

	all := d.store.All()
	providers := d.store.Providers()
	out := make([]schema.Record, 0, len(providers))
	for _, p := range providers {
		reward, err := strategy.Reward(d.store.Records(p), all, d.schemas.Rewards)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, schema.Record{
			d.schemas.ProvenanceKeyField: p.Base64(),
			d.schemas.RewardField:        map[string]any(reward),
		})
	}

	reply, err := d.seal(id, out, d.schemas.ProvenanceOutput)
	if err != nil {
		return nil, err
	}

	d.log.Info("provenance served, starting new cycle", "providers", len(providers), "cycle_id", d.cycleID)
	d.store.Reset()
	d.state = AcceptingData
	d.currentRole = protocol.RoleProvenance
	d.cycleID = uuid.NewString()
	return reply, nil
}

func (d *Dispatcher) strategy() (aggregation.Strategy, error) {
	if d.store.RawLen() == 0 {
		return nil, newError(KindNoData, "no provider data in this cycle", nil)
	}
	s, err := d.strategies.Lookup(d.schemas.DataType)
	if err != nil {
		return nil, classify(err)
	}
	return s, nil
}

func (d *Dispatcher) seal(id Identity, records []schema.Record, s *avro.RecordSchema) (*protocol.Reply, error) {
	body, err := d.codec.Encode(records, s)
	if err != nil {
		return nil, newError(KindInvalidPayload, "encode reply", err)
	}
	ciphertext, err := d.channel.EncryptFor(id.PublicKey, body)
	if err != nil {
		return nil, newError(KindChannelFailure, "seal reply", err)
	}
	return &protocol.Reply{
		Recipient:  id.PublicKey,
		Role:       id.Role,
		DataType:   d.schemas.DataType,
		CycleID:    d.cycleID,
		Ciphertext: ciphertext,
	}, nil
}

func classify(err error) *Error {
	switch {
	case errors.Is(err, aggregation.ErrDivisionByZero):
		return newError(KindDivisionByZero, "", err)
	case errors.Is(err, aggregation.ErrUnsupportedDataType):
		return newError(KindUnsupportedDataType, "", err)
	}
	return newError(KindInvalidPayload, "", err)
}
