package enclave

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chhavsingh/180protocol/aggregation"
	"github.com/chhavsingh/180protocol/crypto"
	"github.com/chhavsingh/180protocol/protocol"
	"github.com/chhavsingh/180protocol/schema"
	"github.com/chhavsingh/180protocol/testutil"
)

type harness struct {
	t         *testing.T
	d         *Dispatcher
	enclave   *crypto.Channel
	set       *schema.Set
	coalition *testutil.Coalition
	seq       uint64
}

func newHarness(t *testing.T, strategies *aggregation.Registry) *harness {
	t.Helper()

	_, sk, err := crypto.GenerateExchangeKey()
	require.NoError(t, err)
	ch, err := crypto.NewChannel(sk)
	require.NoError(t, err)

	if strategies == nil {
		strategies = aggregation.DefaultRegistry(aggregation.Options{Now: testutil.FixedClock})
	}
	d, err := NewDispatcher(Config{Channel: ch, Strategies: strategies})
	require.NoError(t, err)

	set, err := schema.ParseEnvelope([]byte(testutil.SalesEnvelope))
	require.NoError(t, err)
	coalition, err := testutil.NewCoalition(2)
	require.NoError(t, err)

	return &harness{t: t, d: d, enclave: ch, set: set, coalition: coalition}
}

func (h *harness) next() uint64 {
	h.seq++
	return h.seq
}

func (h *harness) send(mail *protocol.Mail) (*protocol.Reply, error) {
	return h.d.ProcessMessage(mail)
}

func (h *harness) mustSend(mail *protocol.Mail) *protocol.Reply {
	h.t.Helper()
	reply, err := h.send(mail)
	require.NoError(h.t, err)
	return reply
}

func (h *harness) registerSchema() {
	h.t.Helper()
	h.mustSend(testutil.SchemaMail(h.next(), testutil.SalesEnvelope))
}

func (h *harness) identityMail(parties ...*testutil.Party) *protocol.Mail {
	h.t.Helper()
	mail, err := testutil.IdentityMail(h.next(), h.set, parties...)
	require.NoError(h.t, err)
	return mail
}

func (h *harness) setup() {
	h.t.Helper()
	h.registerSchema()
	h.mustSend(h.identityMail(h.coalition.Parties()...))
}

func (h *harness) providerMail(p *testutil.Party, records []schema.Record) *protocol.Mail {
	h.t.Helper()
	mail, err := testutil.ProviderMail(h.next(), p, h.enclave.PublicKey(), h.set, records)
	require.NoError(h.t, err)
	return mail
}

func (h *harness) requestMail(p *testutil.Party) *protocol.Mail {
	h.t.Helper()
	mail, err := testutil.ClientMail(h.next(), p, h.enclave.PublicKey(), nil)
	require.NoError(h.t, err)
	return mail
}

func (h *harness) submitReferenceData() {
	h.t.Helper()
	h.mustSend(h.providerMail(h.coalition.Providers[0], testutil.GenerateSalesRecords(10)))
	h.mustSend(h.providerMail(h.coalition.Providers[1], testutil.GenerateSalesRecords(15, testutil.WithCountries("IT"))))
}

func requireKind(t *testing.T, err error, kind ErrorKind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, KindOf(err), err.Error())
}

func TestReferenceCycle(t *testing.T) {
	h := newHarness(t, nil)
	require.Equal(t, AwaitingSchema, h.d.State())

	h.registerSchema()
	require.Equal(t, AwaitingIdentities, h.d.State())

	h.mustSend(h.identityMail(h.coalition.Parties()...))
	require.Equal(t, AcceptingData, h.d.State())
	require.Equal(t, 4, h.d.Status().Identities)

	h.submitReferenceData()
	require.Equal(t, AcceptingData, h.d.State())
	require.Equal(t, protocol.RoleProvider, h.d.CurrentRole())
	require.Equal(t, 2, h.d.store.EncryptedLen())
	require.Equal(t, 2, h.d.store.RawLen())
	require.Len(t, h.d.store.All(), 25)

	cycle := h.d.Status().CycleID

	reply := h.mustSend(h.requestMail(h.coalition.Consumer))
	require.NotNil(t, reply)
	require.Equal(t, ServingRequests, h.d.State())
	require.Equal(t, protocol.RoleConsumer, h.d.CurrentRole())
	require.Equal(t, protocol.RoleConsumer, reply.Role)
	require.Equal(t, "testSchema2", reply.DataType)
	require.Equal(t, cycle, reply.CycleID)
	require.Equal(t, 2, h.d.store.RawLen(), "consumer requests keep provider data")

	aggregates, err := testutil.OpenReply(h.coalition.Consumer, reply, h.set.AggregateOutput)
	require.NoError(t, err)
	require.Len(t, aggregates, 1)
	for _, f := range h.set.AggregateOutput.Fields() {
		require.Contains(t, aggregates[0], f.Name())
	}

	_, err = testutil.OpenReply(h.coalition.Providers[0], reply, h.set.AggregateOutput)
	require.Error(t, err, "reply must only open for the consumer")

	reply = h.mustSend(h.requestMail(h.coalition.Provenance))
	require.Equal(t, protocol.RoleProvenance, reply.Role)
	require.Equal(t, cycle, reply.CycleID)

	rewards, err := testutil.OpenReply(h.coalition.Provenance, reply, h.set.ProvenanceOutput)
	require.NoError(t, err)
	require.Len(t, rewards, 2)

	keys := map[string]bool{}
	for _, rec := range rewards {
		keys[rec[h.set.ProvenanceKeyField].(string)] = true
		reward := rec[h.set.RewardField].(map[string]any)
		require.Equal(t, "testSchema2", reward[aggregation.RewardDataType])
	}
	require.True(t, keys[h.coalition.Providers[0].PublicKey().Base64()])
	require.True(t, keys[h.coalition.Providers[1].PublicKey().Base64()])

	require.Equal(t, AcceptingData, h.d.State())
	require.Equal(t, protocol.RoleProvenance, h.d.CurrentRole())
	require.Zero(t, h.d.store.EncryptedLen())
	require.Zero(t, h.d.store.RawLen())
	require.NotEqual(t, cycle, h.d.Status().CycleID)
	require.Equal(t, 4, h.d.Status().Identities, "identities survive the cycle")

	_, err = h.send(h.requestMail(h.coalition.Consumer))
	requireKind(t, err, KindNoData)
}

func TestProvenanceRewardsFollowContribution(t *testing.T) {
	h := newHarness(t, nil)
	h.setup()
	h.submitReferenceData()

	reply := h.mustSend(h.requestMail(h.coalition.Provenance))
	rewards, err := testutil.OpenReply(h.coalition.Provenance, reply, h.set.ProvenanceOutput)
	require.NoError(t, err)

	amounts := map[string]float32{}
	for _, rec := range rewards {
		reward := rec[h.set.RewardField].(map[string]any)
		amounts[rec[h.set.ProvenanceKeyField].(string)] = reward[aggregation.RewardAmountProvided].(float32)
	}
	require.InDelta(t, 0.4, amounts[h.coalition.Providers[0].PublicKey().Base64()], 1e-6)
	require.InDelta(t, 0.6, amounts[h.coalition.Providers[1].PublicKey().Base64()], 1e-6)
}

func TestSchemaMail(t *testing.T) {
	t.Run("second schema rejected", func(t *testing.T) {
		h := newHarness(t, nil)
		h.registerSchema()

		_, err := h.send(testutil.SchemaMail(h.next(), testutil.DemandEnvelope))
		requireKind(t, err, KindSchemaAlreadySet)
		require.ErrorIs(t, err, ErrSchemaAlreadySet)
		require.Equal(t, AwaitingIdentities, h.d.State())
		require.Equal(t, "testSchema2", h.d.Schemas().DataType)
	})

	t.Run("malformed envelope", func(t *testing.T) {
		h := newHarness(t, nil)

		_, err := h.send(testutil.SchemaMail(h.next(), `{"type": "record", "name": "x", "fields": []}`))
		requireKind(t, err, KindMalformedSchema)
		require.Equal(t, AwaitingSchema, h.d.State())

		_, err = h.send(testutil.SchemaMail(h.next(), `not json`))
		requireKind(t, err, KindMalformedSchema)
		require.Nil(t, h.d.Schemas())
	})
}

func TestIdentityMail(t *testing.T) {
	t.Run("before schema", func(t *testing.T) {
		h := newHarness(t, nil)
		mail := h.identityMail(h.coalition.Consumer)

		_, err := h.send(mail)
		requireKind(t, err, KindOutOfOrderMessage)
		require.Equal(t, AwaitingSchema, h.d.State())
	})

	t.Run("duplicates leave registry unchanged", func(t *testing.T) {
		h := newHarness(t, nil)
		h.registerSchema()
		h.mustSend(h.identityMail(h.coalition.Consumer))

		_, err := h.send(h.identityMail(h.coalition.Provenance, h.coalition.Consumer))
		requireKind(t, err, KindDuplicateIdentity)
		require.Equal(t, 1, h.d.Status().Identities)

		_, err = h.send(h.identityMail(h.coalition.Provenance, h.coalition.Provenance))
		requireKind(t, err, KindDuplicateIdentity)
		require.Equal(t, 1, h.d.Status().Identities)
	})

	t.Run("later batches add parties", func(t *testing.T) {
		h := newHarness(t, nil)
		h.registerSchema()
		h.mustSend(h.identityMail(h.coalition.Consumer))
		h.mustSend(h.identityMail(h.coalition.Providers...))
		require.Equal(t, AcceptingData, h.d.State())
		require.Equal(t, 3, h.d.Status().Identities)
	})

	t.Run("invalid role", func(t *testing.T) {
		h := newHarness(t, nil)
		h.registerSchema()

		bad, err := testutil.NewParty(protocol.Role("auditor"))
		require.NoError(t, err)
		_, err = h.send(h.identityMail(bad))
		requireKind(t, err, KindInvalidIdentity)
		require.Equal(t, AwaitingIdentities, h.d.State())
	})

	t.Run("invalid key", func(t *testing.T) {
		h := newHarness(t, nil)
		h.registerSchema()

		keyField, roleField := h.set.IdentityFields()
		payload, err := schema.NewAvroCodec().Encode([]schema.Record{
			{keyField: "c2hvcnQ=", roleField: "consumer"},
		}, h.set.Identity)
		require.NoError(t, err)

		_, err = h.send(&protocol.Mail{Sequence: h.next(), Kind: protocol.KindIdentity, Payload: payload})
		requireKind(t, err, KindInvalidIdentity)
	})

	t.Run("empty batch", func(t *testing.T) {
		h := newHarness(t, nil)
		h.registerSchema()

		payload, err := schema.NewAvroCodec().Encode(nil, h.set.Identity)
		require.NoError(t, err)
		_, err = h.send(&protocol.Mail{Sequence: h.next(), Kind: protocol.KindIdentity, Payload: payload})
		requireKind(t, err, KindInvalidIdentity)
	})
}

func TestClientMail(t *testing.T) {
	t.Run("before identities", func(t *testing.T) {
		h := newHarness(t, nil)
		h.registerSchema()

		_, err := h.send(h.providerMail(h.coalition.Providers[0], testutil.GenerateSalesRecords(3)))
		requireKind(t, err, KindOutOfOrderMessage)
		require.Equal(t, AwaitingIdentities, h.d.State())
	})

	t.Run("unknown sender", func(t *testing.T) {
		h := newHarness(t, nil)
		h.setup()

		stranger, err := testutil.NewParty(protocol.RoleProvider)
		require.NoError(t, err)
		_, err = h.send(h.providerMail(stranger, testutil.GenerateSalesRecords(3)))
		requireKind(t, err, KindUnknownSender)
		require.Zero(t, h.d.store.RawLen())
	})

	t.Run("tampered envelope", func(t *testing.T) {
		h := newHarness(t, nil)
		h.setup()

		mail := h.providerMail(h.coalition.Providers[0], testutil.GenerateSalesRecords(3))
		mail.Payload[len(mail.Payload)-1] ^= 0xff
		_, err := h.send(mail)
		requireKind(t, err, KindChannelFailure)
	})

	t.Run("undecodable provider data", func(t *testing.T) {
		h := newHarness(t, nil)
		h.setup()

		mail, err := testutil.ClientMail(h.next(), h.coalition.Providers[0], h.enclave.PublicKey(), []byte("not avro"))
		require.NoError(t, err)
		_, err = h.send(mail)
		requireKind(t, err, KindInvalidPayload)
		require.Zero(t, h.d.store.RawLen())
		require.Empty(t, h.d.CurrentRole())
	})

	t.Run("resubmission replaces data", func(t *testing.T) {
		h := newHarness(t, nil)
		h.setup()

		p := h.coalition.Providers[0]
		h.mustSend(h.providerMail(p, testutil.GenerateSalesRecords(10)))
		h.mustSend(h.providerMail(p, testutil.GenerateSalesRecords(4)))
		require.Equal(t, 1, h.d.store.RawLen())
		require.Len(t, h.d.store.Records(p.PublicKey()), 4)
	})

	t.Run("providers may submit while serving", func(t *testing.T) {
		h := newHarness(t, nil)
		h.setup()
		h.submitReferenceData()
		h.mustSend(h.requestMail(h.coalition.Consumer))

		h.mustSend(h.providerMail(h.coalition.Providers[0], testutil.GenerateSalesRecords(2)))
		require.Equal(t, ServingRequests, h.d.State())
		require.Len(t, h.d.store.All(), 17)
	})

	t.Run("requests without data", func(t *testing.T) {
		h := newHarness(t, nil)
		h.setup()

		_, err := h.send(h.requestMail(h.coalition.Consumer))
		requireKind(t, err, KindNoData)
		_, err = h.send(h.requestMail(h.coalition.Provenance))
		requireKind(t, err, KindNoData)
		require.Equal(t, AcceptingData, h.d.State())
	})
}

func TestUnsupportedDataType(t *testing.T) {
	h := newHarness(t, aggregation.NewRegistry())
	h.setup()
	h.submitReferenceData()

	_, err := h.send(h.requestMail(h.coalition.Consumer))
	requireKind(t, err, KindUnsupportedDataType)
	require.Equal(t, AcceptingData, h.d.State())

	_, err = h.send(h.requestMail(h.coalition.Provenance))
	requireKind(t, err, KindUnsupportedDataType)
	require.Equal(t, 2, h.d.store.RawLen())
}

func TestDivisionByZero(t *testing.T) {
	h := newHarness(t, nil)
	h.setup()

	// Zero prices make the EV share denominator zero.
	records := testutil.GenerateSalesRecords(6, testutil.WithBasePrice(0))
	for _, rec := range records {
		rec["price"] = 0.0
	}
	h.mustSend(h.providerMail(h.coalition.Providers[0], records))

	_, err := h.send(h.requestMail(h.coalition.Consumer))
	requireKind(t, err, KindDivisionByZero)
	require.ErrorIs(t, err, aggregation.ErrDivisionByZero)
	require.Equal(t, AcceptingData, h.d.State())
}

func TestSequenceOrdering(t *testing.T) {
	h := newHarness(t, nil)
	h.mustSend(testutil.SchemaMail(5, testutil.SalesEnvelope))

	mail, err := testutil.IdentityMail(3, h.set, h.coalition.Parties()...)
	require.NoError(t, err)
	_, err = h.send(mail)
	requireKind(t, err, KindOutOfOrderMessage)

	var e *Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, uint64(3), e.Sequence)
	require.Equal(t, AwaitingIdentities, h.d.State())

	mail.Sequence = 5
	h.mustSend(mail)
	require.Equal(t, uint64(5), h.d.Status().LastSequence)
}

func TestUnknownKind(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.send(&protocol.Mail{Sequence: 1, Kind: "telemetry"})
	requireKind(t, err, KindInvalidPayload)

	_, err = h.send(nil)
	requireKind(t, err, KindInvalidPayload)
	require.Equal(t, AwaitingSchema, h.d.State())
}

func TestNewDispatcherRequiresCollaborators(t *testing.T) {
	_, err := NewDispatcher(Config{})
	require.Error(t, err)

	_, sk, err := crypto.GenerateExchangeKey()
	require.NoError(t, err)
	ch, err := crypto.NewChannel(sk)
	require.NoError(t, err)
	_, err = NewDispatcher(Config{Channel: ch})
	require.Error(t, err)
}
