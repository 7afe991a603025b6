package enclave

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chhavsingh/180protocol/crypto"
	"github.com/chhavsingh/180protocol/protocol"
	"github.com/chhavsingh/180protocol/schema"
)

func newKey(t *testing.T) crypto.PublicKey {
	t.Helper()
	pk, _, err := crypto.GenerateExchangeKey()
	require.NoError(t, err)
	return pk
}

func TestIdentityRegistryBatchIsAtomic(t *testing.T) {
	r := NewIdentityRegistry()
	a, b, c := newKey(t), newKey(t), newKey(t)

	require.NoError(t, r.RegisterBatch([]Identity{
		{PublicKey: a, Role: protocol.RoleProvider},
		{PublicKey: b, Role: protocol.RoleConsumer},
	}))

	err := r.RegisterBatch([]Identity{
		{PublicKey: c, Role: protocol.RoleProvenance},
		{PublicKey: a, Role: protocol.RoleProvider},
	})
	require.ErrorIs(t, err, ErrDuplicateIdentity)
	require.Equal(t, 2, r.Len())

	_, ok := r.Lookup(c)
	require.False(t, ok)

	id, ok := r.Lookup(crypto.NewPublicKeyFromBytes(b.Bytes()))
	require.True(t, ok)
	require.Equal(t, protocol.RoleConsumer, id.Role)
	require.Equal(t, 1, r.CountRole(protocol.RoleProvider))
}

func TestClientDataStore(t *testing.T) {
	s := NewClientDataStore()
	a, b := newKey(t), newKey(t)

	s.Put(a, []byte("first"), []schema.Record{{"n": 1}})
	s.Put(b, []byte("second"), []schema.Record{{"n": 2}, {"n": 3}})
	s.Put(a, []byte("third"), []schema.Record{{"n": 4}})

	require.Equal(t, 2, s.EncryptedLen())
	require.Equal(t, 2, s.RawLen())
	require.Len(t, s.All(), 3)
	require.Equal(t, []schema.Record{{"n": 4}}, s.Records(a))

	providers := s.Providers()
	require.Len(t, providers, 2)
	require.Less(t, providers[0].String(), providers[1].String())

	s.Reset()
	require.Zero(t, s.EncryptedLen())
	require.Empty(t, s.All())
}

func TestErrorFormatting(t *testing.T) {
	err := &Error{Kind: KindNoData, Sequence: 7, Message: "empty"}
	require.Equal(t, "NoData (mail 7): empty", err.Error())
	require.ErrorIs(t, err, ErrNoData)
	require.NotErrorIs(t, err, ErrUnknownSender)
	require.Equal(t, KindNoData, KindOf(err))
	require.Empty(t, KindOf(nil))
}
