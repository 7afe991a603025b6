package enclave

import (
	"sort"

	"github.com/chhavsingh/180protocol/crypto"
	"github.com/chhavsingh/180protocol/schema"
)

// ClientDataStore holds what providers submitted during the current cycle:
// the sealed envelope as received and the records decoded from it.
type ClientDataStore struct {
	keys      map[string]crypto.PublicKey
	encrypted map[string][]byte
	raw       map[string][]schema.Record
}

// NewClientDataStore creates an empty store.
func NewClientDataStore() *ClientDataStore {
	s := &ClientDataStore{}
	s.Reset()
	return s
}

// Put stores a provider submission, replacing any earlier one from the same
// provider.
func (s *ClientDataStore) Put(provider crypto.PublicKey, envelope []byte, records []schema.Record) {
	key := provider.String()
	s.keys[key] = provider
	s.encrypted[key] = envelope
	s.raw[key] = records
}

// Records returns the records of one provider.
func (s *ClientDataStore) Records(provider crypto.PublicKey) []schema.Record {
	return s.raw[provider.String()]
}

// Providers lists the providers with a submission, ordered by key.
func (s *ClientDataStore) Providers() []crypto.PublicKey {
	keys := make([]string, 0, len(s.keys))
	for k := range s.keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	providers := make([]crypto.PublicKey, len(keys))
	for i, k := range keys {
		providers[i] = s.keys[k]
	}
	return providers
}

// All returns the union of every provider's records, in provider order.
func (s *ClientDataStore) All() []schema.Record {
	var all []schema.Record
	for _, p := range s.Providers() {
		all = append(all, s.raw[p.String()]...)
	}
	return all
}

// EncryptedLen is the number of stored envelopes.
func (s *ClientDataStore) EncryptedLen() int {
	return len(s.encrypted)
}

// RawLen is the number of providers with decoded records.
func (s *ClientDataStore) RawLen() int {
	return len(s.raw)
}

// Reset empties the store for a new cycle.
func (s *ClientDataStore) Reset() {
	s.keys = make(map[string]crypto.PublicKey)
	s.encrypted = make(map[string][]byte)
	s.raw = make(map[string][]schema.Record)
}
