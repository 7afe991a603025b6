package enclave

import (
	"fmt"

	"github.com/chhavsingh/180protocol/crypto"
	"github.com/chhavsingh/180protocol/protocol"
)

// Identity is a registered party.
type Identity struct {
	PublicKey crypto.PublicKey
	Role      protocol.Role
}

// IdentityRegistry maps party identities to their declared roles.
// Entries are never removed or changed once registered.
type IdentityRegistry struct {
	entries map[string]Identity
}

// NewIdentityRegistry creates an empty registry.
func NewIdentityRegistry() *IdentityRegistry {
	return &IdentityRegistry{entries: make(map[string]Identity)}
}

// RegisterBatch adds every identity of batch or none of them.
func (r *IdentityRegistry) RegisterBatch(batch []Identity) error {
	seen := make(map[string]bool, len(batch))
	for _, id := range batch {
		key := id.PublicKey.String()
		if _, ok := r.entries[key]; ok || seen[key] {
			return newError(KindDuplicateIdentity, fmt.Sprintf("identity %s already registered", key), nil)
		}
		seen[key] = true
	}

	for _, id := range batch {
		r.entries[id.PublicKey.String()] = id
	}
	return nil
}

// Lookup resolves a public key to its registered identity.
func (r *IdentityRegistry) Lookup(pk crypto.PublicKey) (Identity, bool) {
	id, ok := r.entries[pk.String()]
	return id, ok
}

// Len returns the number of registered identities.
func (r *IdentityRegistry) Len() int {
	return len(r.entries)
}

// CountRole returns how many identities hold role.
func (r *IdentityRegistry) CountRole(role protocol.Role) int {
	n := 0
	for _, id := range r.entries {
		if id.Role == role {
			n++
		}
	}
	return n
}
