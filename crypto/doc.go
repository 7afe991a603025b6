// Package crypto provides the key types and the secure channel used between
// data parties and the aggregation enclave.
//
// # Identities
//
// Every party owns an X25519 key pair. The 32-byte public key is its identity
// inside the enclave and is registered together with a role. The enclave owns
// one more pair whose public key is published through the host attestation.
//
// # Secure Channel
//
// Channel derives one symmetric key per peer with X25519 and HKDF-SHA3-256 and
// seals mail with XChaCha20-Poly1305. Every envelope carries the sender
// identity in clear, so the enclave learns who sent a mail only by opening it
// successfully with the key derived for that identity.
//
//	party, _ := crypto.NewChannel(partyKey)
//	envelope, _ := party.EncryptFor(enclavePub, body)
//
//	sender, body, err := enclaveChannel.Decrypt(envelope)
//
// # Signing
//
// Ed25519 keys sign the delivery receipts the host publishes. Signatures are
// deterministic.
package crypto
