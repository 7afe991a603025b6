// Package protocol defines the wire vocabulary between data parties, the
// enclave host and the aggregation enclave.
//
// # Mail
//
// The host delivers an ordered stream of Mail values to the enclave. Each mail
// carries a sequence index and a Kind hint:
//
//   - schema: the envelope schema text, sent once before anything else
//   - identity: an Avro batch of (public key, role) pairs
//   - client: a sealed envelope from a registered party
//
// Providers put Avro-encoded records inside their client envelopes. Consumers
// and provenance auditors send a client mail whose body is ignored; the
// envelope itself is the request.
//
// # Replies
//
// A Reply is produced only for consumer and provenance requests. Its
// Ciphertext can be opened only by the Recipient identity.
//
// # Signed objects
//
// Signed[T] wraps host-published objects such as delivery receipts with an
// Ed25519 signature over the JSON serialization and the signer key.
package protocol
