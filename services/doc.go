/*
Package services runs the enclave dispatcher behind an HTTP host.

The host is the untrusted half of the deployment. It never sees plaintext
party data: schema and identity mail arrive in clear by design, while
client mail and every reply are sealed with the enclave channel key.

# Routes

  - POST /mail            deliver {sequence, kind, payload}; returns the
    dispatcher status and, for consumer or provenance requests, the sealed
    reply plus a signed DeliveryReceipt
  - GET  /state           dispatcher status (no party data)
  - GET  /attestation     channel key, receipt signing key and TEE quote
  - GET  /receipts        all stored receipts, oldest first
  - GET  /receipts/{id}   one receipt

Rejected mail returns {"code", "message", "sequence"} where code is the
dispatcher error kind; see StatusForKind for the HTTP status mapping.

# Receipts

Receipts are kept in a ReceiptStore: InMemoryStore, BoltStore (embedded
file) or PostgresStore. A ReplyForwarder optionally posts each receipt to
a webhook with retries; forwarding failures are only logged.

# Attestation

The quote's report data is SHA-256(channel key || signing key), so a party
that verifies the quote with VerifyHostAttestation knows both the key it
encrypts to and the key that signs receipts live in the measured build.
*/
package services
