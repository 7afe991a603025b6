// Package enclave implements the aggregation state machine that runs inside
// the trusted environment.
//
// A Dispatcher accepts mail in a fixed order: one schema envelope, then one or
// more identity batches, then sealed client mail. Provider mail fills the
// client data store, a consumer request returns the aggregate of everything
// stored, and a provenance request returns per-provider rewards and starts a
// new cycle with an empty store. Replies are sealed for the requesting party
// only; the host relays ciphertext it cannot read.
package enclave
