// Package cmd holds the binaries of the aggregation enclave.
//
// enclave-host runs the dispatcher behind the HTTP host, with receipts,
// webhook forwarding, metrics and TDX attestation of the channel key:
//
//	go run ./cmd/enclave-host --config=host.yaml
//
// aggctl is the party-side CLI. It registers the schema and identities,
// seals provider CSV data, queries outputs and verifies the host's
// attestation:
//
//	go run ./cmd/aggctl keygen
//	go run ./cmd/aggctl submit --csv sales.csv --envelope sales.avsc --key <hex>
package cmd
