package common

import (
	"encoding/hex"
	"fmt"

	"github.com/chhavsingh/180protocol/aggregation"
	"github.com/chhavsingh/180protocol/crypto"
	"github.com/chhavsingh/180protocol/services"
)

// LoadOrGenerateSigningKey loads an Ed25519 private key from hex, or
// generates one when hexKey is empty.
func LoadOrGenerateSigningKey(hexKey string) (crypto.PrivateKey, error) {
	if hexKey != "" {
		keyBytes, err := hex.DecodeString(hexKey)
		if err != nil {
			return nil, fmt.Errorf("invalid hex: %w", err)
		}
		return crypto.NewPrivateKeyFromBytes(keyBytes), nil
	}
	_, privKey, err := crypto.GenerateKeyPair()
	return privKey, err
}

// LoadOrGenerateChannelKey loads the enclave X25519 key from hex, or
// generates one when hexKey is empty.
func LoadOrGenerateChannelKey(hexKey string) (crypto.ExchangePrivateKey, error) {
	if hexKey != "" {
		return crypto.NewExchangePrivateKeyFromString(hexKey)
	}
	_, sk, err := crypto.GenerateExchangeKey()
	return sk, err
}

// NewReceiptStore opens the configured backend.
func NewReceiptStore(cfg ReceiptsConfig) (services.ReceiptStore, error) {
	switch cfg.Backend {
	case "", "memory":
		return services.NewInMemoryStore(), nil
	case "bolt":
		path := cfg.BoltPath
		if path == "" {
			path = "receipts.db"
		}
		return services.NewBoltStore(path)
	case "postgres":
		return services.NewPostgresStore(&cfg.Postgres)
	}
	return nil, fmt.Errorf("unknown receipts backend %q", cfg.Backend)
}

// NewStrategies serves the built-in domains plus the configured ones.
// A configured domain replaces a built-in of the same name.
func NewStrategies(cfg *Config) (*aggregation.Registry, error) {
	opts := aggregation.Options{WindowMonths: cfg.Protocol.UpdateWindowMonths}
	r := aggregation.DefaultRegistry(opts)
	if err := r.RegisterDomains(opts, cfg.Domains...); err != nil {
		return nil, err
	}
	return r, nil
}

// NewMeasurementSource returns a source for a URL or local file, or nil
// when neither is set.
func NewMeasurementSource(url, path string) (services.MeasurementSource, error) {
	switch {
	case url != "":
		return services.NewRemoteMeasurementSource(url), nil
	case path != "":
		return services.LoadMeasurementsFile(path)
	}
	return nil, nil
}
