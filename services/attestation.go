package services

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/chhavsingh/180protocol/crypto"
)

// TEEProvider abstracts attestation generation and verification.
type TEEProvider interface {
	AttestationType() string
	Attest(reportData [64]byte) ([]byte, error)
	Verify(attestationReport []byte, expectedReportData [64]byte) (map[int][]byte, error)
}

// Measurements maps register indices to measurement values.
type Measurements map[int][]byte

// ReportDataForHost binds the enclave channel key and the receipt signing
// key into TEE report data.
func ReportDataForHost(channelKey, signingKey crypto.PublicKey) [64]byte {
	hash := sha256.New()
	hash.Write(channelKey.Bytes())
	hash.Write(signingKey.Bytes())

	var reportData [64]byte
	copy(reportData[:], hash.Sum(nil))
	return reportData
}

// AttestHost produces the quote served on /attestation. A nil provider
// yields no quote.
func AttestHost(provider TEEProvider, channelKey, signingKey crypto.PublicKey) (*AttestationResponse, error) {
	resp := &AttestationResponse{
		ChannelKey: channelKey.Base64(),
		SigningKey: signingKey.String(),
	}
	if provider == nil {
		return resp, nil
	}

	quote, err := provider.Attest(ReportDataForHost(channelKey, signingKey))
	if err != nil {
		return nil, fmt.Errorf("attesting channel key: %w", err)
	}
	resp.AttestationType = provider.AttestationType()
	resp.Quote = quote
	return resp, nil
}

// VerifyHostAttestation checks that resp carries a valid quote over its keys
// and, when source is set, that the measurements are allowed.
func VerifyHostAttestation(source MeasurementSource, provider TEEProvider, resp *AttestationResponse) (Measurements, error) {
	channelKey, err := crypto.NewPublicKeyFromBase64(resp.ChannelKey)
	if err != nil {
		return nil, fmt.Errorf("invalid channel key: %w", err)
	}
	signingKey, err := crypto.NewPublicKeyFromString(resp.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("invalid signing key: %w", err)
	}
	if len(resp.Quote) == 0 {
		return nil, errors.New("no attestation data")
	}

	measurements, err := provider.Verify(resp.Quote, ReportDataForHost(channelKey, signingKey))
	if err != nil {
		return nil, fmt.Errorf("could not verify attestation: %w", err)
	}

	if source != nil {
		allowed, err := source.GetAllowedMeasurements()
		if err != nil {
			return nil, fmt.Errorf("could not fetch allowed measurements: %w", err)
		}
		if _, err := VerifyMeasurementsMatch(allowed, measurements); err != nil {
			return nil, fmt.Errorf("attestation is not allowed: %w", err)
		}
	}

	return measurements, nil
}
