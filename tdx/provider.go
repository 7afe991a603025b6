// Package tdx produces and checks Intel TDX quotes over the enclave host's
// keys.
package tdx

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/go-tdx-guest/client"
)

// Register indices in the measurement maps returned by Verify.
const (
	RegisterMRTD = iota
	RegisterRTMR0
	RegisterRTMR1
	RegisterRTMR2
	RegisterRTMR3
)

// Provider generates quotes over 64 bytes of report data and verifies them.
type Provider interface {
	AttestationType() string
	Attest(reportData [64]byte) ([]byte, error)
	Verify(quote []byte, expectedReportData [64]byte) (map[int][]byte, error)
}

// Config selects a provider.
type Config struct {
	// UseTDX requests quotes from the local configfs-tsm device.
	UseTDX bool `yaml:"use_tdx"`
	// RemoteURL requests quotes from an attestation service instead.
	RemoteURL string        `yaml:"tdx_url"`
	Timeout   time.Duration `yaml:"timeout"`
}

// New returns the provider for cfg. Without TDX settings it returns the
// DummyProvider, which is only suitable for development.
func New(cfg Config) Provider {
	switch {
	case cfg.RemoteURL != "":
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		return &RemoteDCAPProvider{URL: cfg.RemoteURL, Timeout: timeout}
	case cfg.UseTDX:
		return &TDXProvider{}
	}
	return &DummyProvider{}
}

// TDXProvider quotes with the local TDX device.
type TDXProvider struct{}

func (p *TDXProvider) AttestationType() string {
	return "dcap-tdx"
}

// Attest generates a quote binding reportData.
func (p *TDXProvider) Attest(reportData [64]byte) ([]byte, error) {
	qp := &client.LinuxConfigFsQuoteProvider{}
	return qp.GetRawQuote(reportData)
}

// Verify validates a quote and returns its measurements.
func (p *TDXProvider) Verify(quote []byte, expectedReportData [64]byte) (map[int][]byte, error) {
	return VerifyDCAP(quote, expectedReportData[:], DefaultPolicy())
}

// RemoteDCAPProvider fetches quotes from an attestation service
// (GET {URL}/attest/{hex report data}) and verifies locally.
type RemoteDCAPProvider struct {
	URL     string
	Timeout time.Duration
}

func (p *RemoteDCAPProvider) AttestationType() string {
	return "dcap-tdx"
}

// Attest requests a quote for reportData.
func (p *RemoteDCAPProvider) Attest(reportData [64]byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.Timeout)
	defer cancel()

	url := fmt.Sprintf("%s/attest/%s", p.URL, hex.EncodeToString(reportData[:]))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling remote quote provider: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading quote: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote quote provider returned status %d: %s", resp.StatusCode, body)
	}
	return body, nil
}

// Verify validates a quote and returns its measurements.
func (p *RemoteDCAPProvider) Verify(quote []byte, expectedReportData [64]byte) (map[int][]byte, error) {
	return VerifyDCAP(quote, expectedReportData[:], DefaultPolicy())
}

// DummyProvider echoes the report data as the quote. Development only.
type DummyProvider struct{}

func (p *DummyProvider) AttestationType() string {
	return "dummy-tdx"
}

// Attest returns a copy of reportData.
func (p *DummyProvider) Attest(reportData [64]byte) ([]byte, error) {
	return bytes.Clone(reportData[:]), nil
}

// Verify checks the echo and reports fixed register values 0 through 4.
func (p *DummyProvider) Verify(quote []byte, expectedReportData [64]byte) (map[int][]byte, error) {
	if !bytes.Equal(quote, expectedReportData[:]) {
		return nil, errors.New("attestation mismatch")
	}
	return map[int][]byte{
		RegisterMRTD:  {0},
		RegisterRTMR0: {1},
		RegisterRTMR1: {2},
		RegisterRTMR2: {3},
		RegisterRTMR3: {4},
	}, nil
}
