package services

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"gopkg.in/yaml.v3"
)

// AllowedBuild is one enclave-host build whose measurements are trusted.
// Registers maps register index (0 = MRTD, 1-4 = RTMR0-3) to a hex value.
//
//	- build_id: enclave-host-v0.1.0-tdx
//	  registers:
//	    0: "a1b2..."
//	    1: "c3d4..."
//
// JSON with the same keys is accepted as well.
type AllowedBuild struct {
	BuildID   string         `yaml:"build_id" json:"build_id"`
	Registers map[int]string `yaml:"registers" json:"registers"`
}

// Decode returns the registers as raw measurements.
func (b *AllowedBuild) Decode() (Measurements, error) {
	out := make(Measurements, len(b.Registers))
	for idx, v := range b.Registers {
		raw, err := hex.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("build %s register %d: %w", b.BuildID, idx, err)
		}
		out[idx] = raw
	}
	return out, nil
}

// ParseAllowedBuilds reads a YAML or JSON list of allowed builds.
func ParseAllowedBuilds(data []byte) ([]AllowedBuild, error) {
	var builds []AllowedBuild
	// JSON object keys are strings, which yaml will not decode into int keys.
	if jsonErr := json.Unmarshal(data, &builds); jsonErr != nil {
		builds = nil
		if err := yaml.Unmarshal(data, &builds); err != nil {
			return nil, fmt.Errorf("parsing allowed builds: %w", err)
		}
	}
	for i := range builds {
		if _, err := builds[i].Decode(); err != nil {
			return nil, err
		}
	}
	return builds, nil
}

// MeasurementSource provides the builds an attestation may match.
type MeasurementSource interface {
	GetAllowedMeasurements() ([]AllowedBuild, error)
}

// StaticMeasurementSource serves a fixed list.
type StaticMeasurementSource []AllowedBuild

// GetAllowedMeasurements returns the list.
func (s StaticMeasurementSource) GetAllowedMeasurements() ([]AllowedBuild, error) {
	return s, nil
}

// DummyMeasurements matches the registers reported by tdx.DummyProvider.
func DummyMeasurements() StaticMeasurementSource {
	return StaticMeasurementSource{{
		BuildID:   "dummy-attestation",
		Registers: map[int]string{0: "00", 1: "01", 2: "02", 3: "03", 4: "04"},
	}}
}

// LoadMeasurementsFile reads allowed builds from a local file.
func LoadMeasurementsFile(path string) (StaticMeasurementSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	builds, err := ParseAllowedBuilds(data)
	if err != nil {
		return nil, err
	}
	return StaticMeasurementSource(builds), nil
}

// RemoteMeasurementSource fetches allowed builds from a URL and caches them
// for TTL.
type RemoteMeasurementSource struct {
	URL        string
	TTL        time.Duration
	HTTPClient *http.Client

	mu      sync.Mutex
	expires time.Time
	cached  []AllowedBuild
}

// NewRemoteMeasurementSource creates a source with a one hour cache.
func NewRemoteMeasurementSource(url string) *RemoteMeasurementSource {
	return &RemoteMeasurementSource{
		URL:        url,
		TTL:        time.Hour,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// GetAllowedMeasurements returns the cached list, refreshing it when stale.
func (r *RemoteMeasurementSource) GetAllowedMeasurements() ([]AllowedBuild, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached != nil && time.Now().Before(r.expires) {
		return r.cached, nil
	}

	var builds []AllowedBuild
	err := retry.Do(func() error {
		var err error
		builds, err = r.fetch()
		return err
	}, retry.Attempts(3), retry.Delay(time.Second), retry.LastErrorOnly(true))
	if err != nil {
		return nil, err
	}

	r.cached = builds
	r.expires = time.Now().Add(r.TTL)
	return builds, nil
}

func (r *RemoteMeasurementSource) fetch() ([]AllowedBuild, error) {
	resp, err := r.HTTPClient.Get(r.URL)
	if err != nil {
		return nil, fmt.Errorf("fetching measurements: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("measurements returned %d: %s", resp.StatusCode, body)
		if resp.StatusCode < 500 {
			return nil, retry.Unrecoverable(err)
		}
		return nil, err
	}
	return ParseAllowedBuilds(body)
}

// VerifyMeasurementsMatch returns the first allowed build whose registers
// all equal the actual measurements.
func VerifyMeasurementsMatch(allowed []AllowedBuild, actual Measurements) (AllowedBuild, error) {
	for _, build := range allowed {
		expected, err := build.Decode()
		if err != nil {
			return AllowedBuild{}, err
		}
		if registersMatch(expected, actual) {
			return build, nil
		}
	}
	return AllowedBuild{}, errors.New("measurements do not match any allowed build")
}

func registersMatch(expected, actual Measurements) bool {
	for idx, want := range expected {
		got, ok := actual[idx]
		if !ok || !bytes.Equal(want, got) {
			return false
		}
	}
	return true
}
