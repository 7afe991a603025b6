// Package common holds the configuration and factories shared by the
// enclave host and aggctl.
package common

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/chhavsingh/180protocol/aggregation"
	"github.com/chhavsingh/180protocol/protocol"
	"github.com/chhavsingh/180protocol/services"
	"github.com/chhavsingh/180protocol/tdx"
)

// Config is the enclave-host configuration file.
//
//	http_addr: ":8080"
//	metrics_addr: ":9090"
//	channel_key: ""            # hex X25519, generated when empty
//	signing_key: ""            # hex Ed25519, generated when empty
//	attestation:
//	  use_tdx: false
//	  tdx_url: ""
//	receipts:
//	  backend: bolt            # memory | bolt | postgres
//	  bolt_path: receipts.db
//	reply_webhook:
//	  url: ""
//	  attempts: 5
//	  delay: 500ms
//	protocol:
//	  topic: aggregation
//	  update_window_months: 3
//	domains: []                # extra pivot domains, see aggregation.Domain
type Config struct {
	HTTPAddr    string   `yaml:"http_addr"`
	MetricsAddr string   `yaml:"metrics_addr"`
	LogJSON     bool     `yaml:"log_json"`
	LogDebug    bool     `yaml:"log_debug"`
	EnablePprof bool     `yaml:"enable_pprof"`
	CORSOrigins []string `yaml:"cors_origins"`

	ChannelKey string `yaml:"channel_key"`
	SigningKey string `yaml:"signing_key"`

	Attestation  tdx.Config               `yaml:"attestation"`
	Receipts     ReceiptsConfig           `yaml:"receipts"`
	ReplyWebhook services.ForwarderConfig `yaml:"reply_webhook"`
	Protocol     protocol.Config          `yaml:"protocol"`
	Domains      []aggregation.Domain     `yaml:"domains"`
}

// ReceiptsConfig selects the receipt store backend.
type ReceiptsConfig struct {
	Backend  string                  `yaml:"backend"`
	BoltPath string                  `yaml:"bolt_path"`
	Postgres services.PostgresConfig `yaml:"postgres"`
}

// DefaultConfig returns the configuration used without a file.
func DefaultConfig() *Config {
	return &Config{
		HTTPAddr: ":8080",
		Receipts: ReceiptsConfig{Backend: "memory"},
		Protocol: *protocol.DefaultConfig(),
	}
}

// LoadConfig reads a YAML file over the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML over the defaults.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	for i := range cfg.Domains {
		if err := cfg.Domains[i].Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
