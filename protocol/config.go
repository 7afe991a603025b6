package protocol

// Config carries the protocol parameters shared by the host and its clients.
type Config struct {
	// Topic labels delivery receipts so parties can tell coalitions apart.
	Topic string `json:"topic" yaml:"topic"`

	// UpdateWindowMonths is the trailing window used by the update-frequency
	// reward dimension.
	UpdateWindowMonths int `json:"update_window_months" yaml:"update_window_months"`

	// MaxMailBytes bounds a single inbound mail body.
	MaxMailBytes int64 `json:"max_mail_bytes" yaml:"max_mail_bytes"`
}

// DefaultConfig returns the parameters used when none are configured.
func DefaultConfig() *Config {
	return &Config{
		Topic:              "aggregation",
		UpdateWindowMonths: 3,
		MaxMailBytes:       16 << 20,
	}
}
