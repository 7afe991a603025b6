package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/avast/retry-go"

	"github.com/chhavsingh/180protocol/metrics"
	"github.com/chhavsingh/180protocol/protocol"
)

// ForwarderConfig configures webhook delivery of signed receipts.
type ForwarderConfig struct {
	URL      string        `yaml:"url"`
	Attempts uint          `yaml:"attempts"`
	Delay    time.Duration `yaml:"delay"`
}

// ReplyForwarder posts signed receipts, which carry the encrypted output,
// to a webhook. Delivery failures never reach the dispatcher.
type ReplyForwarder struct {
	cfg    ForwarderConfig
	client *http.Client
	log    *slog.Logger
}

// NewReplyForwarder creates a forwarder, or returns nil when no URL is set.
func NewReplyForwarder(cfg ForwarderConfig, log *slog.Logger) *ReplyForwarder {
	if cfg.URL == "" {
		return nil
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = 5
	}
	if cfg.Delay == 0 {
		cfg.Delay = 500 * time.Millisecond
	}
	return &ReplyForwarder{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
}

// Forward delivers receipt, retrying transport errors and 5xx responses.
func (f *ReplyForwarder) Forward(ctx context.Context, receipt *protocol.Signed[DeliveryReceipt]) error {
	body, err := json.Marshal(receipt)
	if err != nil {
		return err
	}

	err = retry.Do(func() error {
		return f.post(ctx, body)
	},
		retry.Attempts(f.cfg.Attempts),
		retry.Delay(f.cfg.Delay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			f.log.Debug("retrying reply forward", "attempt", n+1, "receipt", receipt.Object.ID, "err", err)
		}),
	)
	if err != nil {
		metrics.IncForwardFailure()
		return fmt.Errorf("forwarding receipt %s: %w", receipt.Object.ID, err)
	}
	return nil
}

func (f *ReplyForwarder) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return retry.Unrecoverable(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 == 2 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err = fmt.Errorf("webhook returned %d: %s", resp.StatusCode, msg)
	if resp.StatusCode < 500 {
		return retry.Unrecoverable(err)
	}
	return err
}
