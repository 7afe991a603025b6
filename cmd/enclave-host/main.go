// Command enclave-host runs the aggregation dispatcher behind the HTTP host.
//
// # Usage
//
//	go run ./cmd/enclave-host --config=host.yaml
//	go run ./cmd/enclave-host --addr=:8080 --receipts=bolt --bolt-path=receipts.db
//
// Flags override values from the config file; see common.Config for the
// file format.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chhavsingh/180protocol/api/httpserver"
	"github.com/chhavsingh/180protocol/cmd/common"
	logcommon "github.com/chhavsingh/180protocol/common"
	"github.com/chhavsingh/180protocol/crypto"
	"github.com/chhavsingh/180protocol/enclave"
	"github.com/chhavsingh/180protocol/services"
	"github.com/chhavsingh/180protocol/tdx"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to YAML config file")
		addr        = flag.String("addr", "", "HTTP listen address")
		metricsAddr = flag.String("metrics-addr", "", "Metrics listen address")
		receipts    = flag.String("receipts", "", "Receipt store backend: memory, bolt or postgres")
		boltPath    = flag.String("bolt-path", "", "bbolt receipt file")
		webhook     = flag.String("webhook", "", "URL receiving signed receipts")
		useTDX      = flag.Bool("tdx", false, "Attest with the local TDX device")
		tdxURL      = flag.String("tdx-url", "", "Remote TDX quote service URL")
		logJSON     = flag.Bool("log-json", false, "Log as JSON")
		logDebug    = flag.Bool("log-debug", false, "Log at debug level")
	)
	flag.Parse()

	cfg := common.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = common.LoadConfig(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
	}

	if *addr != "" {
		cfg.HTTPAddr = *addr
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *receipts != "" {
		cfg.Receipts.Backend = *receipts
	}
	if *boltPath != "" {
		cfg.Receipts.BoltPath = *boltPath
	}
	if *webhook != "" {
		cfg.ReplyWebhook.URL = *webhook
	}
	if *useTDX {
		cfg.Attestation.UseTDX = true
	}
	if *tdxURL != "" {
		cfg.Attestation.RemoteURL = *tdxURL
	}
	cfg.LogJSON = cfg.LogJSON || *logJSON
	cfg.LogDebug = cfg.LogDebug || *logDebug

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *common.Config) error {
	log := logcommon.SetupLogger(&logcommon.LoggingOpts{
		Debug:   cfg.LogDebug,
		JSON:    cfg.LogJSON,
		Service: logcommon.PackageName,
		Version: logcommon.Version,
	})

	channelKey, err := common.LoadOrGenerateChannelKey(cfg.ChannelKey)
	if err != nil {
		return fmt.Errorf("channel key: %w", err)
	}
	channel, err := crypto.NewChannel(channelKey)
	if err != nil {
		return err
	}
	signingKey, err := common.LoadOrGenerateSigningKey(cfg.SigningKey)
	if err != nil {
		return fmt.Errorf("signing key: %w", err)
	}

	strategies, err := common.NewStrategies(cfg)
	if err != nil {
		return err
	}
	dispatcher, err := enclave.NewDispatcher(enclave.Config{
		Channel:    channel,
		Strategies: strategies,
		Log:        log.With("component", "dispatcher"),
	})
	if err != nil {
		return err
	}

	store, err := common.NewReceiptStore(cfg.Receipts)
	if err != nil {
		return fmt.Errorf("receipt store: %w", err)
	}

	host, err := services.NewEnclaveHost(services.HostConfig{
		Dispatcher:  dispatcher,
		ChannelKey:  channel.PublicKey(),
		SigningKey:  signingKey,
		Attestation: tdx.New(cfg.Attestation),
		Receipts:    store,
		Forwarder:   services.NewReplyForwarder(cfg.ReplyWebhook, log.With("component", "forwarder")),
		Protocol:    &cfg.Protocol,
		CORSOrigins: cfg.CORSOrigins,
		Log:         log,
	})
	if err != nil {
		store.Close()
		return err
	}
	defer host.Close()

	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               cfg.HTTPAddr,
		MetricsAddr:              cfg.MetricsAddr,
		EnablePprof:              cfg.EnablePprof,
		Log:                      log,
		DrainDuration:            2 * time.Second,
		GracefulShutdownDuration: 10 * time.Second,
		ReadTimeout:              30 * time.Second,
		WriteTimeout:             30 * time.Second,
	}, host)
	if err != nil {
		return err
	}

	log.Info("enclave host ready",
		"channel_key", channel.PublicKey().Base64(),
		"data_types", strategies.DataTypes(),
		"receipts", cfg.Receipts.Backend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx)
}
