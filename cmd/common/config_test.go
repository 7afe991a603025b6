package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chhavsingh/180protocol/services"
)

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
http_addr: ":9000"
receipts:
  backend: bolt
  bolt_path: /tmp/r.db
reply_webhook:
  url: http://hook
  attempts: 3
  delay: 250ms
protocol:
  topic: ev-coalition
domains:
  - name: fleet
    pivot: [region]
    outputs:
      - {name: total, stat: sum, group_by: [region], field: km}
    reward:
      completeness: [region]
      uniqueness: region
      date_field: date
`))
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.HTTPAddr)
	require.Equal(t, "bolt", cfg.Receipts.Backend)
	require.Equal(t, 250*time.Millisecond, cfg.ReplyWebhook.Delay)
	require.Equal(t, "ev-coalition", cfg.Protocol.Topic)
	require.EqualValues(t, 16<<20, cfg.Protocol.MaxMailBytes, "unset keys keep defaults")

	strategies, err := NewStrategies(cfg)
	require.NoError(t, err)
	require.Contains(t, strategies.DataTypes(), "fleet")
	require.Contains(t, strategies.DataTypes(), "testSchema2")
}

func TestParseConfigRejectsBadDomain(t *testing.T) {
	_, err := ParseConfig([]byte("domains:\n  - name: broken\n"))
	require.Error(t, err)
}

func TestNewReceiptStore(t *testing.T) {
	store, err := NewReceiptStore(ReceiptsConfig{})
	require.NoError(t, err)
	require.IsType(t, &services.InMemoryStore{}, store)

	_, err = NewReceiptStore(ReceiptsConfig{Backend: "redis"})
	require.Error(t, err)
}

func TestLoadOrGenerateKeys(t *testing.T) {
	sk, err := LoadOrGenerateChannelKey("")
	require.NoError(t, err)

	again, err := LoadOrGenerateChannelKey(sk.String())
	require.NoError(t, err)
	require.Equal(t, sk, again)

	signing, err := LoadOrGenerateSigningKey("")
	require.NoError(t, err)
	_, err = signing.PublicKey()
	require.NoError(t, err)
}

func TestNewMeasurementSource(t *testing.T) {
	source, err := NewMeasurementSource("", "")
	require.NoError(t, err)
	require.Nil(t, source)

	path := filepath.Join(t.TempDir(), "builds.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- build_id: v1\n  registers:\n    0: \"00\"\n"), 0o600))

	source, err = NewMeasurementSource("", path)
	require.NoError(t, err)
	builds, err := source.GetAllowedMeasurements()
	require.NoError(t, err)
	require.Len(t, builds, 1)
	require.Equal(t, "v1", builds[0].BuildID)

	source, err = NewMeasurementSource("http://builds.invalid", path)
	require.NoError(t, err)
	require.IsType(t, &services.RemoteMeasurementSource{}, source)
}
