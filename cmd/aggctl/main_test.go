package main

import (
	"bytes"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/chhavsingh/180protocol/aggregation"
	"github.com/chhavsingh/180protocol/crypto"
	"github.com/chhavsingh/180protocol/enclave"
	"github.com/chhavsingh/180protocol/services"
	"github.com/chhavsingh/180protocol/testutil"
)

func startHost(t *testing.T) *httptest.Server {
	t.Helper()

	_, sk, err := crypto.GenerateExchangeKey()
	require.NoError(t, err)
	ch, err := crypto.NewChannel(sk)
	require.NoError(t, err)
	d, err := enclave.NewDispatcher(enclave.Config{
		Channel:    ch,
		Strategies: aggregation.DefaultRegistry(aggregation.Options{Now: testutil.FixedClock}),
	})
	require.NoError(t, err)
	_, signingKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	host, err := services.NewEnclaveHost(services.HostConfig{
		Dispatcher: d,
		ChannelKey: ch.PublicKey(),
		SigningKey: signingKey,
	})
	require.NoError(t, err)

	r := chi.NewRouter()
	host.RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestAggctlCycle(t *testing.T) {
	srv := startHost(t)
	dir := t.TempDir()

	provider, providerKey, err := crypto.GenerateExchangeKey()
	require.NoError(t, err)
	consumer, consumerKey, err := crypto.GenerateExchangeKey()
	require.NoError(t, err)

	envelope := writeFile(t, dir, "envelope.avsc", testutil.SalesEnvelope)
	parties := writeFile(t, dir, "parties.yaml", fmt.Sprintf(
		"- public_key: %s\n  role: provider\n- public_key: %s\n  role: consumer\n",
		provider.Base64(), consumer.Base64()))
	sales := writeFile(t, dir, "sales.csv", `model,country,ev,price,date
A,DE,EV,100,2026-03-01
A,FR,,50,2026-03-02
B,DE,EV,300,2026-03-03
B,DE,,150,2026-03-04
`)

	run := func(args ...string) string {
		t.Helper()
		var out bytes.Buffer
		cmd := rootCmd()
		cmd.SetOut(&out)
		cmd.SetErr(&out)
		cmd.SetArgs(append([]string{"--host", srv.URL}, args...))
		require.NoError(t, cmd.Execute())
		return out.String()
	}

	run("schema", envelope)
	run("identities", parties, "--envelope", envelope)
	require.Contains(t, run("submit", "--csv", sales, "--envelope", envelope, "--key", providerKey.String()), "submitted 4 records")

	out := run("query", "--envelope", envelope, "--key", consumerKey.String())
	require.Contains(t, out, "averagePrice")
	require.Contains(t, out, "evMarketShare")
}

func TestAggctlReportsHostErrors(t *testing.T) {
	srv := startHost(t)
	dir := t.TempDir()
	parties := writeFile(t, dir, "parties.yaml", "[]\n")
	envelope := writeFile(t, dir, "envelope.avsc", testutil.SalesEnvelope)

	cmd := rootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--host", srv.URL, "identities", parties, "--envelope", envelope})
	require.ErrorContains(t, cmd.Execute(), string(enclave.KindOutOfOrderMessage))
}
