package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/chhavsingh/180protocol/crypto"
	"github.com/chhavsingh/180protocol/enclave"
	"github.com/chhavsingh/180protocol/protocol"
	"github.com/chhavsingh/180protocol/schema"
	"github.com/chhavsingh/180protocol/services"
)

type hostClient struct {
	base string
	http *http.Client
}

func newHostClient() *hostClient {
	return &hostClient{
		base: strings.TrimRight(viper.GetString(flagHost), "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *hostClient) getJSON(path string, out any) error {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return readError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *hostClient) status() (*enclave.Status, error) {
	var st enclave.Status
	return &st, c.getJSON("/state", &st)
}

func (c *hostClient) attestation() (*services.AttestationResponse, error) {
	var att services.AttestationResponse
	return &att, c.getJSON("/attestation", &att)
}

// channelKey returns the enclave key mail is sealed to.
func (c *hostClient) channelKey() (crypto.PublicKey, error) {
	att, err := c.attestation()
	if err != nil {
		return nil, err
	}
	return crypto.NewPublicKeyFromBase64(att.ChannelKey)
}

// nextSequence honours --sequence, else continues after the host's last mail.
func (c *hostClient) nextSequence() (uint64, error) {
	if seq := viper.GetUint64(flagSequence); seq != 0 {
		return seq, nil
	}
	st, err := c.status()
	if err != nil {
		return 0, err
	}
	return st.LastSequence + 1, nil
}

func (c *hostClient) send(kind protocol.Kind, payload []byte) (*services.MailResponse, error) {
	seq, err := c.nextSequence()
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(&protocol.Mail{Sequence: seq, Kind: kind, Payload: payload})
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Post(c.base+"/mail", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, readError(resp)
	}
	return protocol.DecodeMessage[services.MailResponse](resp.Body)
}

func readError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var e services.ErrorResponse
	if json.Unmarshal(body, &e) == nil && e.Code != "" {
		return fmt.Errorf("%s: %s", e.Code, e.Message)
	}
	return fmt.Errorf("host returned %d: %s", resp.StatusCode, body)
}

func loadEnvelope() (*schema.Set, []byte, error) {
	path := viper.GetString(flagEnvelope)
	if path == "" {
		return nil, nil, fmt.Errorf("--%s is required", flagEnvelope)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	set, err := schema.ParseEnvelope(data)
	return set, data, err
}

func partyChannel() (*crypto.Channel, error) {
	hexKey := viper.GetString(flagKey)
	if hexKey == "" {
		return nil, fmt.Errorf("--%s is required", flagKey)
	}
	sk, err := crypto.NewExchangePrivateKeyFromString(hexKey)
	if err != nil {
		return nil, err
	}
	return crypto.NewChannel(sk)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
