package services

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/chhavsingh/180protocol/aggregation"
	"github.com/chhavsingh/180protocol/crypto"
	"github.com/chhavsingh/180protocol/enclave"
	"github.com/chhavsingh/180protocol/protocol"
	"github.com/chhavsingh/180protocol/schema"
	"github.com/chhavsingh/180protocol/tdx"
	"github.com/chhavsingh/180protocol/testutil"
)

type hostFixture struct {
	t          *testing.T
	host       *EnclaveHost
	srv        *httptest.Server
	channelKey crypto.PublicKey
	signingKey crypto.PublicKey
	set        *schema.Set
	coalition  *testutil.Coalition
	seq        uint64
}

func newHostFixture(t *testing.T, forwarder *ReplyForwarder) *hostFixture {
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

	signingPub, signingKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	host, err := NewEnclaveHost(HostConfig{
		Dispatcher:  d,
		ChannelKey:  ch.PublicKey(),
		SigningKey:  signingKey,
		Attestation: &tdx.DummyProvider{},
		Forwarder:   forwarder,
	})
	require.NoError(t, err)

	r := chi.NewRouter()
	host.RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	set, err := schema.ParseEnvelope([]byte(testutil.SalesEnvelope))
	require.NoError(t, err)
	coalition, err := testutil.NewCoalition(2)
	require.NoError(t, err)

	return &hostFixture{
		t: t, host: host, srv: srv,
		channelKey: ch.PublicKey(), signingKey: signingPub,
		set: set, coalition: coalition,
	}
}

func (f *hostFixture) next() uint64 {
	f.seq++
	return f.seq
}

func (f *hostFixture) post(mail *protocol.Mail) (int, []byte) {
	f.t.Helper()
	body, err := json.Marshal(mail)
	require.NoError(f.t, err)

	resp, err := http.Post(f.srv.URL+"/mail", "application/json", bytes.NewReader(body))
	require.NoError(f.t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(f.t, err)
	return resp.StatusCode, buf.Bytes()
}

func (f *hostFixture) mustPost(mail *protocol.Mail) *MailResponse {
	f.t.Helper()
	code, body := f.post(mail)
	require.Equal(f.t, http.StatusOK, code, string(body))
	resp, err := protocol.UnmarshalMessage[MailResponse](body)
	require.NoError(f.t, err)
	return resp
}

func (f *hostFixture) get(path string, out any) int {
	f.t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	require.NoError(f.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(f.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (f *hostFixture) setup() {
	f.t.Helper()
	f.mustPost(testutil.SchemaMail(f.next(), testutil.SalesEnvelope))

	mail, err := testutil.IdentityMail(f.next(), f.set, f.coalition.Parties()...)
	require.NoError(f.t, err)
	f.mustPost(mail)

	for i, p := range f.coalition.Providers {
		mail, err := testutil.ProviderMail(f.next(), p, f.channelKey, f.set, testutil.GenerateSalesRecords(10+5*i))
		require.NoError(f.t, err)
		f.mustPost(mail)
	}
}

func (f *hostFixture) request(p *testutil.Party) *protocol.Mail {
	f.t.Helper()
	mail, err := testutil.ClientMail(f.next(), p, f.channelKey, nil)
	require.NoError(f.t, err)
	return mail
}

func TestHostServesCycle(t *testing.T) {
	f := newHostFixture(t, nil)
	f.setup()

	var st enclave.Status
	require.Equal(t, http.StatusOK, f.get("/state", &st))
	require.Equal(t, enclave.AcceptingData, f.host.Status().State)
	require.Equal(t, 2, st.Providers)
	require.Equal(t, 4, st.Identities)

	resp := f.mustPost(f.request(f.coalition.Consumer))
	require.NotNil(t, resp.Reply)
	require.NotNil(t, resp.Receipt)
	require.Equal(t, enclave.ServingRequests, f.host.Status().State)

	records, err := testutil.OpenReply(f.coalition.Consumer, resp.Reply, f.set.AggregateOutput)
	require.NoError(t, err)
	require.Len(t, records, 1)

	receipt, err := VerifyReceipt(resp.Receipt, f.signingKey)
	require.NoError(t, err)
	require.Equal(t, protocol.RoleConsumer, receipt.Role)
	require.Equal(t, f.coalition.Consumer.PublicKey().Base64(), receipt.Recipient)
	require.Equal(t, "aggregation", receipt.Topic)
	require.NotEmpty(t, receipt.Attestation)

	resp = f.mustPost(f.request(f.coalition.Provenance))
	require.Equal(t, protocol.RoleProvenance, resp.Reply.Role)
	require.Equal(t, enclave.AcceptingData, resp.Status.State)
	require.Zero(t, resp.Status.Providers)

	var list ReceiptListResponse
	require.Equal(t, http.StatusOK, f.get("/receipts", &list))
	require.Len(t, list.Receipts, 2)

	var one protocol.Signed[DeliveryReceipt]
	require.Equal(t, http.StatusOK, f.get("/receipts/"+resp.Receipt.Object.ID, &one))
	_, err = VerifyReceipt(&one, f.signingKey)
	require.NoError(t, err)

	require.Equal(t, http.StatusNotFound, f.get("/receipts/missing", nil))
	require.NoError(t, f.host.Close())
}

func TestHostRejectsMail(t *testing.T) {
	f := newHostFixture(t, nil)

	mail, err := testutil.IdentityMail(f.next(), f.set, f.coalition.Consumer)
	require.NoError(t, err)

	code, body := f.post(mail)
	require.Equal(t, http.StatusConflict, code)
	errResp, err := protocol.UnmarshalMessage[ErrorResponse](body)
	require.NoError(t, err)
	require.Equal(t, string(enclave.KindOutOfOrderMessage), errResp.Code)
	require.Equal(t, mail.Sequence, errResp.Sequence)

	code, _ = f.post(testutil.SchemaMail(f.next(), `{}`))
	require.Equal(t, http.StatusBadRequest, code)

	resp, err := http.Post(f.srv.URL+"/mail", "application/json", bytes.NewReader([]byte("{")))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	require.Equal(t, enclave.AwaitingSchema, f.host.Status().State)
}

func TestHostAttestation(t *testing.T) {
	f := newHostFixture(t, nil)

	var att AttestationResponse
	require.Equal(t, http.StatusOK, f.get("/attestation", &att))
	require.Equal(t, f.channelKey.Base64(), att.ChannelKey)
	require.Equal(t, "dummy-tdx", att.AttestationType)

	_, err := VerifyHostAttestation(DummyMeasurements(), &tdx.DummyProvider{}, &att)
	require.NoError(t, err)

	att.ChannelKey = f.coalition.Consumer.PublicKey().Base64()
	_, err = VerifyHostAttestation(DummyMeasurements(), &tdx.DummyProvider{}, &att)
	require.Error(t, err, "quote must not verify for a substituted channel key")
}

func TestStatusForKind(t *testing.T) {
	require.Equal(t, http.StatusForbidden, StatusForKind(enclave.KindUnknownSender))
	require.Equal(t, http.StatusUnprocessableEntity, StatusForKind(enclave.KindDivisionByZero))
	require.Equal(t, http.StatusConflict, StatusForKind(enclave.KindNoData))
	require.Equal(t, http.StatusBadRequest, StatusForKind(enclave.KindChannelFailure))
	require.Equal(t, http.StatusInternalServerError, StatusForKind("other"))
}
