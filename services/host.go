package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/atomic"

	"github.com/chhavsingh/180protocol/crypto"
	"github.com/chhavsingh/180protocol/enclave"
	"github.com/chhavsingh/180protocol/protocol"
)

// HostConfig wires an EnclaveHost.
type HostConfig struct {
	Dispatcher  *enclave.Dispatcher
	ChannelKey  crypto.PublicKey
	SigningKey  crypto.PrivateKey
	Attestation TEEProvider
	Receipts    ReceiptStore
	Forwarder   *ReplyForwarder
	Protocol    *protocol.Config
	CORSOrigins []string
	Log         *slog.Logger
}

// EnclaveHost is the untrusted side of the enclave. It feeds mail into the
// dispatcher one at a time, signs and stores receipts for replies and
// relays them.
type EnclaveHost struct {
	cfg         HostConfig
	log         *slog.Logger
	attestation *AttestationResponse

	// mu is held for the whole of ProcessMessage.
	mu     sync.Mutex
	status atomic.Pointer[enclave.Status]

	forwards sync.WaitGroup
}

// NewEnclaveHost attests the channel key and prepares the routes.
func NewEnclaveHost(cfg HostConfig) (*EnclaveHost, error) {
	if cfg.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if cfg.Receipts == nil {
		cfg.Receipts = NewInMemoryStore()
	}
	if cfg.Protocol == nil {
		cfg.Protocol = protocol.DefaultConfig()
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	signingPub, err := cfg.SigningKey.PublicKey()
	if err != nil {
		return nil, err
	}
	att, err := AttestHost(cfg.Attestation, cfg.ChannelKey, signingPub)
	if err != nil {
		return nil, err
	}

	h := &EnclaveHost{cfg: cfg, log: cfg.Log, attestation: att}
	st := cfg.Dispatcher.Status()
	h.status.Store(&st)
	return h, nil
}

// RegisterRoutes registers the host API.
func (h *EnclaveHost) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		if len(h.cfg.CORSOrigins) > 0 {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins: h.cfg.CORSOrigins,
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"Accept", "Content-Type"},
				MaxAge:         300,
			}))
		}

		r.Post("/mail", h.handleMail)
		r.Get("/state", h.handleState)
		r.Get("/attestation", h.handleAttestation)
		r.Get("/receipts", h.handleListReceipts)
		r.Get("/receipts/{id}", h.handleGetReceipt)
	})
}

// Deliver passes one mail to the dispatcher. For replies it also signs,
// stores and forwards a receipt.
func (h *EnclaveHost) Deliver(ctx context.Context, mail *protocol.Mail) (*MailResponse, error) {
	h.mu.Lock()
	reply, err := h.cfg.Dispatcher.ProcessMessage(mail)
	st := h.cfg.Dispatcher.Status()
	h.mu.Unlock()
	h.status.Store(&st)

	if err != nil {
		return nil, err
	}

	resp := &MailResponse{Status: st, Reply: reply}
	if reply == nil {
		return resp, nil
	}

	receipt, err := NewReceipt(h.cfg.SigningKey, mail.Sequence, h.cfg.Protocol.Topic, h.attestation.Quote, reply)
	if err != nil {
		// The dispatcher has already moved on; the reply is still returned.
		h.log.Error("signing receipt failed", "sequence", mail.Sequence, "err", err)
		return resp, nil
	}
	resp.Receipt = receipt

	if err := h.cfg.Receipts.SaveReceipt(ctx, receipt); err != nil {
		h.log.Error("storing receipt failed", "receipt", receipt.Object.ID, "err", err)
	}
	h.forward(receipt)
	return resp, nil
}

func (h *EnclaveHost) forward(receipt *protocol.Signed[DeliveryReceipt]) {
	if h.cfg.Forwarder == nil {
		return
	}
	h.forwards.Add(1)
	go func() {
		defer h.forwards.Done()
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := h.cfg.Forwarder.Forward(ctx, receipt); err != nil {
			h.log.Warn("reply forward failed", "err", err)
		}
	}()
}

// Status returns the last observed dispatcher status without blocking on
// mail in flight.
func (h *EnclaveHost) Status() enclave.Status {
	return *h.status.Load()
}

// Close waits for pending forwards and closes the receipt store.
func (h *EnclaveHost) Close() error {
	h.forwards.Wait()
	return h.cfg.Receipts.Close()
}

func (h *EnclaveHost) handleMail(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Protocol.MaxMailBytes)
	mail, err := protocol.DecodeMessage[protocol.Mail](r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, &ErrorResponse{Code: "InvalidRequest", Message: err.Error()})
		return
	}

	resp, err := h.Deliver(r.Context(), mail)
	if err != nil {
		var e *enclave.Error
		if !errors.As(err, &e) {
			writeJSON(w, http.StatusInternalServerError, &ErrorResponse{Code: "Internal", Message: err.Error()})
			return
		}
		writeJSON(w, StatusForKind(e.Kind), &ErrorResponse{
			Code:     string(e.Kind),
			Message:  e.Error(),
			Sequence: e.Sequence,
		})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *EnclaveHost) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Status())
}

func (h *EnclaveHost) handleAttestation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.attestation)
}

func (h *EnclaveHost) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := h.cfg.Receipts.ListReceipts(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, &ErrorResponse{Code: "Internal", Message: err.Error()})
		return
	}
	if receipts == nil {
		receipts = []*protocol.Signed[DeliveryReceipt]{}
	}
	writeJSON(w, http.StatusOK, &ReceiptListResponse{Receipts: receipts})
}

func (h *EnclaveHost) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.cfg.Receipts.LoadReceipt(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, ErrReceiptNotFound):
		writeJSON(w, http.StatusNotFound, &ErrorResponse{Code: "NotFound", Message: err.Error()})
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, &ErrorResponse{Code: "Internal", Message: err.Error()})
	default:
		writeJSON(w, http.StatusOK, receipt)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
