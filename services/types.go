package services

import (
	"net/http"

	"github.com/chhavsingh/180protocol/enclave"
	"github.com/chhavsingh/180protocol/protocol"
)

// MailResponse is returned for every accepted mail.
type MailResponse struct {
	Status  enclave.Status                     `json:"status"`
	Reply   *protocol.Reply                    `json:"reply,omitempty"`
	Receipt *protocol.Signed[DeliveryReceipt] `json:"receipt,omitempty"`
}

// ErrorResponse is the body of every rejected request.
type ErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Sequence uint64 `json:"sequence,omitempty"`
}

// AttestationResponse binds the enclave channel key and the receipt signing
// key to a TEE quote.
type AttestationResponse struct {
	AttestationType string `json:"attestation_type,omitempty"`
	ChannelKey      string `json:"channel_key"`
	SigningKey      string `json:"signing_key"`
	Quote           []byte `json:"quote,omitempty"`
}

// ReceiptListResponse lists stored receipts, oldest first.
type ReceiptListResponse struct {
	Receipts []*protocol.Signed[DeliveryReceipt] `json:"receipts"`
}

// StatusForKind maps a dispatcher error kind to an HTTP status.
func StatusForKind(kind enclave.ErrorKind) int {
	switch kind {
	case enclave.KindSchemaAlreadySet, enclave.KindDuplicateIdentity,
		enclave.KindOutOfOrderMessage, enclave.KindNoData:
		return http.StatusConflict
	case enclave.KindUnknownSender:
		return http.StatusForbidden
	case enclave.KindUnsupportedDataType, enclave.KindDivisionByZero:
		return http.StatusUnprocessableEntity
	case enclave.KindMalformedSchema, enclave.KindInvalidIdentity,
		enclave.KindInvalidPayload, enclave.KindChannelFailure:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
