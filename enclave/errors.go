package enclave

import (
	"errors"
	"fmt"
)

// ErrorKind is a stable category callers branch on.
type ErrorKind string

const (
	KindSchemaAlreadySet    ErrorKind = "SchemaAlreadySet"
	KindMalformedSchema     ErrorKind = "MalformedSchema"
	KindDuplicateIdentity   ErrorKind = "DuplicateIdentity"
	KindInvalidIdentity     ErrorKind = "InvalidIdentity"
	KindUnknownSender       ErrorKind = "UnknownSender"
	KindUnsupportedDataType ErrorKind = "UnsupportedDataType"
	KindDivisionByZero      ErrorKind = "DivisionByZero"
	KindOutOfOrderMessage   ErrorKind = "OutOfOrderMessage"
	KindInvalidPayload      ErrorKind = "InvalidPayload"
	KindChannelFailure      ErrorKind = "ChannelFailure"
	KindNoData              ErrorKind = "NoData"
)

// Error is returned for every rejected mail. The dispatcher state is
// unchanged and no reply exists when it is returned.
//
// Message is for humans; match on Kind with errors.Is against the sentinels
// below or with errors.As.
type Error struct {
	Kind     ErrorKind
	Sequence uint64
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s (mail %d)", e.Kind, e.Sequence)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e != nil && t.Kind == e.Kind
}

var (
	ErrSchemaAlreadySet    = &Error{Kind: KindSchemaAlreadySet}
	ErrMalformedSchema     = &Error{Kind: KindMalformedSchema}
	ErrDuplicateIdentity   = &Error{Kind: KindDuplicateIdentity}
	ErrInvalidIdentity     = &Error{Kind: KindInvalidIdentity}
	ErrUnknownSender       = &Error{Kind: KindUnknownSender}
	ErrUnsupportedDataType = &Error{Kind: KindUnsupportedDataType}
	ErrDivisionByZero      = &Error{Kind: KindDivisionByZero}
	ErrOutOfOrderMessage   = &Error{Kind: KindOutOfOrderMessage}
	ErrInvalidPayload      = &Error{Kind: KindInvalidPayload}
	ErrChannelFailure      = &Error{Kind: KindChannelFailure}
	ErrNoData              = &Error{Kind: KindNoData}
)

func newError(kind ErrorKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// KindOf returns the kind of a dispatcher error, or "" for foreign errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Kind
}
