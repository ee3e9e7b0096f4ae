// Package apperr defines the error kinds shared by the console's components.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindInvalidInput             Kind = "invalid_input"
	KindInvalidConnectionString  Kind = "invalid_connection_string"
	KindSessionNotFound          Kind = "session_not_found"
	KindDuplicateSession         Kind = "duplicate_session"
	KindHandshakeTimeout         Kind = "handshake_timeout"
	KindInvalidHandshakeResponse Kind = "invalid_handshake_response"
	KindCommandRejected          Kind = "command_rejected"
	KindBackendOperationFailed   Kind = "backend_operation_failed"
	KindTransportLost            Kind = "transport_lost"
	KindKeyNotFound              Kind = "key_not_found"
	KindInternal                 Kind = "internal"
)

type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap attaches a kind to err. An err that already carries a kind keeps it.
func Wrap(kind Kind, op, message string, err error) error {
	if err == nil {
		return nil
	}

	var typed *Error
	if errors.As(err, &typed) {
		return err
	}

	return &Error{Kind: kind, Op: op, Message: message, Cause: err}
}

// KindOf returns the kind of the first *Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}

// Message returns the caller-facing text of err.
func Message(err error) string {
	var typed *Error
	if errors.As(err, &typed) {
		if typed.Cause != nil {
			return typed.Message + ": " + typed.Cause.Error()
		}
		return typed.Message
	}
	return err.Error()
}

// HTTPStatus maps a kind to the status code the API answers with.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidInput, KindInvalidConnectionString, KindSessionNotFound:
		return http.StatusBadRequest
	case KindCommandRejected:
		return http.StatusForbidden
	case KindKeyNotFound:
		return http.StatusNotFound
	case KindDuplicateSession:
		return http.StatusConflict
	case KindHandshakeTimeout:
		return http.StatusGatewayTimeout
	case KindInvalidHandshakeResponse, KindTransportLost:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
