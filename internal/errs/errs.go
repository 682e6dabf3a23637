// Package errs holds the error taxonomy shared by adapters, the unified
// bridge and the orchestrator.
package errs

import (
	"context"
	"errors"
	"fmt"
)

// Class groups error kinds by how the caller is expected to react.
type Class string

const (
	ClassConfiguration       Class = "configuration"
	ClassRequestConstruction Class = "request_construction"
	ClassTransport           Class = "transport"
	ClassResponseDecode      Class = "response_decode"
	ClassBusinessDecline     Class = "business_decline"
	ClassCapabilityGap       Class = "capability_gap"
	ClassInternal            Class = "internal"
)

// Kind is the specific failure.
type Kind string

const (
	KindMissingRequiredField          Kind = "missing_required_field"
	KindNotImplemented                Kind = "not_implemented"
	KindNotSupported                  Kind = "not_supported"
	KindResponseDeserializationFailed Kind = "response_deserialization_failed"
	KindFailedToObtainAuthType        Kind = "failed_to_obtain_auth_type"
	KindInvalidConnectorConfig        Kind = "invalid_connector_config"
	KindRequestEncodingFailed         Kind = "request_encoding_failed"
	KindTransport                     Kind = "transport_failure"
	KindTimeout                       Kind = "request_timeout"
	KindDeclined                      Kind = "declined"
	KindPersistenceFailed             Kind = "persistence_failed"
	KindInternal                      Kind = "internal"
)

var kindClass = map[Kind]Class{
	KindMissingRequiredField:          ClassRequestConstruction,
	KindNotImplemented:                ClassCapabilityGap,
	KindNotSupported:                  ClassCapabilityGap,
	KindResponseDeserializationFailed: ClassResponseDecode,
	KindFailedToObtainAuthType:        ClassConfiguration,
	KindInvalidConnectorConfig:        ClassConfiguration,
	KindRequestEncodingFailed:         ClassRequestConstruction,
	KindTransport:                     ClassTransport,
	KindTimeout:                       ClassTransport,
	KindDeclined:                      ClassBusinessDecline,
	KindPersistenceFailed:             ClassInternal,
	KindInternal:                      ClassInternal,
}

// Error is the canonical error value.
type Error struct {
	Kind      Kind
	Message   string
	Field     string
	Connector string
	Flow      string
	Err       error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Connector != "" {
		msg = e.Connector + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Class of the error kind.
func (e *Error) Class() Class {
	if c, ok := kindClass[e.Kind]; ok {
		return c
	}
	return ClassInternal
}

// Retryable reports whether the surrounding scheduler may retry.
func (e *Error) Retryable() bool { return e.Class() == ClassTransport }

// WithConnector annotates the error in place and returns it.
func (e *Error) WithConnector(connector, flow string) *Error {
	if e.Connector == "" {
		e.Connector = connector
	}
	if e.Flow == "" {
		e.Flow = flow
	}
	return e
}

func MissingRequiredField(field string) *Error {
	return &Error{Kind: KindMissingRequiredField, Field: field, Message: fmt.Sprintf("missing required field: %s", field)}
}

func NotImplemented(what string) *Error {
	return &Error{Kind: KindNotImplemented, Message: fmt.Sprintf("%s is not implemented", what)}
}

func NotSupported(what, connector string) *Error {
	return &Error{Kind: KindNotSupported, Connector: connector, Message: fmt.Sprintf("%s is not supported", what)}
}

func ResponseDeserializationFailed(err error) *Error {
	return &Error{Kind: KindResponseDeserializationFailed, Message: "failed to deserialize connector response", Err: err}
}

func FailedToObtainAuthType() *Error {
	return &Error{Kind: KindFailedToObtainAuthType, Message: "failed to obtain connector auth type"}
}

func InvalidConnectorConfig(field string) *Error {
	return &Error{Kind: KindInvalidConnectorConfig, Field: field, Message: fmt.Sprintf("invalid connector config: %s", field)}
}

func RequestEncodingFailed(err error) *Error {
	return &Error{Kind: KindRequestEncodingFailed, Message: "failed to encode connector request", Err: err}
}

func PersistenceFailed(op string, err error) *Error {
	return &Error{Kind: KindPersistenceFailed, Message: op, Err: err}
}

func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// Transport wraps a network failure, classifying deadline and
// cancellation as timeouts.
func Transport(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Error{Kind: KindTimeout, Message: "request timed out", Err: err}
	}
	return &Error{Kind: KindTransport, Message: "transport failure", Err: err}
}

// As extracts an *Error from err. Foreign errors become internal errors.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal("unexpected error", err)
}

// IsKind reports whether err carries kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}
