package bayeux

import (
	"fmt"
	"reflect"
)

// ActionError is returned when server advice names a reconnect action this
// client does not understand.
type ActionError struct {
	Action string
}

func (e ActionError) Error() string {
	return fmt.Sprintf("bayeux: unknown advice action %q", e.Action)
}

func (e ActionError) Is(target error) bool {
	t, ok := target.(ActionError)
	return ok && t == e
}

// BatchError is returned by EndBatch when called without a matching
// StartBatch.
type BatchError struct{}

func (e BatchError) Error() string { return "bayeux: end batch without a matching start batch" }

func (e BatchError) Is(target error) bool {
	_, ok := target.(BatchError)
	return ok
}

// CommunicationError wraps an opaque transport-level failure that is
// neither a timeout nor an HTTP status error.
type CommunicationError struct {
	Cause error
}

func (e CommunicationError) Error() string {
	return fmt.Sprintf("bayeux: communication error: %s", e.Cause)
}

func (e CommunicationError) Unwrap() error { return e.Cause }

func (e CommunicationError) Is(target error) bool {
	t, ok := target.(CommunicationError)
	if !ok {
		return false
	}
	return reflect.DeepEqual(e.Cause, t.Cause)
}

// ConnectionStringError is returned when a transport is configured with a
// URL that has no host.
type ConnectionStringError struct {
	Transport string
	Value     string
}

func (e ConnectionStringError) Error() string {
	return fmt.Sprintf("bayeux: invalid connection string %q for transport %q", e.Value, e.Transport)
}

func (e ConnectionStringError) Is(target error) bool {
	t, ok := target.(ConnectionStringError)
	return ok && t == e
}

// ServerError is returned when the transport receives a non-200 HTTP
// response from the Bayeux server.
type ServerError struct {
	Code int
}

func (e ServerError) Error() string {
	return fmt.Sprintf("bayeux: server returned HTTP status %d", e.Code)
}

func (e ServerError) Is(target error) bool {
	t, ok := target.(ServerError)
	return ok && t == e
}

// StatusError is returned when an operation is attempted while the Session
// is in a status that disallows it.
type StatusError struct {
	Status Status
}

func (e StatusError) Error() string {
	return fmt.Sprintf("bayeux: operation not permitted in status %q", e.Status)
}

func (e StatusError) Is(target error) bool {
	t, ok := target.(StatusError)
	return ok && t == e
}

// TimeoutError is returned when the transport's network request exceeds
// its deadline (an HTTP 599-class failure in the reference implementation).
type TimeoutError struct{}

func (e TimeoutError) Error() string { return "bayeux: network timeout" }

func (e TimeoutError) Is(target error) bool {
	_, ok := target.(TimeoutError)
	return ok
}

// TransportNegotiationError is returned when no transport accepted by the
// client is also accepted by the server.
type TransportNegotiationError struct {
	ClientTypes []string
	ServerTypes []string
}

func (e TransportNegotiationError) Error() string {
	return fmt.Sprintf(
		"bayeux: could not negotiate a transport: client supports %v, server supports %v",
		e.ClientTypes, e.ServerTypes,
	)
}

func (e TransportNegotiationError) Is(target error) bool {
	t, ok := target.(TransportNegotiationError)
	if !ok {
		return false
	}
	return reflect.DeepEqual(e.ClientTypes, t.ClientTypes) && reflect.DeepEqual(e.ServerTypes, t.ServerTypes)
}

// errInvalidSelector is returned by RemoveListener/Unsubscribe/
// UnregisterListener when the caller provides zero or both of the mutually
// exclusive id/function selectors.
type errInvalidSelector struct {
	op string
}

func (e errInvalidSelector) Error() string {
	return fmt.Sprintf("bayeux: %s requires exactly one of id or function", e.op)
}

// MessageUnparsableError is returned when a response body cannot be decoded
// as a Bayeux message or message array.
type MessageUnparsableError struct {
	Cause error
}

func (e MessageUnparsableError) Error() string {
	return fmt.Sprintf("bayeux: could not parse message: %s", e.Cause)
}

func (e MessageUnparsableError) Unwrap() error { return e.Cause }

// ErrorFieldError is returned by Message.ParseError when the message's
// "error" field is not in the "<code>:<args>:<message>" wire format.
type ErrorFieldError struct {
	Field string
}

func (e ErrorFieldError) Error() string {
	return fmt.Sprintf("bayeux: malformed error field %q", e.Field)
}
