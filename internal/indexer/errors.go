package indexer

import (
	"context"
	"errors"
	"fmt"
	"net"

	"nhooyr.io/websocket"
)

// RPCError is returned when the server responds with a JSON-RPC error.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d", e.Code)
}

// DecodeError marks a payload the client could not interpret. Retrying
// will not help: the server is speaking a different protocol.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }

// Class is the retry classification of a client error.
type Class int

const (
	// ClassTransient errors are worth retrying with backoff: network
	// failures, timeouts, server overload, dropped connections.
	ClassTransient Class = iota
	// ClassPermanent errors will not go away on retry: protocol
	// mismatches, client-side request errors, cancellation.
	ClassPermanent
)

// String returns the class name.
func (c Class) String() string {
	if c == ClassPermanent {
		return "permanent"
	}
	return "transient"
}

// Classify decides whether an error from this client is worth
// retrying. Unknown errors default to transient: most failures on a
// long-lived stream are connectivity blips, and permanent errors are
// recognized explicitly.
func Classify(err error) Class {
	if err == nil {
		return ClassTransient
	}

	// Caller gave up: not retryable.
	if errors.Is(err, context.Canceled) {
		return ClassPermanent
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}

	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return ClassPermanent
	}
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		return ClassPermanent
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if statusErr.Code >= 500 {
			return ClassTransient
		}
		return ClassPermanent
	}

	var closeErr websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.StatusPolicyViolation,
			websocket.StatusUnsupportedData,
			websocket.StatusProtocolError:
			return ClassPermanent
		default:
			// Normal closure, going away, restart: reconnect.
			return ClassTransient
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassTransient
	}

	return ClassTransient
}
