package client

import (
	"errors"
	"fmt"
)

// ErrCallConsumed is returned when a Call is sent more than once.
var ErrCallConsumed = errors.New("client: call was already sent")

// ErrSubscriptionsUnsupported is returned when subscribing over a transport
// that can't deliver server-pushed events.
var ErrSubscriptionsUnsupported = errors.New("client: subscriptions require a websocket transport")

// DuplicateIDError is returned when requests of the same batch share an ID.
type DuplicateIDError struct {
	ID uint64
}

func (err *DuplicateIDError) Error() string {
	return fmt.Sprintf("client: duplicate request id %d", err.ID)
}

// MissingResponseError is returned when the node's reply has no response for
// one of the requests.
type MissingResponseError struct {
	ID uint64
}

func (err *MissingResponseError) Error() string {
	return fmt.Sprintf("client: missing response for request id %d", err.ID)
}

// UnexpectedResultError is returned when a response result doesn't have the
// expected shape.
type UnexpectedResultError struct {
	Method string
	Result string
}

func (err *UnexpectedResultError) Error() string {
	return fmt.Sprintf("client: unexpected result for %s: %s", err.Method, err.Result)
}
