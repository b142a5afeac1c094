package msghandler

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoListener is returned when subscribing without a listener for the
// events.
var ErrNoListener = errors.New("msghandler: subscription requires a listener")

// UnsupportedBatchError is returned when a subscription method is batched
// with other requests.
type UnsupportedBatchError struct {
	Method string
}

func (err *UnsupportedBatchError) Error() string {
	return fmt.Sprintf("msghandler: %s can't be batched with other requests", err.Method)
}

// DuplicateRegistrationError is returned when a call is made while another
// call with the same correlation key is still waiting.
type DuplicateRegistrationError struct {
	Key string
}

func (err *DuplicateRegistrationError) Error() string {
	return fmt.Sprintf("msghandler: already waiting on response %s", err.Key)
}

// TimeoutError is returned when no response arrived in time.
type TimeoutError struct {
	Key   string
	After time.Duration
}

func (err *TimeoutError) Error() string {
	return fmt.Sprintf("msghandler: timed out after %s waiting on response %s", err.After, err.Key)
}

// Timeout lets TimeoutError be detected the same way as net errors.
func (err *TimeoutError) Timeout() bool { return true }
