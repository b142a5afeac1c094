package jsonrpc2

import "fmt"

// InvalidRequestError is returned when a request can't be constructed. These
// are never sent over the wire.
type InvalidRequestError struct {
	Field  string
	Reason string
}

func (err *InvalidRequestError) Error() string {
	return fmt.Sprintf("jsonrpc2: invalid request %s: %s", err.Field, err.Reason)
}

// EncodingError is returned when a request can't be serialized.
type EncodingError struct {
	cause error
}

func (err *EncodingError) Error() string {
	return fmt.Sprintf("jsonrpc2: failed to encode request: %s", err.cause)
}

func (err *EncodingError) Cause() error  { return err.cause }
func (err *EncodingError) Unwrap() error { return err.cause }

// DecodingError is returned when a payload can't be deserialized into
// responses. For batches, the cause aggregates one error per offending
// element.
type DecodingError struct {
	Reason string
	cause  error
}

func (err *DecodingError) Error() string {
	if err.cause == nil {
		return fmt.Sprintf("jsonrpc2: failed to decode response: %s", err.Reason)
	}
	return fmt.Sprintf("jsonrpc2: failed to decode response: %s: %s", err.Reason, err.cause)
}

func (err *DecodingError) Cause() error  { return err.cause }
func (err *DecodingError) Unwrap() error { return err.cause }

// ElementError describes a malformed member of a batch response.
type ElementError struct {
	Index  int
	Reason string
}

func (err *ElementError) Error() string {
	return fmt.Sprintf("element %d: %s", err.Index, err.Reason)
}
