package jsonrpc2

import (
	"encoding/json"
	"fmt"
)

const Version = "2.0"

const (
	ErrCodeParse          = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternal       = -32603
	ErrCodeServer         = -32000
)

// Subscription method names which get special routing treatment.
const (
	MethodSubscribe    = "eth_subscribe"
	MethodUnsubscribe  = "eth_unsubscribe"
	MethodSubscription = "eth_subscription"
)

// Request is a JSONRPC call. It should be treated as immutable once
// constructed, use WithID to get a copy with a different ID.
type Request struct {
	Version string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      uint64          `json:"id,omitempty"`
}

// HasID returns true if the request already has an ID assigned.
func (req *Request) HasID() bool {
	return req.ID > 0
}

// WithID returns a copy of the request with the given ID.
func (req *Request) WithID(id uint64) *Request {
	r := *req
	r.ID = id
	return &r
}

func (req *Request) String() string {
	return fmt.Sprintf("%s%s#%d", req.Method, req.Params, req.ID)
}

// Response is one of *Success, *ErrorResponse, or *SubscriptionEvent.
type Response interface {
	responseID() uint64
}

// ResponseID returns the ID of the request that the response correlates to.
// Subscription events and responses with a null ID return 0.
func ResponseID(resp Response) uint64 {
	if resp == nil {
		return 0
	}
	return resp.responseID()
}

var (
	_ Response = &Success{}
	_ Response = &ErrorResponse{}
	_ Response = &SubscriptionEvent{}
)

type Success struct {
	ID      uint64          `json:"id"`
	Version string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
}

func (resp *Success) responseID() uint64 { return resp.ID }

// UnmarshalResult decodes the result into v. A null result leaves v untouched.
func (resp *Success) UnmarshalResult(v interface{}) error {
	if v == nil || len(resp.Result) == 0 || string(resp.Result) == "null" {
		return nil
	}
	return json.Unmarshal(resp.Result, v)
}

type ErrorResponse struct {
	ID      uint64       `json:"id"`
	Version string       `json:"jsonrpc"`
	Error   *ErrResponse `json:"error"`
}

func (resp *ErrorResponse) responseID() uint64 { return resp.ID }

// ErrResponse is the error object of an ErrorResponse.
type ErrResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (err *ErrResponse) Error() string {
	return fmt.Sprintf("%d: %s", err.Code, err.Message)
}

// ErrorCode returns the JSONRPC error code.
func (err *ErrResponse) ErrorCode() int {
	return err.Code
}

// SubscriptionEvent is a server-pushed eth_subscription notification.
type SubscriptionEvent struct {
	Subscription string          `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

func (ev *SubscriptionEvent) responseID() uint64 { return 0 }
