package client

import (
	"context"

	"github.com/vipnode/ethrpc/jsonrpc2"
)

// Call accumulates requests to be sent together. A Call is not safe for
// concurrent use, and can be sent only once.
type Call struct {
	client   *Client
	requests []*jsonrpc2.Request
	err      error
	sent     bool
}

// BuildCall starts a Call with one request.
func (c *Client) BuildCall(method string, params ...interface{}) *Call {
	call := &Call{client: c}
	return call.AddRequest(method, params...)
}

// AddRequest appends a request with a newly allocated ID. An invalid request
// is reported when the call is sent.
func (call *Call) AddRequest(method string, params ...interface{}) *Call {
	if call.err != nil {
		return call
	}
	req, err := jsonrpc2.NewRequestWithID(call.client.NextID(), method, params...)
	if err != nil {
		call.err = err
		return call
	}
	call.requests = append(call.requests, req)
	return call
}

// Requests returns the requests added so far.
func (call *Call) Requests() []*jsonrpc2.Request {
	return call.requests
}

// Send sends the requests, as a batch if there is more than one, and returns
// the responses in the order the requests were added.
func (call *Call) Send(ctx context.Context) ([]jsonrpc2.Response, error) {
	if call.sent {
		return nil, ErrCallConsumed
	}
	call.sent = true
	if call.err != nil {
		return nil, call.err
	}
	return call.client.SendRequests(ctx, call.requests...)
}
