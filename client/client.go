// Package client sends JSONRPC requests to an Ethereum node over any of the
// supported transports, singly or in batches.
package client

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/vipnode/ethrpc/jsonrpc2"
	"github.com/vipnode/ethrpc/msghandler"
	"github.com/vipnode/ethrpc/transport"
	"github.com/vipnode/ethrpc/transport/httptransport"
	"github.com/vipnode/ethrpc/transport/ipc"
	"github.com/vipnode/ethrpc/transport/ws"
)

// Service is anything that can make a remote call and decode its result.
type Service interface {
	Call(ctx context.Context, result interface{}, method string, params ...interface{}) error
}

var _ Service = &Client{}

// Client is safe for concurrent use. Request IDs are allocated from a
// counter that is unique for the lifetime of the client.
type Client struct {
	nextID   uint64
	kind     transport.Kind
	endpoint string
	timeout  time.Duration

	sync    transport.Sync
	async   transport.Async
	handler *msghandler.Handler
}

// New returns a Client over a transport of the given kind, initialized from
// cfg. For WebSocket, inbound frames are routed through a message handler
// before reaching cfg.Dispatch, which becomes optional.
func New(ctx context.Context, kind transport.Kind, cfg transport.Config) (*Client, error) {
	c := &Client{
		kind:     kind,
		endpoint: endpointOf(kind, cfg),
		timeout:  cfg.TimeoutOrDefault(),
	}

	var err error
	switch kind {
	case transport.HTTP:
		c.sync, err = httptransport.New(cfg)
	case transport.IPC:
		c.sync, err = ipc.New(ctx, cfg)
	case transport.Local:
		c.sync, err = transport.NewLocal(cfg)
	case transport.WebSocket:
		c.handler = &msghandler.Handler{}
		dispatch := cfg.Dispatch
		cfg.Dispatch = func(frame []byte) {
			c.handler.HandleInbound(frame)
			if dispatch != nil {
				dispatch(frame)
			}
		}
		c.async, err = ws.New(ctx, cfg)
	default:
		return nil, &transport.ConfigError{Field: "Kind", Reason: "unsupported transport: " + kind.String()}
	}
	if err != nil {
		return nil, err
	}
	logger.Debugf("new %s client for %s", kind, c.endpoint)
	return c, nil
}

func endpointOf(kind transport.Kind, cfg transport.Config) string {
	if kind == transport.IPC {
		return cfg.SocketPath
	}
	return cfg.EndpointURL
}

// Kind returns the kind of transport the client uses.
func (c *Client) Kind() transport.Kind {
	return c.kind
}

// Endpoint returns the URL or socket path of the node.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Handler returns the message handler of asynchronous clients, nil otherwise.
func (c *Client) Handler() *msghandler.Handler {
	return c.handler
}

// NextID allocates a request ID.
func (c *Client) NextID() uint64 {
	return atomic.AddUint64(&c.nextID, 1)
}

// Send sends the requests of call as a unit.
func (c *Client) Send(ctx context.Context, call *Call) ([]jsonrpc2.Response, error) {
	return call.Send(ctx)
}

// SendRequests sends a single request, or a batch if more than one is given,
// and returns the responses in the order of the requests. Requests without
// an ID are assigned one. If the exchange fails, no responses are returned.
func (c *Client) SendRequests(ctx context.Context, reqs ...*jsonrpc2.Request) ([]jsonrpc2.Response, error) {
	return c.send(ctx, reqs, nil)
}

func (c *Client) send(ctx context.Context, reqs []*jsonrpc2.Request, listener chan<- *jsonrpc2.SubscriptionEvent) ([]jsonrpc2.Response, error) {
	if len(reqs) == 0 {
		return []jsonrpc2.Response{}, nil
	}
	reqs, err := c.assignIDs(reqs)
	if err != nil {
		return nil, err
	}

	var payload []byte
	if len(reqs) == 1 {
		payload, err = jsonrpc2.EncodeRequest(reqs[0])
	} else {
		payload, err = jsonrpc2.EncodeBatch(reqs)
	}
	if err != nil {
		return nil, err
	}

	var resps []jsonrpc2.Response
	if c.async != nil {
		resps, err = c.handler.Call(ctx, c.async, reqs, payload, c.timeout, listener)
		if err != nil {
			return nil, err
		}
	} else {
		out, err := c.sync.Send(ctx, payload)
		if err != nil {
			return nil, err
		}
		resps, _, err = jsonrpc2.Decode(out)
		if err != nil {
			return nil, err
		}
	}
	return correlate(reqs, resps)
}

// assignIDs checks that explicit IDs are unique and returns a copy of reqs
// with the missing IDs filled in. Explicit IDs are never changed.
func (c *Client) assignIDs(reqs []*jsonrpc2.Request) ([]*jsonrpc2.Request, error) {
	seen := make(map[uint64]struct{}, len(reqs))
	for _, req := range reqs {
		if !req.HasID() {
			continue
		}
		if _, ok := seen[req.ID]; ok {
			return nil, &DuplicateIDError{ID: req.ID}
		}
		seen[req.ID] = struct{}{}
	}

	out := make([]*jsonrpc2.Request, len(reqs))
	for i, req := range reqs {
		if req.HasID() {
			out[i] = req
			continue
		}
		id := c.NextID()
		for {
			if _, ok := seen[id]; !ok {
				break
			}
			id = c.NextID()
		}
		seen[id] = struct{}{}
		out[i] = req.WithID(id)
	}
	return out, nil
}

// correlate orders resps to match reqs by ID.
func correlate(reqs []*jsonrpc2.Request, resps []jsonrpc2.Response) ([]jsonrpc2.Response, error) {
	// A node that can't parse a single request answers with a null ID.
	if len(reqs) == 1 && len(resps) == 1 {
		if errResp, ok := resps[0].(*jsonrpc2.ErrorResponse); ok && errResp.ID == 0 {
			return resps, nil
		}
	}

	byID := make(map[uint64]jsonrpc2.Response, len(resps))
	for _, resp := range resps {
		byID[jsonrpc2.ResponseID(resp)] = resp
	}
	ordered := make([]jsonrpc2.Response, 0, len(reqs))
	for _, req := range reqs {
		resp, ok := byID[req.ID]
		if !ok {
			return nil, &MissingResponseError{ID: req.ID}
		}
		ordered = append(ordered, resp)
	}
	return ordered, nil
}

// Request sends a single request and returns its response.
func (c *Client) Request(ctx context.Context, method string, params ...interface{}) (jsonrpc2.Response, error) {
	resps, err := c.BuildCall(method, params...).Send(ctx)
	if err != nil {
		return nil, err
	}
	return resps[0], nil
}

// Call sends a single request and decodes its result into result. An error
// response is returned as a *jsonrpc2.ErrResponse.
func (c *Client) Call(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	resp, err := c.Request(ctx, method, params...)
	if err != nil {
		return err
	}
	return decodeResult(resp, result)
}

func decodeResult(resp jsonrpc2.Response, result interface{}) error {
	switch resp := resp.(type) {
	case *jsonrpc2.ErrorResponse:
		return resp.Error
	case *jsonrpc2.Success:
		return resp.UnmarshalResult(result)
	}
	return nil
}

// Subscribe calls eth_subscribe with params and returns the subscription ID.
// Events of the subscription are sent to events until it's unsubscribed;
// events that don't fit in the channel are dropped.
func (c *Client) Subscribe(ctx context.Context, events chan<- *jsonrpc2.SubscriptionEvent, params ...interface{}) (string, error) {
	if c.async == nil {
		return "", ErrSubscriptionsUnsupported
	}
	req, err := jsonrpc2.NewRequestWithID(c.NextID(), jsonrpc2.MethodSubscribe, params...)
	if err != nil {
		return "", err
	}
	resps, err := c.send(ctx, []*jsonrpc2.Request{req}, events)
	if err != nil {
		return "", err
	}
	var sub string
	if err := decodeResult(resps[0], &sub); err != nil {
		return "", err
	}
	if sub == "" {
		return "", &UnexpectedResultError{Method: jsonrpc2.MethodSubscribe, Result: "empty subscription id"}
	}
	logger.Debugf("subscribed to %v as %s", params, sub)
	return sub, nil
}

// Unsubscribe calls eth_unsubscribe, and returns whether the node knew the
// subscription.
func (c *Client) Unsubscribe(ctx context.Context, subscription string) (bool, error) {
	if c.async == nil {
		return false, ErrSubscriptionsUnsupported
	}
	var ok bool
	if err := c.Call(ctx, &ok, jsonrpc2.MethodUnsubscribe, subscription); err != nil {
		return false, err
	}
	return ok, nil
}

// Close closes the underlying transport.
func (c *Client) Close() error {
	if c.async != nil {
		return c.async.Close()
	}
	return c.sync.Close()
}
