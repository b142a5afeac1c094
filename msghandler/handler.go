// Package msghandler correlates the frames arriving on an asynchronous
// transport with the calls waiting on them, and routes subscription events to
// their listeners.
package msghandler

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vipnode/ethrpc/jsonrpc2"
)

// Transmitter sends an encoded payload without waiting for the response.
type Transmitter interface {
	Transmit(ctx context.Context, payload []byte) error
}

// TransmitFunc is an adapter to allow the use of ordinary functions as
// Transmitters.
type TransmitFunc func(ctx context.Context, payload []byte) error

func (fn TransmitFunc) Transmit(ctx context.Context, payload []byte) error {
	return fn(ctx, payload)
}

type callKind int

const (
	plainCall callKind = iota
	subscribeCall
	unsubscribeCall
)

type waiter struct {
	kind     callKind
	size     int
	ch       chan []jsonrpc2.Response
	listener chan<- *jsonrpc2.SubscriptionEvent
	// subscription being closed, for unsubscribe calls
	subscription string
	created      time.Time
}

// Handler keeps track of outstanding calls and active subscriptions. The
// zero value is ready to use.
type Handler struct {
	mu      sync.Mutex
	pending map[string]*waiter
	subs    map[string][]chan<- *jsonrpc2.SubscriptionEvent
}

// Key returns the correlation key for a set of request IDs. It does not
// depend on the order of the IDs, so a batch response in any order maps to
// the same key as its request.
func Key(ids ...uint64) string {
	sorted := append([]uint64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	parts := make([]string, 0, len(sorted))
	for _, id := range sorted {
		parts = append(parts, strconv.FormatUint(id, 10))
	}
	return strings.Join(parts, ",")
}

func classify(reqs []*jsonrpc2.Request) (callKind, error) {
	kind := plainCall
	for _, req := range reqs {
		switch req.Method {
		case jsonrpc2.MethodSubscribe:
			kind = subscribeCall
		case jsonrpc2.MethodUnsubscribe:
			kind = unsubscribeCall
		default:
			continue
		}
		if len(reqs) > 1 {
			return plainCall, &UnsupportedBatchError{Method: req.Method}
		}
	}
	return kind, nil
}

// Call transmits payload, the encoding of reqs, and waits for the matching
// response frame. Single requests yield one response. The wait ends after
// timeout (if positive), or when ctx is done.
//
// For eth_subscribe calls, listener receives the subscription's events once
// the node confirms it.
func (h *Handler) Call(ctx context.Context, tx Transmitter, reqs []*jsonrpc2.Request, payload []byte, timeout time.Duration, listener chan<- *jsonrpc2.SubscriptionEvent) ([]jsonrpc2.Response, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	kind, err := classify(reqs)
	if err != nil {
		return nil, err
	}

	w := &waiter{
		kind:    kind,
		size:    len(reqs),
		ch:      make(chan []jsonrpc2.Response, 1),
		created: time.Now(),
	}
	switch kind {
	case subscribeCall:
		if listener == nil {
			return nil, ErrNoListener
		}
		w.listener = listener
	case unsubscribeCall:
		var params []string
		if err := json.Unmarshal(reqs[0].Params, &params); err != nil || len(params) != 1 {
			return nil, &jsonrpc2.InvalidRequestError{Field: "params", Reason: "expected a single subscription id"}
		}
		w.subscription = params[0]
	}

	ids := make([]uint64, 0, len(reqs))
	for _, req := range reqs {
		ids = append(ids, req.ID)
	}
	key := Key(ids...)
	if err := h.register(key, w); err != nil {
		return nil, err
	}
	defer h.unregister(key, w)

	if err := tx.Transmit(ctx, payload); err != nil {
		return nil, err
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case resps := <-w.ch:
		return resps, nil
	case <-expired:
		return nil, &TimeoutError{Key: key, After: timeout}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Handler) register(key string, w *waiter) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pending == nil {
		h.pending = map[string]*waiter{}
	}
	if _, ok := h.pending[key]; ok {
		return &DuplicateRegistrationError{Key: key}
	}
	h.pending[key] = w
	return nil
}

// unregister removes key if it still belongs to w.
func (h *Handler) unregister(key string, w *waiter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pending[key] == w {
		delete(h.pending, key)
	}
}

// HandleInbound routes one inbound frame. Frames that can't be decoded or
// that match no outstanding call or subscription are dropped.
func (h *Handler) HandleInbound(frame []byte) {
	resps, _, err := jsonrpc2.Decode(frame)
	if err != nil {
		logger.Warningf("dropping undecodable frame: %s", err)
		return
	}
	if len(resps) == 0 {
		return
	}

	if ev, ok := resps[0].(*jsonrpc2.SubscriptionEvent); ok && len(resps) == 1 {
		h.publish(ev)
		return
	}

	ids := make([]uint64, 0, len(resps))
	for _, resp := range resps {
		ids = append(ids, jsonrpc2.ResponseID(resp))
	}
	key := Key(ids...)

	h.mu.Lock()
	w, ok := h.pending[key]
	if !ok && len(resps) == 1 {
		if errResp, isErr := resps[0].(*jsonrpc2.ErrorResponse); isErr && errResp.ID == 0 {
			if soleKey, sole, found := h.soleSingle(); found {
				key, w, ok = soleKey, sole, true
			}
		}
	}
	if !ok {
		h.mu.Unlock()
		logger.Debugf("dropping orphaned response %s", key)
		return
	}
	delete(h.pending, key)
	// Subscription routes change before the caller is released, so that no
	// event can arrive ahead of its route.
	if success, ok := resps[0].(*jsonrpc2.Success); ok {
		switch w.kind {
		case subscribeCall:
			var sub string
			if err := success.UnmarshalResult(&sub); err != nil || sub == "" {
				logger.Warningf("eth_subscribe response %s has no subscription id", key)
				break
			}
			if h.subs == nil {
				h.subs = map[string][]chan<- *jsonrpc2.SubscriptionEvent{}
			}
			h.subs[sub] = append(h.subs[sub], w.listener)
		case unsubscribeCall:
			var closed bool
			if err := success.UnmarshalResult(&closed); err == nil && closed {
				delete(h.subs, w.subscription)
			}
		}
	}
	h.mu.Unlock()

	w.ch <- resps
}

// soleSingle returns the waiter of the only outstanding single request. A
// node that can't parse a request answers with a null id, which can only be
// attributed when no other single request is waiting. Must be called with
// h.mu held.
func (h *Handler) soleSingle() (string, *waiter, bool) {
	var (
		key   string
		found *waiter
	)
	for k, w := range h.pending {
		if w.size != 1 {
			continue
		}
		if found != nil {
			logger.Warning("dropping null id error response, more than one request is waiting")
			return "", nil, false
		}
		key, found = k, w
	}
	return key, found, found != nil
}

func (h *Handler) publish(ev *jsonrpc2.SubscriptionEvent) {
	h.mu.Lock()
	listeners := append([]chan<- *jsonrpc2.SubscriptionEvent(nil), h.subs[ev.Subscription]...)
	h.mu.Unlock()

	if len(listeners) == 0 {
		logger.Debugf("dropping event for unknown subscription %s", ev.Subscription)
		return
	}
	for _, l := range listeners {
		select {
		case l <- ev:
		default:
			logger.Warningf("listener of subscription %s is full, dropping event", ev.Subscription)
		}
	}
}

// Pending returns the keys of the calls still waiting on a response, oldest
// first.
func (h *Handler) Pending() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	queue := pendingOldest(h.pending)
	keys := make([]string, 0, len(queue))
	for _, item := range queue {
		keys = append(keys, item.key)
	}
	return keys
}

// Subscriptions returns the active subscription ids, sorted.
func (h *Handler) Subscriptions() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := make([]string, 0, len(h.subs))
	for sub := range h.subs {
		subs = append(subs, sub)
	}
	sort.Strings(subs)
	return subs
}

// Forget drops the route of a subscription without telling the node. Returns
// false if there was no such subscription.
func (h *Handler) Forget(subscription string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.subs[subscription]
	delete(h.subs, subscription)
	return ok
}
