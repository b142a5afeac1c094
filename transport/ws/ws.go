// Package ws implements the asynchronous WebSocket transport. Frames are
// written as they are transmitted and every inbound frame is handed to the
// configured dispatch callback; correlating them with requests is left to the
// caller.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vipnode/ethrpc/transport"
	"github.com/vipnode/ethrpc/transport/ws/gobwas"
	"github.com/vipnode/ethrpc/transport/ws/gorilla"
)

// ErrNotConnected is returned when transmitting on a connection that has
// dropped or been closed.
var ErrNotConnected = errors.New("ws: not connected")

// ConnectionError is returned when the connection could not be established.
type ConnectionError struct {
	Endpoint string
	cause    error
}

func (err *ConnectionError) Error() string {
	return fmt.Sprintf("ws: failed to connect to %s: %s", err.Endpoint, err.cause)
}

func (err *ConnectionError) Cause() error  { return err.cause }
func (err *ConnectionError) Unwrap() error { return err.cause }

// Conn is a message-oriented WebSocket connection. ReadFrame and WriteFrame
// may be called concurrently with each other.
type Conn interface {
	ReadFrame() ([]byte, error)
	WriteFrame(frame []byte) error
	Close() error
}

// Dial functions for the supported backends, keyed by Config.Dialer.
var dialers = map[string]func(ctx context.Context, url string, header http.Header) (Conn, error){
	"gorilla": func(ctx context.Context, url string, header http.Header) (Conn, error) {
		return gorilla.Dial(ctx, url, header)
	},
	"gobwas": func(ctx context.Context, url string, header http.Header) (Conn, error) {
		return gobwas.Dial(ctx, url, header)
	},
}

// State of a Transport's connection.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

var _ transport.Async = &Transport{}

// Transport is a single WebSocket connection.
type Transport struct {
	endpoint string
	dispatch transport.DispatchFunc
	conn     Conn
	state    int32

	closeOnce sync.Once
	done      chan struct{}
}

// New dials cfg.EndpointURL and starts reading frames into cfg.Dispatch.
func New(ctx context.Context, cfg transport.Config) (*Transport, error) {
	if _, err := transport.ValidateURL(cfg.EndpointURL, "ws", "wss"); err != nil {
		return nil, err
	}
	if cfg.Dispatch == nil {
		return nil, &transport.ConfigError{Field: "Dispatch", Reason: "required"}
	}
	name := cfg.Dialer
	if name == "" {
		name = "gorilla"
	}
	dial, ok := dialers[name]
	if !ok {
		return nil, &transport.ConfigError{Field: "Dialer", Reason: fmt.Sprintf("unknown dialer %q", cfg.Dialer)}
	}

	var header http.Header
	if len(cfg.Headers) > 0 {
		header = http.Header{}
		for k, v := range cfg.Headers {
			header.Set(k, v)
		}
	}

	t := &Transport{
		endpoint: cfg.EndpointURL,
		dispatch: cfg.Dispatch,
		state:    int32(Connecting),
		done:     make(chan struct{}),
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.TimeoutOrDefault())
	defer cancel()
	conn, err := dial(dialCtx, cfg.EndpointURL, header)
	if err != nil {
		t.setState(Disconnected)
		return nil, &ConnectionError{Endpoint: cfg.EndpointURL, cause: err}
	}
	t.conn = conn
	t.setState(Connected)
	logger.Debugf("connected to %s using %s", cfg.EndpointURL, name)

	go t.readLoop()

	settle := cfg.SettleDelay
	if settle == 0 {
		settle = transport.DefaultSettleDelay
	}
	if settle > 0 {
		select {
		case <-time.After(settle):
		case <-ctx.Done():
			t.Close()
			return nil, ctx.Err()
		}
	}
	return t, nil
}

func (t *Transport) Kind() transport.Kind {
	return transport.WebSocket
}

// State returns the current connection state.
func (t *Transport) State() State {
	return State(atomic.LoadInt32(&t.state))
}

func (t *Transport) setState(s State) {
	atomic.StoreInt32(&t.state, int32(s))
}

// Done is closed once the connection is no longer read from, after a drop or
// Close.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// Transmit writes payload as a single text frame.
func (t *Transport) Transmit(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.State() != Connected {
		return ErrNotConnected
	}
	if err := t.conn.WriteFrame(payload); err != nil {
		if t.State() != Connected {
			return ErrNotConnected
		}
		return err
	}
	return nil
}

func (t *Transport) readLoop() {
	defer close(t.done)
	for {
		frame, err := t.conn.ReadFrame()
		if err != nil {
			// Close swaps the state first, so anything else is a drop.
			if atomic.CompareAndSwapInt32(&t.state, int32(Connected), int32(Disconnected)) {
				logger.Warningf("connection to %s dropped: %s", t.endpoint, err)
				t.conn.Close()
			}
			return
		}
		t.dispatch(frame)
	}
}

// Close closes the connection. Responses still outstanding are never
// delivered.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		prev := State(atomic.SwapInt32(&t.state, int32(Closed)))
		if prev == Connected {
			err = t.conn.Close()
		}
		logger.Debugf("closed connection to %s", t.endpoint)
	})
	return err
}
