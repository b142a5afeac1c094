package transport

import (
	"context"
	"errors"
	"sync"
)

// HandlerFunc serves one encoded request and returns its encoded response.
type HandlerFunc func(ctx context.Context, payload []byte) ([]byte, error)

// ErrClosed is returned when a closed transport is used.
var ErrClosed = errors.New("transport: closed")

var _ Sync = &LocalTransport{}

// LocalTransport is a Sync transport for an in-process handler. It's like a
// network transport, but without the network; useful for tests.
type LocalTransport struct {
	handler HandlerFunc

	closeOnce sync.Once
	closed    chan struct{}
}

// NewLocal returns a LocalTransport for cfg.Handler.
func NewLocal(cfg Config) (*LocalTransport, error) {
	if cfg.Handler == nil {
		return nil, &ConfigError{Field: "Handler", Reason: "required"}
	}
	return &LocalTransport{
		handler: cfg.Handler,
		closed:  make(chan struct{}),
	}, nil
}

func (loc *LocalTransport) Kind() Kind { return Local }

func (loc *LocalTransport) Send(ctx context.Context, payload []byte) ([]byte, error) {
	select {
	case <-loc.closed:
		return nil, ErrClosed
	default:
	}
	return loc.handler(ctx, payload)
}

func (loc *LocalTransport) Close() error {
	loc.closeOnce.Do(func() { close(loc.closed) })
	return nil
}
