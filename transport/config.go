package transport

import (
	"net/http"
	"time"
)

const (
	DefaultTimeout         = 30 * time.Second
	DefaultPoolSize        = 10
	DefaultCheckoutTimeout = 30 * time.Second
	DefaultSettleDelay     = 50 * time.Millisecond
)

// Config holds the recognized options of every transport kind. Each
// transport only looks at the fields that apply to it.
type Config struct {
	// EndpointURL is the http(s):// or ws(s):// URL of the node.
	EndpointURL string
	// Headers are merged over the default HTTP headers. (HTTP)
	Headers map[string]string
	// Timeout bounds each request. For HTTP it's the client timeout, for IPC
	// the socket deadline of one exchange, for WebSocket how long a caller
	// waits for its response. Default: 30s.
	Timeout time.Duration
	// HTTPClient overrides the pooled client that is normally built. (HTTP)
	HTTPClient *http.Client
	// MaxContentLength is the response size limit, optional. (HTTP)
	MaxContentLength int64

	// Dispatch receives inbound frames. (WebSocket, required)
	Dispatch DispatchFunc
	// Dialer selects the WebSocket implementation: "gorilla" (default) or
	// "gobwas". (WebSocket)
	Dialer string
	// SettleDelay is how long to wait after connecting before the transport
	// is handed out. Default: 50ms. (WebSocket)
	SettleDelay time.Duration

	// SocketPath is the filesystem path of the node's IPC socket. (IPC, required)
	SocketPath string
	// SocketOptions tune each pooled socket. (IPC)
	SocketOptions SocketOptions
	// PoolSize is the maximum number of open sockets. Default: 10. (IPC)
	PoolSize int
	// EagerWorkers connects every worker at start instead of on first
	// checkout. (IPC)
	EagerWorkers bool
	// WorkerIdleTimeout is the idle ping interval, zero disables it. (IPC)
	WorkerIdleTimeout time.Duration
	// MaxIdlePings is the number of idle pings after which an idle worker is
	// closed, zero means unlimited. (IPC)
	MaxIdlePings int
	// CheckoutTimeout bounds waiting for a free worker. Default: 30s. (IPC)
	CheckoutTimeout time.Duration

	// Handler serves requests in-process. (Local, required)
	Handler HandlerFunc
}

// SocketOptions configure the sockets of the IPC pool.
type SocketOptions struct {
	// DialTimeout bounds connecting a socket. Default: Timeout.
	DialTimeout time.Duration
	// ReadBufferSize is the size of each socket's read buffer, optional.
	ReadBufferSize int
}

// TimeoutOrDefault returns Timeout, or DefaultTimeout if unset.
func (cfg *Config) TimeoutOrDefault() time.Duration {
	if cfg.Timeout > 0 {
		return cfg.Timeout
	}
	return DefaultTimeout
}
