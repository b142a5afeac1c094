// Package transport defines the contract that every ethrpc transport
// satisfies, and the configuration they are initialized from.
//
// There is a closed set of implementations, selected by Kind:
// httptransport (HTTP), ws (WebSocket), ipc (pooled Unix sockets) and Local,
// an in-process test double.
package transport

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Kind is the kind of transport a client is constructed with.
type Kind int

const (
	Unknown Kind = iota
	HTTP
	WebSocket
	IPC
	Local
)

func (k Kind) String() string {
	switch k {
	case HTTP:
		return "http"
	case WebSocket:
		return "ws"
	case IPC:
		return "ipc"
	case Local:
		return "local"
	default:
		return "unknown"
	}
}

// IsAsync returns true for transports that deliver responses through an
// inbound frame callback rather than as return values.
func (k Kind) IsAsync() bool {
	return k == WebSocket
}

// ParseKind takes a transport name and returns the corresponding Kind.
func ParseKind(s string) Kind {
	switch strings.ToLower(s) {
	case "http", "https":
		return HTTP
	case "ws", "wss", "websocket":
		return WebSocket
	case "ipc", "unix":
		return IPC
	case "local":
		return Local
	default:
		return Unknown
	}
}

// KindFromEndpoint guesses the transport kind from an endpoint, the same way
// node clients do: http(s) and ws(s) URL schemes, and a plain filesystem path
// for IPC.
func KindFromEndpoint(endpoint string) Kind {
	u, err := url.Parse(endpoint)
	if err != nil {
		return Unknown
	}
	switch u.Scheme {
	case "http", "https":
		return HTTP
	case "ws", "wss":
		return WebSocket
	case "", "unix":
		if u.Path == "" && u.Opaque == "" {
			return Unknown
		}
		return IPC
	}
	return Unknown
}

// Transport is the part of the contract shared by all transports.
type Transport interface {
	Kind() Kind
	// Close releases any connections held by the transport.
	Close() error
}

// Sync is a transport that returns the encoded response of each encoded
// request it's given. Implementations are safe for concurrent use.
type Sync interface {
	Transport
	Send(ctx context.Context, payload []byte) ([]byte, error)
}

// Async is a transport that transmits encoded requests without waiting. The
// encoded responses arrive later through the DispatchFunc it was configured
// with.
type Async interface {
	Transport
	Transmit(ctx context.Context, payload []byte) error
}

// DispatchFunc receives every inbound frame of an Async transport.
type DispatchFunc func(frame []byte)

// ConfigError is returned when a transport can't be initialized from its
// configuration.
type ConfigError struct {
	Field  string
	Reason string
}

func (err *ConfigError) Error() string {
	return fmt.Sprintf("transport config error: %s: %s", err.Field, err.Reason)
}

// ValidateURL checks that endpoint is an absolute URL using one of the
// allowed schemes.
func ValidateURL(endpoint string, schemes ...string) (*url.URL, error) {
	if endpoint == "" {
		return nil, &ConfigError{Field: "EndpointURL", Reason: "required"}
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, &ConfigError{Field: "EndpointURL", Reason: err.Error()}
	}
	for _, s := range schemes {
		if u.Scheme == s {
			if u.Host == "" {
				return nil, &ConfigError{Field: "EndpointURL", Reason: "missing host"}
			}
			return u, nil
		}
	}
	return nil, &ConfigError{
		Field:  "EndpointURL",
		Reason: fmt.Sprintf("unsupported scheme %q, expected one of: %s", u.Scheme, strings.Join(schemes, ", ")),
	}
}
