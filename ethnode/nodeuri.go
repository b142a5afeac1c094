package ethnode

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// InvalidNodeURIError is returned for strings that are not enode:// URIs.
type InvalidNodeURIError struct {
	URI    string
	Reason string
}

func (err *InvalidNodeURIError) Error() string {
	return fmt.Sprintf("ethnode: invalid node URI %q: %s", err.URI, err.Reason)
}

// ParseNodeURI takes an "enode://..." string (Ethereum Node URI) and parses
// it. The scheme may be left out.
func ParseNodeURI(enode string) (*NodeURI, error) {
	raw := enode
	if !strings.Contains(enode, "://") {
		enode = "enode://" + enode
	}

	u, err := url.Parse(enode)
	if err != nil {
		return nil, &InvalidNodeURIError{URI: raw, Reason: err.Error()}
	}
	if u.Scheme != "enode" {
		return nil, &InvalidNodeURIError{URI: raw, Reason: "scheme must be enode"}
	}

	r := NodeURI(*u)
	if r.ID() == "" {
		return nil, &InvalidNodeURIError{URI: raw, Reason: "missing node id"}
	}
	return &r, nil
}

// NodeURI is an Ethereum Node URI, "enode://<ID>@<host>:<port>".
type NodeURI url.URL

// ID returns the node ID, which is the hex encoded public key.
func (u *NodeURI) ID() string {
	if u.User == nil {
		// "enode://<ID>"
		return u.Host
	}
	// "enode://<ID>@<Host>"
	return u.User.Username()
}

// RemoteAddress returns the host:port component required to connect to the
// node, or empty string if none is usable from elsewhere.
func (u *NodeURI) RemoteAddress() string {
	if u.User == nil {
		return ""
	}

	// Hostnames are kept as they are, future versions might resolve them.
	if hostname := (*url.URL)(u).Hostname(); hostname == "localhost" {
		return ""
	} else if ip := net.ParseIP(hostname); ip.IsUnspecified() || ip.IsLoopback() {
		return ""
	}

	return u.Host
}

func (u *NodeURI) String() string {
	return (*url.URL)(u).String()
}
