package ethnode

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vipnode/ethrpc/client"
	"github.com/vipnode/ethrpc/jsonrpc2"
)

// ErrNotSupported is returned for peer operations that a node kind has no
// method for.
var ErrNotSupported = errors.New("ethnode: not supported by this node kind")

// dialect names the peering methods of a node implementation.
type dialect struct {
	enode         string
	peers         string
	addPeer       string
	removePeer    string
	addTrusted    string
	removeTrusted string
	// peerID converts a node URI to the form the peering methods take.
	peerID func(*NodeURI) string
}

var dialects = map[NodeKind]dialect{
	Geth: {
		enode:         "admin_nodeInfo",
		peers:         "admin_peers",
		addPeer:       "admin_addPeer",
		removePeer:    "admin_removePeer",
		addTrusted:    "admin_addTrustedPeer",
		removeTrusted: "admin_removeTrustedPeer",
		peerID:        (*NodeURI).String,
	},
	// Parity and Pantheon have no plain peering, reserved peers stand in for
	// it.
	Parity: {
		enode:         "parity_enode",
		peers:         "parity_netPeers",
		addPeer:       "parity_addReservedPeer",
		removePeer:    "parity_removeReservedPeer",
		addTrusted:    "parity_addReservedPeer",
		removeTrusted: "parity_removeReservedPeer",
		peerID:        parityNodeID,
	},
	Pantheon: {
		enode:         "admin_nodeInfo",
		peers:         "admin_peers",
		addPeer:       "admin_addPeer",
		removePeer:    "admin_removePeer",
		addTrusted:    "admin_addPeer",
		removeTrusted: "admin_removePeer",
		peerID:        (*NodeURI).String,
	},
}

// parityNodeID fills in an unspecified host for bare node IDs, which Parity
// rejects.
func parityNodeID(u *NodeURI) string {
	if u.Host == "" || u.User == nil {
		return "enode://" + u.ID() + "@[::]:30303"
	}
	return u.String()
}

// Node manages the peers of a node through its admin API.
type Node struct {
	client  client.Service
	agent   UserAgent
	dialect dialect
}

// NewNode returns a Node speaking the dialect of agent's node kind. Unknown
// kinds are treated as Geth.
func NewNode(c client.Service, agent UserAgent) *Node {
	d, ok := dialects[agent.Kind]
	if !ok {
		d = dialects[Geth]
	}
	return &Node{
		client:  c,
		agent:   agent,
		dialect: d,
	}
}

// Remote detects the kind of node behind c and returns a Node for it.
func Remote(ctx context.Context, c *client.Client) (*Node, error) {
	agent, err := DetectClient(ctx, c)
	if err != nil {
		return nil, err
	}
	return NewNode(c, *agent), nil
}

// Kind returns the kind of node this is.
func (n *Node) Kind() NodeKind {
	return n.agent.Kind
}

// UserAgent returns the versions of the client.
func (n *Node) UserAgent() UserAgent {
	return n.agent
}

// BlockNumber returns the current sync'd block number.
func (n *Node) BlockNumber(ctx context.Context) (uint64, error) {
	var result hexutil.Uint64
	if err := n.client.Call(ctx, &result, "eth_blockNumber"); err != nil {
		return 0, err
	}
	return uint64(result), nil
}

// Enode returns this node's enode:// URI.
func (n *Node) Enode(ctx context.Context) (*NodeURI, error) {
	var enode string
	if n.dialect.enode == "admin_nodeInfo" {
		var info struct {
			Enode string `json:"enode"`
		}
		if err := n.client.Call(ctx, &info, n.dialect.enode); err != nil {
			return nil, err
		}
		enode = info.Enode
	} else if err := n.client.Call(ctx, &enode, n.dialect.enode); err != nil {
		return nil, err
	}
	return ParseNodeURI(enode)
}

// Peers returns the connected peers.
func (n *Node) Peers(ctx context.Context) (Peers, error) {
	if n.agent.Kind == Parity {
		var result parityPeers
		if err := n.client.Call(ctx, &result, n.dialect.peers); err != nil {
			return nil, err
		}
		return result.active()
	}
	var peers Peers
	if err := n.client.Call(ctx, &peers, n.dialect.peers); err != nil {
		return nil, err
	}
	return peers, nil
}

// ConnectPeer prompts a connection to the given node URI.
func (n *Node) ConnectPeer(ctx context.Context, nodeURI string) error {
	return n.peerCall(ctx, n.dialect.addPeer, nodeURI)
}

// DisconnectPeer disconnects from the given node, if connected.
func (n *Node) DisconnectPeer(ctx context.Context, nodeURI string) error {
	return n.peerCall(ctx, n.dialect.removePeer, nodeURI)
}

// AddTrustedPeer adds a node to the set of nodes that can always connect,
// even if the maximum number of connections is reached.
func (n *Node) AddTrustedPeer(ctx context.Context, nodeURI string) error {
	return n.peerCall(ctx, n.dialect.addTrusted, nodeURI)
}

// RemoveTrustedPeer removes a node from the trusted node set.
func (n *Node) RemoveTrustedPeer(ctx context.Context, nodeURI string) error {
	return n.peerCall(ctx, n.dialect.removeTrusted, nodeURI)
}

// The results of the peering methods only tell whether anything changed, so
// they are ignored.
func (n *Node) peerCall(ctx context.Context, method string, nodeURI string) error {
	if method == "" {
		return ErrNotSupported
	}
	u, err := ParseNodeURI(nodeURI)
	if err != nil {
		return err
	}
	var result interface{}
	return n.client.Call(ctx, &result, method, n.dialect.peerID(u))
}

// CheckCompatible probes whether the node exposes the admin methods Node
// relies on. A method-not-found error means the API is disabled.
func (n *Node) CheckCompatible(ctx context.Context) error {
	var result interface{}
	err := n.client.Call(ctx, &result, n.dialect.peers)
	var rpcErr *jsonrpc2.ErrResponse
	if errors.As(err, &rpcErr) && rpcErr.Code == jsonrpc2.ErrCodeMethodNotFound {
		return &IncompatibleError{Kind: n.agent.Kind, Method: n.dialect.peers}
	}
	return err
}

// IncompatibleError is returned by CheckCompatible when the node lacks a
// required API.
type IncompatibleError struct {
	Kind   NodeKind
	Method string
}

func (err *IncompatibleError) Error() string {
	return fmt.Sprintf("ethnode: %s node does not expose %s", err.Kind, err.Method)
}
