package ethnode

import (
	"context"
	"strconv"
	"strings"

	"github.com/vipnode/ethrpc/client"
	"github.com/vipnode/ethrpc/jsonrpc2"
)

// NodeKind represents the different kinds of node implementations we know about.
type NodeKind int

const (
	Unknown NodeKind = iota // Treated as Geth where it matters.
	Geth
	Parity
	Pantheon
)

func ParseNodeKind(s string) NodeKind {
	switch strings.ToLower(s) {
	case "geth":
		return Geth
	case "parity":
		return Parity
	case "pantheon":
		return Pantheon
	default:
		return Unknown
	}
}

func (n NodeKind) String() string {
	switch n {
	case Geth:
		return "geth"
	case Parity:
		return "parity"
	case Pantheon:
		return "pantheon"
	default:
		return "unknown"
	}
}

// NetworkID represents the Ethereum network chain.
type NetworkID int

const (
	UnknownNetwork NetworkID = 0

	Mainnet NetworkID = 1
	Morden  NetworkID = 2
	Ropsten NetworkID = 3
	Rinkeby NetworkID = 4
	Goerli  NetworkID = 5
	Kotti   NetworkID = 6
	Kovan   NetworkID = 42
)

var networkNames = map[NetworkID]string{
	Mainnet: "mainnet",
	Morden:  "morden",
	Ropsten: "ropsten",
	Rinkeby: "rinkeby",
	Goerli:  "goerli",
	Kotti:   "kotti",
	Kovan:   "kovan",
}

func (id NetworkID) String() string {
	if name, ok := networkNames[id]; ok {
		return name
	}
	return "unknown"
}

// Is compares the ID to a network name.
func (id NetworkID) Is(network string) bool {
	return id.String() == strings.ToLower(network)
}

// ParseNetwork takes a network name and returns the corresponding NetworkID.
func ParseNetwork(network string) NetworkID {
	network = strings.ToLower(network)
	for id, name := range networkNames {
		if name == network {
			return id
		}
	}
	return UnknownNetwork
}

// UserAgent is the metadata about node client.
type UserAgent struct {
	Version     string `json:"version"`      // Result of web3_clientVersion
	EthProtocol string `json:"eth_protocol"` // Result of eth_protocolVersion

	// Parsed/derived values
	Kind       NodeKind  `json:"kind"`         // Node implementation
	Network    NetworkID `json:"network"`      // Network ID
	IsFullNode bool      `json:"is_full_node"` // Is this a full node? (or a light client?)
}

// KindType returns the Kind of node it is, suffixed with -full or -light.
func (ua *UserAgent) KindType() string {
	if ua.IsFullNode {
		return ua.Kind.String() + "-full"
	}
	return ua.Kind.String() + "-light"
}

var versionPrefixes = []struct {
	prefix string
	kind   NodeKind
}{
	{"Geth/", Geth},
	{"pantheon/", Pantheon},
	{"besu/", Pantheon},
	{"Parity-Ethereum/", Parity},
	{"Parity/", Parity},
	{"OpenEthereum/", Parity},
}

// ParseUserAgent takes string values as output from the web3 RPC for
// web3_clientVersion, eth_protocolVersion, and net_version. It returns a
// parsed user agent metadata.
func ParseUserAgent(clientVersion, protocolVersion, netVersion string) (*UserAgent, error) {
	networkID, err := strconv.Atoi(netVersion)
	if err != nil {
		return nil, err
	}
	agent := &UserAgent{
		Version:     clientVersion,
		EthProtocol: protocolVersion,
		Network:     NetworkID(networkID),
		IsFullNode:  true,
	}
	for _, p := range versionPrefixes {
		if strings.HasPrefix(clientVersion, p.prefix) {
			agent.Kind = p.kind
			break
		}
	}

	protocol, err := strconv.ParseInt(protocolVersion, 0, 32)
	if err != nil {
		return nil, err
	}
	// Light clients are only recognizable by anecdotal protocol values.
	if agent.Kind == Parity && protocol == 1 {
		agent.IsFullNode = false
	} else if agent.Kind == Geth && protocol == 10002 {
		agent.IsFullNode = false
	}
	return agent, nil
}

// DetectClient identifies the node behind c, with a single batch of
// web3_clientVersion, eth_protocolVersion and net_version.
func DetectClient(ctx context.Context, c *client.Client) (*UserAgent, error) {
	resps, err := c.BuildCall("web3_clientVersion").
		AddRequest("eth_protocolVersion").
		AddRequest("net_version").
		Send(ctx)
	if err != nil {
		return nil, err
	}

	var values [3]string
	for i, resp := range resps {
		switch resp := resp.(type) {
		case *jsonrpc2.ErrorResponse:
			return nil, resp.Error
		case *jsonrpc2.Success:
			if err := decodeStringOrNumber(resp, &values[i]); err != nil {
				return nil, err
			}
		}
	}
	logger.Debugf("detected client %q protocol %s network %s", values[0], values[1], values[2])
	return ParseUserAgent(values[0], values[1], values[2])
}

// decodeStringOrNumber decodes a result that nodes encode either as a string
// or as a plain number, like eth_protocolVersion.
func decodeStringOrNumber(resp *jsonrpc2.Success, v *string) error {
	if err := resp.UnmarshalResult(v); err == nil {
		return nil
	}
	var n int64
	if err := resp.UnmarshalResult(&n); err != nil {
		return err
	}
	*v = strconv.FormatInt(n, 10)
	return nil
}
