package ethnode

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// PeerInfo stores the node ID and client metadata about a peer.
type PeerInfo struct {
	ID        string                     `json:"id"`              // Unique node identifier (also the encryption pubkey if `enode` is not included)
	Name      string                     `json:"name"`            // Name of the node, including client type, version, OS, custom data
	Caps      []string                   `json:"caps"`            // Capabilities the node is advertising.
	Protocols map[string]json.RawMessage `json:"protocols"`       // Sub-protocol specific metadata fields
	Enode     string                     `json:"enode,omitempty"` // Enode connection string. If available, the ID is a hash of the pubkey.

	Network struct {
		LocalAddress  string `json:"localAddress"`  // Local endpoint of the TCP data connection
		RemoteAddress string `json:"remoteAddress"` // Remote endpoint of the TCP data connection
	} `json:"network"`
}

// EnodeID returns the public key of the peer when known, or its ID.
func (p *PeerInfo) EnodeID() string {
	if len(p.Enode) <= 8+128 { // "enode://{128 ascii chars}@..."
		return p.ID
	}
	return p.Enode[8 : 8+128]
}

// IsFullNode is true for peers speaking the eth protocol.
func (p *PeerInfo) IsFullNode() bool {
	if p.Protocols == nil {
		return false
	}
	_, ok := p.Protocols["eth"]
	return ok
}

// Peers is a list of PeerInfo
type Peers []PeerInfo

// IDs returns a list of string IDs of the peers.
func (peers Peers) IDs() []string {
	r := make([]string, 0, len(peers))
	for _, peer := range peers {
		r = append(r, peer.EnodeID())
	}
	return r
}

// parityClient is the structured client name some Parity versions report.
type parityClient struct {
	Compiler string `json:"compiler"`
	OS       string `json:"os"`
	Semver   string `json:"semver"`
}

func (c parityClient) String() string {
	return fmt.Sprintf("Parity/%s/%s/%s", c.Semver, c.OS, c.Compiler)
}

// parityPeer is a PeerInfo as reported by parity_netPeers, whose name is
// either a string or a parityClient.
type parityPeer struct {
	PeerInfo
	Name json.RawMessage `json:"name"`
}

func (p parityPeer) peerInfo() (PeerInfo, error) {
	info := p.PeerInfo
	if bytes.HasPrefix(p.Name, []byte(`"`)) {
		err := json.Unmarshal(p.Name, &info.Name)
		return info, err
	}
	var name struct {
		ParityClient parityClient `json:"ParityClient"`
	}
	if err := json.Unmarshal(p.Name, &name); err != nil {
		return info, err
	}
	info.Name = name.ParityClient.String()
	return info, nil
}

type parityPeers struct {
	Peers []parityPeer `json:"peers"`
}

// active returns the peers that completed the handshake. In Parity, these
// are the peers with protocols.
func (pp parityPeers) active() (Peers, error) {
	r := make(Peers, 0, len(pp.Peers))
	for _, peer := range pp.Peers {
		if len(peer.Protocols) == 0 {
			continue
		}
		info, err := peer.peerInfo()
		if err != nil {
			return nil, err
		}
		r = append(r, info)
	}
	return r, nil
}
