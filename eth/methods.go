// Package eth maps friendly method names of the Ethereum JSONRPC API to their
// wire names, and fills in the parameters that nodes expect.
package eth

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// DefaultBlock is the block tag appended to block-scoped methods that are
// called without one.
const DefaultBlock = "latest"

// Method describes one JSONRPC method.
type Method struct {
	// Wire is the method name sent to the node.
	Wire string
	// Arity is the number of parameters, including the block tag.
	Arity int
	// BlockTag is set when the last parameter is a block number or tag, which
	// defaults to DefaultBlock.
	BlockTag bool
}

// Methods is keyed by friendly name.
var Methods = map[string]Method{
	"ClientVersion":                       {Wire: "web3_clientVersion"},
	"Sha3":                                {Wire: "web3_sha3", Arity: 1},
	"NetVersion":                          {Wire: "net_version"},
	"NetListening":                        {Wire: "net_listening"},
	"NetPeerCount":                        {Wire: "net_peerCount"},
	"ProtocolVersion":                     {Wire: "eth_protocolVersion"},
	"Syncing":                             {Wire: "eth_syncing"},
	"Coinbase":                            {Wire: "eth_coinbase"},
	"ChainID":                             {Wire: "eth_chainId"},
	"Mining":                              {Wire: "eth_mining"},
	"Hashrate":                            {Wire: "eth_hashrate"},
	"GasPrice":                            {Wire: "eth_gasPrice"},
	"Accounts":                            {Wire: "eth_accounts"},
	"BlockNumber":                         {Wire: "eth_blockNumber"},
	"GetBalance":                          {Wire: "eth_getBalance", Arity: 2, BlockTag: true},
	"GetStorageAt":                        {Wire: "eth_getStorageAt", Arity: 3, BlockTag: true},
	"GetTransactionCount":                 {Wire: "eth_getTransactionCount", Arity: 2, BlockTag: true},
	"GetBlockTransactionCountByHash":      {Wire: "eth_getBlockTransactionCountByHash", Arity: 1},
	"GetBlockTransactionCountByNumber":    {Wire: "eth_getBlockTransactionCountByNumber", Arity: 1, BlockTag: true},
	"GetUncleCountByBlockHash":            {Wire: "eth_getUncleCountByBlockHash", Arity: 1},
	"GetUncleCountByBlockNumber":          {Wire: "eth_getUncleCountByBlockNumber", Arity: 1, BlockTag: true},
	"GetCode":                             {Wire: "eth_getCode", Arity: 2, BlockTag: true},
	"Sign":                                {Wire: "eth_sign", Arity: 2},
	"SendTransaction":                     {Wire: "eth_sendTransaction", Arity: 1},
	"SendRawTransaction":                  {Wire: "eth_sendRawTransaction", Arity: 1},
	"Call":                                {Wire: "eth_call", Arity: 2, BlockTag: true},
	"EstimateGas":                         {Wire: "eth_estimateGas", Arity: 1},
	"GetBlockByHash":                      {Wire: "eth_getBlockByHash", Arity: 2},
	"GetBlockByNumber":                    {Wire: "eth_getBlockByNumber", Arity: 2},
	"GetTransactionByHash":                {Wire: "eth_getTransactionByHash", Arity: 1},
	"GetTransactionByBlockHashAndIndex":   {Wire: "eth_getTransactionByBlockHashAndIndex", Arity: 2},
	"GetTransactionByBlockNumberAndIndex": {Wire: "eth_getTransactionByBlockNumberAndIndex", Arity: 2},
	"GetTransactionReceipt":               {Wire: "eth_getTransactionReceipt", Arity: 1},
	"GetUncleByBlockHashAndIndex":         {Wire: "eth_getUncleByBlockHashAndIndex", Arity: 2},
	"GetUncleByBlockNumberAndIndex":       {Wire: "eth_getUncleByBlockNumberAndIndex", Arity: 2},
	"NewFilter":                           {Wire: "eth_newFilter", Arity: 1},
	"NewBlockFilter":                      {Wire: "eth_newBlockFilter"},
	"NewPendingTransactionFilter":         {Wire: "eth_newPendingTransactionFilter"},
	"UninstallFilter":                     {Wire: "eth_uninstallFilter", Arity: 1},
	"GetFilterChanges":                    {Wire: "eth_getFilterChanges", Arity: 1},
	"GetFilterLogs":                       {Wire: "eth_getFilterLogs", Arity: 1},
	"GetLogs":                             {Wire: "eth_getLogs", Arity: 1},
	"GetProof":                            {Wire: "eth_getProof", Arity: 3, BlockTag: true},
	"AdminNodeInfo":                       {Wire: "admin_nodeInfo"},
	"AdminPeers":                          {Wire: "admin_peers"},
}

var byWire = func() map[string]string {
	m := make(map[string]string, len(Methods))
	for name, method := range Methods {
		m[method.Wire] = name
	}
	return m
}()

// Lookup finds a method by friendly name or wire name.
func Lookup(name string) (Method, bool) {
	if m, ok := Methods[name]; ok {
		return m, true
	}
	if friendly, ok := byWire[name]; ok {
		return Methods[friendly], true
	}
	return Method{}, false
}

// Names returns the friendly method names, sorted.
func Names() []string {
	names := make([]string, 0, len(Methods))
	for name := range Methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnknownMethodError is returned by Invoke for names missing from Methods.
type UnknownMethodError struct {
	Name string
}

func (err *UnknownMethodError) Error() string {
	return fmt.Sprintf("eth: unknown method %q", err.Name)
}

// ArityError is returned by Invoke when called with the wrong number of
// parameters.
type ArityError struct {
	Method string
	Want   int
	Got    int
}

func (err *ArityError) Error() string {
	return fmt.Sprintf("eth: %s takes %d params, got %d", err.Method, err.Want, err.Got)
}

// Params returns the parameters to send for m: the block tag is appended if
// it was left out, and integer block numbers are hex encoded.
func (m Method) Params(args ...interface{}) ([]interface{}, error) {
	params := append([]interface{}(nil), args...)
	if m.BlockTag && len(params) == m.Arity-1 {
		params = append(params, DefaultBlock)
	}
	if len(params) != m.Arity {
		return nil, &ArityError{Method: m.Wire, Want: m.Arity, Got: len(args)}
	}
	if m.BlockTag {
		params[m.Arity-1] = blockParam(params[m.Arity-1])
	}
	return params, nil
}

func blockParam(v interface{}) interface{} {
	switch n := v.(type) {
	case int:
		if n >= 0 {
			return hexutil.EncodeUint64(uint64(n))
		}
	case int64:
		if n >= 0 {
			return hexutil.EncodeUint64(uint64(n))
		}
	case uint64:
		return hexutil.EncodeUint64(n)
	case *big.Int:
		return hexutil.EncodeBig(n)
	}
	return v
}

// Invoker is the part of client.Client that Invoke needs.
type Invoker interface {
	Call(ctx context.Context, result interface{}, method string, params ...interface{}) error
}

// Invoke calls the method with the friendly (or wire) name through c, and
// decodes the result into result.
func Invoke(ctx context.Context, c Invoker, result interface{}, name string, args ...interface{}) error {
	m, ok := Lookup(name)
	if !ok {
		return &UnknownMethodError{Name: name}
	}
	params, err := m.Params(args...)
	if err != nil {
		return err
	}
	return c.Call(ctx, result, m.Wire, params...)
}
