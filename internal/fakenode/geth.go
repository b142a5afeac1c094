// Package fakenode provides stand-in Ethereum nodes for tests: a real
// go-ethereum RPC server with a tiny eth namespace, and scripted nodes which
// misbehave on demand.
package fakenode

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// Head is the payload pushed to newHeads subscribers.
type Head struct {
	Number hexutil.Uint64 `json:"number"`
}

// EthService is a minimal eth namespace.
type EthService struct {
	mu    sync.Mutex
	block uint64
	subs  map[rpc.ID]*rpc.Notifier
}

// BlockNumber serves eth_blockNumber.
func (s *EthService) BlockNumber() hexutil.Uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return hexutil.Uint64(s.block)
}

// ChainId serves eth_chainId.
func (s *EthService) ChainId() hexutil.Uint64 {
	return hexutil.Uint64(1)
}

// ProtocolVersion serves eth_protocolVersion.
func (s *EthService) ProtocolVersion() hexutil.Uint {
	return hexutil.Uint(65)
}

// Sleep serves eth_sleep, which only returns after ms milliseconds. Useful for
// exercising timeouts against a real server.
func (s *EthService) Sleep(ctx context.Context, ms int) (bool, error) {
	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// NewHeads serves eth_subscribe("newHeads").
func (s *EthService) NewHeads(ctx context.Context) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return nil, rpc.ErrNotificationsUnsupported
	}
	sub := notifier.CreateSubscription()

	s.mu.Lock()
	if s.subs == nil {
		s.subs = map[rpc.ID]*rpc.Notifier{}
	}
	s.subs[sub.ID] = notifier
	s.mu.Unlock()

	go func() {
		<-sub.Err()
		s.mu.Lock()
		delete(s.subs, sub.ID)
		s.mu.Unlock()
	}()
	return sub, nil
}

// Mine advances the block number and notifies newHeads subscribers.
func (s *EthService) Mine() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.block++
	for id, notifier := range s.subs {
		notifier.Notify(id, Head{Number: hexutil.Uint64(s.block)})
	}
	return s.block
}

// NumSubscriptions returns the number of active newHeads subscriptions.
func (s *EthService) NumSubscriptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

type web3Service struct{}

// ClientVersion serves web3_clientVersion.
func (web3Service) ClientVersion() string {
	return "Geth/v1.9.15-stable/linux-amd64/go1.21"
}

type netService struct{}

// Version serves net_version.
func (netService) Version() string {
	return "1"
}

// Geth is a go-ethereum RPC server with the eth, net and web3 namespaces.
type Geth struct {
	Eth    *EthService
	Server *rpc.Server
}

// NewGeth returns a Geth node starting at the given block number.
func NewGeth(block uint64) *Geth {
	eth := &EthService{block: block}
	server := rpc.NewServer()
	if err := server.RegisterName("eth", eth); err != nil {
		panic(err)
	}
	if err := server.RegisterName("web3", &web3Service{}); err != nil {
		panic(err)
	}
	if err := server.RegisterName("net", &netService{}); err != nil {
		panic(err)
	}
	return &Geth{
		Eth:    eth,
		Server: server,
	}
}

// HTTPHandler serves JSONRPC over HTTP POST.
func (g *Geth) HTTPHandler() http.Handler {
	return g.Server
}

// WebsocketHandler serves JSONRPC over WebSocket.
func (g *Geth) WebsocketHandler() http.Handler {
	return g.Server.WebsocketHandler([]string{"*"})
}

// ServeIPC listens on a Unix socket at path and serves it until the listener
// is closed.
func (g *Geth) ServeIPC(path string) (net.Listener, error) {
	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	go g.Server.ServeListener(l)
	return l, nil
}

// Stop stops the server and closes all its codecs.
func (g *Geth) Stop() {
	g.Server.Stop()
}
