package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/sync/errgroup"

	"github.com/vipnode/ethrpc/internal/fakenode"
	"github.com/vipnode/ethrpc/jsonrpc2"
	"github.com/vipnode/ethrpc/msghandler"
	"github.com/vipnode/ethrpc/transport"
)

var answers = fakenode.Methods(map[string]interface{}{
	"eth_blockNumber": "0x10",
	"net_version":     "1",
	"eth_chainId":     "0x1",
})

// localNode serves a scripted node in-process.
type localNode struct {
	script fakenode.Script
	sends  int32
}

func (n *localNode) handle(ctx context.Context, payload []byte) ([]byte, error) {
	atomic.AddInt32(&n.sends, 1)
	out := n.script(payload)
	if len(out) == 0 {
		return nil, errors.New("no answer")
	}
	return out[0], nil
}

func newLocal(t *testing.T, script fakenode.Script) (*Client, *localNode) {
	t.Helper()
	node := &localNode{script: script}
	c, err := New(context.Background(), transport.Local, transport.Config{Handler: node.handle})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c, node
}

func ids(resps []jsonrpc2.Response) []uint64 {
	r := make([]uint64, 0, len(resps))
	for _, resp := range resps {
		r = append(r, jsonrpc2.ResponseID(resp))
	}
	return r
}

func mustRequest(t *testing.T, id uint64, method string, params ...interface{}) *jsonrpc2.Request {
	t.Helper()
	var req *jsonrpc2.Request
	var err error
	if id == 0 {
		req, err = jsonrpc2.NewRequest(method, params...)
	} else {
		req, err = jsonrpc2.NewRequestWithID(id, method, params...)
	}
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func TestConcurrentIDs(t *testing.T) {
	c, _ := newLocal(t, fakenode.Silent)

	const workers, each = 20, 250
	var mu sync.Mutex
	seen := map[uint64]struct{}{}
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			local := make([]uint64, 0, each)
			for j := 0; j < each; j++ {
				local = append(local, c.NextID())
			}
			mu.Lock()
			defer mu.Unlock()
			for _, id := range local {
				if _, ok := seen[id]; ok {
					t.Errorf("id %d allocated twice", id)
				}
				seen[id] = struct{}{}
			}
			return nil
		})
	}
	g.Wait()

	if got, want := len(seen), workers*each; got != want {
		t.Errorf("got %d unique ids; want %d", got, want)
	}
	for id := uint64(1); id <= workers*each; id++ {
		if _, ok := seen[id]; !ok {
			t.Fatalf("id %d was skipped", id)
		}
	}
}

func TestDuplicateIDs(t *testing.T) {
	c, node := newLocal(t, fakenode.Answer(answers, false))

	_, err := c.SendRequests(context.Background(),
		mustRequest(t, 4, "eth_blockNumber"),
		mustRequest(t, 0, "net_version"),
		mustRequest(t, 4, "eth_chainId"),
	)
	var dupErr *DuplicateIDError
	if !errors.As(err, &dupErr) {
		t.Fatalf("got error: %v; want *DuplicateIDError", err)
	}
	if dupErr.ID != 4 {
		t.Errorf("got id: %d; want 4", dupErr.ID)
	}
	if n := atomic.LoadInt32(&node.sends); n != 0 {
		t.Errorf("transport was used %d times", n)
	}
}

func TestBackfillIDs(t *testing.T) {
	c, _ := newLocal(t, fakenode.Answer(answers, false))

	// The client's next ids are 1, 2, 3: 1 and 2 are taken.
	resps, err := c.SendRequests(context.Background(),
		mustRequest(t, 2, "eth_blockNumber"),
		mustRequest(t, 0, "net_version"),
		mustRequest(t, 1, "eth_chainId"),
	)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := ids(resps), []uint64{2, 3, 1}; !reflect.DeepEqual(got, want) {
		t.Errorf("got ids: %v; want %v", got, want)
	}
}

func TestBatchOrder(t *testing.T) {
	c, _ := newLocal(t, fakenode.Answer(answers, true))

	resps, err := c.SendRequests(context.Background(),
		mustRequest(t, 5, "eth_blockNumber"),
		mustRequest(t, 3, "net_version"),
		mustRequest(t, 9, "eth_chainId"),
	)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := ids(resps), []uint64{5, 3, 9}; !reflect.DeepEqual(got, want) {
		t.Errorf("got ids: %v; want %v", got, want)
	}
	var result string
	if err := resps[1].(*jsonrpc2.Success).UnmarshalResult(&result); err != nil {
		t.Fatal(err)
	}
	if result != "1" {
		t.Errorf("got net_version: %q; want %q", result, "1")
	}
}

func TestMissingResponse(t *testing.T) {
	c, _ := newLocal(t, func(frame []byte) [][]byte {
		return [][]byte{[]byte(`[{"jsonrpc":"2.0","id":1,"result":"0x10"}]`)}
	})

	_, err := c.BuildCall("eth_blockNumber").AddRequest("net_version").Send(context.Background())
	var missingErr *MissingResponseError
	if !errors.As(err, &missingErr) {
		t.Fatalf("got error: %v; want *MissingResponseError", err)
	}
	if missingErr.ID != 2 {
		t.Errorf("got id: %d; want 2", missingErr.ID)
	}
}

func TestParseErrorResponse(t *testing.T) {
	c, _ := newLocal(t, func(frame []byte) [][]byte {
		return [][]byte{[]byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"parse error"}}`)}
	})

	var result string
	err := c.Call(context.Background(), &result, "eth_blockNumber")
	var rpcErr *jsonrpc2.ErrResponse
	if !errors.As(err, &rpcErr) {
		t.Fatalf("got error: %v; want *jsonrpc2.ErrResponse", err)
	}
	if rpcErr.Code != jsonrpc2.ErrCodeParse {
		t.Errorf("got code: %d; want %d", rpcErr.Code, jsonrpc2.ErrCodeParse)
	}
}

func TestTransportErrorFailsBatch(t *testing.T) {
	c, _ := newLocal(t, fakenode.Silent)

	resps, err := c.BuildCall("eth_blockNumber").AddRequest("net_version").Send(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}
	if resps != nil {
		t.Errorf("got partial responses: %v", resps)
	}
}

func TestCallBuilder(t *testing.T) {
	c, _ := newLocal(t, fakenode.Answer(answers, false))

	resps, err := c.SendRequests(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(resps) != 0 {
		t.Errorf("got %d responses for no requests", len(resps))
	}

	call := c.BuildCall("eth_blockNumber").AddRequest("net_version")
	if got, want := len(call.Requests()), 2; got != want {
		t.Errorf("got %d requests; want %d", got, want)
	}
	if _, err := c.Send(context.Background(), call); err != nil {
		t.Fatal(err)
	}
	if _, err := call.Send(context.Background()); err != ErrCallConsumed {
		t.Errorf("got error: %v; want %v", err, ErrCallConsumed)
	}

	_, err = c.BuildCall("").AddRequest("net_version").Send(context.Background())
	var invalidErr *jsonrpc2.InvalidRequestError
	if !errors.As(err, &invalidErr) {
		t.Errorf("got error: %v; want *jsonrpc2.InvalidRequestError", err)
	}
}

func TestNewUnsupportedKind(t *testing.T) {
	_, err := New(context.Background(), transport.Unknown, transport.Config{})
	var cfgErr *transport.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Errorf("got error: %v; want *transport.ConfigError", err)
	}
}

func TestHTTPBlockNumber(t *testing.T) {
	geth := fakenode.NewGeth(16)
	defer geth.Stop()
	server := httptest.NewServer(geth.HTTPHandler())
	defer server.Close()

	c, err := New(context.Background(), transport.HTTP, transport.Config{EndpointURL: server.URL})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	resp, err := c.Request(context.Background(), "eth_blockNumber")
	if err != nil {
		t.Fatal(err)
	}
	success, ok := resp.(*jsonrpc2.Success)
	if !ok {
		t.Fatalf("got %T; want *jsonrpc2.Success", resp)
	}
	if got, want := string(success.Result), `"0x10"`; got != want {
		t.Errorf("got result: %s; want %s", got, want)
	}
	if success.ID != 1 {
		t.Errorf("got id: %d; want 1", success.ID)
	}

	var block hexutil.Uint64
	if err := c.Call(context.Background(), &block, "eth_blockNumber"); err != nil {
		t.Fatal(err)
	}
	if block != 16 {
		t.Errorf("got block: %d; want 16", block)
	}
}

func TestHTTPBatchWithError(t *testing.T) {
	geth := fakenode.NewGeth(16)
	defer geth.Stop()
	server := httptest.NewServer(geth.HTTPHandler())
	defer server.Close()

	c, err := New(context.Background(), transport.HTTP, transport.Config{EndpointURL: server.URL})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	resps, err := c.BuildCall("eth_blockNumber").AddRequest("invalid_method").Send(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(resps) != 2 {
		t.Fatalf("got %d responses; want 2", len(resps))
	}
	if _, ok := resps[0].(*jsonrpc2.Success); !ok {
		t.Errorf("got %T; want *jsonrpc2.Success", resps[0])
	}
	errResp, ok := resps[1].(*jsonrpc2.ErrorResponse)
	if !ok {
		t.Fatalf("got %T; want *jsonrpc2.ErrorResponse", resps[1])
	}
	if errResp.Error.Code != jsonrpc2.ErrCodeMethodNotFound {
		t.Errorf("got code: %d; want %d", errResp.Error.Code, jsonrpc2.ErrCodeMethodNotFound)
	}
	if !strings.Contains(errResp.Error.Message, "invalid_method") {
		t.Errorf("got message: %q", errResp.Error.Message)
	}
}

func TestIPC(t *testing.T) {
	geth := fakenode.NewGeth(16)
	defer geth.Stop()
	path := filepath.Join(t.TempDir(), "geth.ipc")
	l, err := geth.ServeIPC(path)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	c, err := New(context.Background(), transport.IPC, transport.Config{SocketPath: path, PoolSize: 2})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			var chainID hexutil.Uint64
			if err := c.Call(context.Background(), &chainID, "eth_chainId"); err != nil {
				return err
			}
			if chainID != 1 {
				return errors.New("wrong chain id")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	if _, err := c.Subscribe(context.Background(), make(chan *jsonrpc2.SubscriptionEvent), "newHeads"); err != ErrSubscriptionsUnsupported {
		t.Errorf("got error: %v; want %v", err, ErrSubscriptionsUnsupported)
	}
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestWebSocketSubscribe(t *testing.T) {
	geth := fakenode.NewGeth(16)
	defer geth.Stop()
	server := httptest.NewServer(geth.WebsocketHandler())
	defer server.Close()

	c, err := New(context.Background(), transport.WebSocket, transport.Config{EndpointURL: wsURL(server)})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	var block hexutil.Uint64
	if err := c.Call(context.Background(), &block, "eth_blockNumber"); err != nil {
		t.Fatal(err)
	}
	if block != 16 {
		t.Errorf("got block: %d; want 16", block)
	}

	events := make(chan *jsonrpc2.SubscriptionEvent, 4)
	sub, err := c.Subscribe(context.Background(), events, "newHeads")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := c.Handler().Subscriptions(), []string{sub}; !reflect.DeepEqual(got, want) {
		t.Errorf("got subscriptions: %v; want %v", got, want)
	}

	geth.Eth.Mine()
	select {
	case ev := <-events:
		var head fakenode.Head
		if err := json.Unmarshal(ev.Result, &head); err != nil {
			t.Fatal(err)
		}
		if head.Number != 17 {
			t.Errorf("got head: %d; want 17", head.Number)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for newHeads event")
	}

	ok, err := c.Unsubscribe(context.Background(), sub)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("unsubscribe returned false")
	}
	if got := c.Handler().Subscriptions(); len(got) != 0 {
		t.Errorf("got subscriptions after unsubscribe: %v", got)
	}
}

func TestWebSocketBatchOrder(t *testing.T) {
	node := fakenode.NewWebSocketNode(fakenode.Answer(answers, true))
	server := httptest.NewServer(node)
	defer server.Close()

	var frames int32
	c, err := New(context.Background(), transport.WebSocket, transport.Config{
		EndpointURL: wsURL(server),
		Dispatch: func(frame []byte) {
			atomic.AddInt32(&frames, 1)
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	resps, err := c.SendRequests(context.Background(),
		mustRequest(t, 5, "eth_blockNumber"),
		mustRequest(t, 3, "net_version"),
		mustRequest(t, 9, "eth_chainId"),
	)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := ids(resps), []uint64{5, 3, 9}; !reflect.DeepEqual(got, want) {
		t.Errorf("got ids: %v; want %v", got, want)
	}
	// The caller's dispatch still sees every frame.
	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&frames) != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("dispatch saw %d frames; want 1", atomic.LoadInt32(&frames))
		}
		time.Sleep(time.Millisecond)
	}
}

func TestWebSocketTimeout(t *testing.T) {
	node := fakenode.NewWebSocketNode(fakenode.Silent)
	server := httptest.NewServer(node)
	defer server.Close()

	c, err := New(context.Background(), transport.WebSocket, transport.Config{
		EndpointURL: wsURL(server),
		Timeout:     20 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	_, err = c.Request(context.Background(), "eth_blockNumber")
	var timeoutErr *msghandler.TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("got error: %v; want *msghandler.TimeoutError", err)
	}
	if pending := c.Handler().Pending(); len(pending) != 0 {
		t.Errorf("leaked registrations: %v", pending)
	}
}

func TestWebSocketNullIDError(t *testing.T) {
	node := fakenode.NewWebSocketNode(func(frame []byte) [][]byte {
		return [][]byte{[]byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"parse error"}}`)}
	})
	server := httptest.NewServer(node)
	defer server.Close()

	c, err := New(context.Background(), transport.WebSocket, transport.Config{
		EndpointURL: wsURL(server),
		Timeout:     time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	resp, err := c.Request(context.Background(), "eth_blockNumber")
	if err != nil {
		t.Fatal(err)
	}
	errResp, ok := resp.(*jsonrpc2.ErrorResponse)
	if !ok {
		t.Fatalf("got %T; want *jsonrpc2.ErrorResponse", resp)
	}
	if errResp.Error.Code != jsonrpc2.ErrCodeParse {
		t.Errorf("got code: %d; want %d", errResp.Error.Code, jsonrpc2.ErrCodeParse)
	}
	if pending := c.Handler().Pending(); len(pending) != 0 {
		t.Errorf("leaked registrations: %v", pending)
	}
}
