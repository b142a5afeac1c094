package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	flags "github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	"github.com/vipnode/ethrpc/client"
	"github.com/vipnode/ethrpc/eth"
	"github.com/vipnode/ethrpc/internal/fakenode"
	"github.com/vipnode/ethrpc/jsonrpc2"
	"github.com/vipnode/ethrpc/transport"
	"github.com/vipnode/ethrpc/transport/ipc"
)

func newLocalClient(t *testing.T, results map[string]interface{}) *client.Client {
	t.Helper()
	script := fakenode.Answer(fakenode.Methods(results), false)
	c, err := client.New(context.Background(), transport.Local, transport.Config{
		Handler: func(ctx context.Context, payload []byte) ([]byte, error) {
			return script(payload)[0], nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// syncBuffer is written by a command in one goroutine and read by the test in
// another.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for condition")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestParseParam(t *testing.T) {
	testcases := []struct {
		In   string
		Want interface{}
	}{
		{"latest", "latest"},
		{"0x407d73d8a49eeb85d32cf465507dd71d507100c1", "0x407d73d8a49eeb85d32cf465507dd71d507100c1"},
		{"true", json.RawMessage("true")},
		{"42", json.RawMessage("42")},
		{`{"to":"0x01"}`, json.RawMessage(`{"to":"0x01"}`)},
		{`"quoted"`, json.RawMessage(`"quoted"`)},
	}
	for _, tc := range testcases {
		if got := parseParam(tc.In); !reflect.DeepEqual(got, tc.Want) {
			t.Errorf("parseParam(%q): got %#v; want %#v", tc.In, got, tc.Want)
		}
	}
}

func TestParseBatchArg(t *testing.T) {
	testcases := []struct {
		In         string
		WantMethod string
		WantParams []interface{}
	}{
		{"eth_blockNumber", "eth_blockNumber", nil},
		{"eth_blockNumber:", "eth_blockNumber", nil},
		{"eth_getBalance:0xabc,latest", "eth_getBalance", []interface{}{"0xabc", "latest"}},
		{"eth_getBlockByNumber:\"0x10\",true", "eth_getBlockByNumber", []interface{}{json.RawMessage(`"0x10"`), json.RawMessage("true")}},
		{`eth_call:{"to":"0x01","data":"0x"},"latest"`, "eth_call", []interface{}{json.RawMessage(`{"to":"0x01","data":"0x"}`), json.RawMessage(`"latest"`)}},
	}
	for _, tc := range testcases {
		method, params := parseBatchArg(tc.In)
		if method != tc.WantMethod {
			t.Errorf("parseBatchArg(%q) method: got %q; want %q", tc.In, method, tc.WantMethod)
		}
		if !reflect.DeepEqual(params, tc.WantParams) {
			t.Errorf("parseBatchArg(%q) params: got %#v; want %#v", tc.In, params, tc.WantParams)
		}
	}
}

func TestResolveMethod(t *testing.T) {
	wire, params, err := resolveMethod("GetBalance", []interface{}{"0xabc"})
	if err != nil {
		t.Fatal(err)
	}
	if wire != "eth_getBalance" {
		t.Errorf("got wire name: %q", wire)
	}
	if want := []interface{}{"0xabc", "latest"}; !reflect.DeepEqual(params, want) {
		t.Errorf("got params: %#v; want %#v", params, want)
	}

	_, params, err = resolveMethod("eth_getBalance", parseParams([]string{"0xabc", "16"}))
	if err != nil {
		t.Fatal(err)
	}
	if want := []interface{}{"0xabc", "0x10"}; !reflect.DeepEqual(params, want) {
		t.Errorf("got params: %#v; want %#v", params, want)
	}

	wire, params, err = resolveMethod("debug_traceTransaction", []interface{}{"0x01"})
	if err != nil {
		t.Fatal(err)
	}
	if wire != "debug_traceTransaction" || len(params) != 1 {
		t.Errorf("unknown method was not passed through: %s %v", wire, params)
	}

	_, _, err = resolveMethod("GetCode", nil)
	var arityErr *eth.ArityError
	if !errors.As(err, &arityErr) {
		t.Errorf("got error: %v; want *eth.ArityError", err)
	}
}

func TestTransportConfig(t *testing.T) {
	testcases := []struct {
		Options  Options
		Kind     transport.Kind
		Endpoint string
		Socket   string
	}{
		{Options{Endpoint: "http://localhost:8545"}, transport.HTTP, "http://localhost:8545", ""},
		{Options{Endpoint: "wss://node.example.com/ws"}, transport.WebSocket, "wss://node.example.com/ws", ""},
		{Options{Endpoint: "/tmp/geth.ipc"}, transport.IPC, "", "/tmp/geth.ipc"},
		{Options{Endpoint: "unix:///tmp/geth.ipc"}, transport.IPC, "", "/tmp/geth.ipc"},
		{Options{Endpoint: "/tmp/geth.ipc", Transport: "ipc"}, transport.IPC, "", "/tmp/geth.ipc"},
	}
	for _, tc := range testcases {
		kind, cfg, err := transportConfig(tc.Options)
		if err != nil {
			t.Errorf("%q: %s", tc.Options.Endpoint, err)
			continue
		}
		if kind != tc.Kind {
			t.Errorf("%q: got kind %s; want %s", tc.Options.Endpoint, kind, tc.Kind)
		}
		if cfg.EndpointURL != tc.Endpoint || cfg.SocketPath != tc.Socket {
			t.Errorf("%q: got endpoint %q socket %q", tc.Options.Endpoint, cfg.EndpointURL, cfg.SocketPath)
		}
	}

	_, cfg, err := transportConfig(Options{
		Endpoint: "http://localhost:8545",
		Timeout:  3 * time.Second,
		Headers:  []string{"Authorization: Bearer abc", "X-Trace:1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Timeout != 3*time.Second {
		t.Errorf("got timeout: %s", cfg.Timeout)
	}
	if want := map[string]string{"Authorization": "Bearer abc", "X-Trace": "1"}; !reflect.DeepEqual(cfg.Headers, want) {
		t.Errorf("got headers: %v; want %v", cfg.Headers, want)
	}

	var configErr *transport.ConfigError
	_, _, err = transportConfig(Options{Endpoint: "http://localhost:8545", Headers: []string{"nocolon"}})
	if !errors.As(err, &configErr) || configErr.Field != "Headers" {
		t.Errorf("got error: %v; want Headers config error", err)
	}
	_, _, err = transportConfig(Options{Endpoint: "ftp://localhost"})
	if !errors.As(err, &configErr) || configErr.Field != "Transport" {
		t.Errorf("got error: %v; want Transport config error", err)
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	options := Options{}
	parser := flags.NewParser(&options, flags.None)
	path, err := loadConfig(parser, []string{"info"})
	if err != nil {
		t.Fatal(err)
	}
	if path != "" {
		t.Errorf("loaded a config that doesn't exist: %s", path)
	}

	ini := "[Application Options]\nendpoint = ws://localhost:8546\ntimeout = 10s\n"
	configPath := defaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(configPath), 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(configPath, []byte(ini), 0600); err != nil {
		t.Fatal(err)
	}

	options = Options{}
	parser = flags.NewParser(&options, flags.None)
	args := []string{"--timeout", "2s", "info"}
	path, err = loadConfig(parser, args)
	if err != nil {
		t.Fatal(err)
	}
	if path != configPath {
		t.Errorf("got config path: %q; want %q", path, configPath)
	}
	if _, err := parser.ParseArgs(args); err != nil {
		t.Fatal(err)
	}
	if options.Endpoint != "ws://localhost:8546" {
		t.Errorf("got endpoint: %q", options.Endpoint)
	}
	if options.Timeout != 2*time.Second {
		t.Errorf("flag did not override config: got timeout %s", options.Timeout)
	}

	explicit := filepath.Join(t.TempDir(), "other.ini")
	if err := os.WriteFile(explicit, []byte("[Application Options]\nendpoint = http://localhost:8545\n"), 0600); err != nil {
		t.Fatal(err)
	}
	options = Options{}
	parser = flags.NewParser(&options, flags.None)
	path, err = loadConfig(parser, []string{"--config", explicit, "info"})
	if err != nil {
		t.Fatal(err)
	}
	if path != explicit || options.Endpoint != "http://localhost:8545" {
		t.Errorf("got config %q with endpoint %q", path, options.Endpoint)
	}
}

func TestRunCall(t *testing.T) {
	c := newLocalClient(t, map[string]interface{}{
		"eth_blockNumber": "0x10",
	})

	var out bytes.Buffer
	if err := runCall(context.Background(), c, &out, "BlockNumber", nil); err != nil {
		t.Fatal(err)
	}
	if got, want := out.String(), "\"0x10\"\n"; got != want {
		t.Errorf("got output: %q; want %q", got, want)
	}

	out.Reset()
	err := runCall(context.Background(), c, &out, "eth_nope", nil)
	var rpcErr *jsonrpc2.ErrResponse
	if !errors.As(err, &rpcErr) || rpcErr.Code != jsonrpc2.ErrCodeMethodNotFound {
		t.Fatalf("got error: %v; want method not found", err)
	}
	if !strings.Contains(out.String(), `"code": -32601`) {
		t.Errorf("error object was not printed: %s", out.String())
	}
}

func TestRunBatch(t *testing.T) {
	c := newLocalClient(t, map[string]interface{}{
		"eth_chainId":     "0x1",
		"eth_blockNumber": "0x10",
	})

	var out bytes.Buffer
	if err := runBatch(context.Background(), c, &out, []string{"eth_blockNumber", "eth_nope", "ChainID"}); err != nil {
		t.Fatal(err)
	}
	var resps []struct {
		ID     uint64                `json:"id"`
		Result json.RawMessage       `json:"result"`
		Error  *jsonrpc2.ErrResponse `json:"error"`
	}
	if err := json.Unmarshal(out.Bytes(), &resps); err != nil {
		t.Fatalf("invalid output: %s: %s", err, out.String())
	}
	if len(resps) != 3 {
		t.Fatalf("got %d responses; want 3", len(resps))
	}
	if string(resps[0].Result) != `"0x10"` || resps[0].ID != 1 {
		t.Errorf("got first response: %+v", resps[0])
	}
	if resps[1].Error == nil || resps[1].Error.Code != jsonrpc2.ErrCodeMethodNotFound {
		t.Errorf("got second response: %+v", resps[1])
	}
	if string(resps[2].Result) != `"0x1"` || resps[2].ID != 3 {
		t.Errorf("got third response: %+v", resps[2])
	}

	if err := runBatch(context.Background(), c, &out, []string{"GetCode"}); err == nil {
		t.Error("expected an arity error")
	}
}

func TestRunBalance(t *testing.T) {
	var gotParams json.RawMessage
	script := fakenode.Answer(func(req jsonrpc2.Request) (interface{}, *jsonrpc2.ErrResponse) {
		gotParams = req.Params
		return "0xd02ab486cedc0000", nil
	}, false)
	c, err := client.New(context.Background(), transport.Local, transport.Config{
		Handler: func(ctx context.Context, payload []byte) ([]byte, error) {
			return script(payload)[0], nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	var out bytes.Buffer
	if err := runBalance(context.Background(), c, &out, "0x407d73d8a49eeb85d32cf465507dd71d507100c1", "16"); err != nil {
		t.Fatal(err)
	}
	if got, want := out.String(), "15 ether\n"; got != want {
		t.Errorf("got output: %q; want %q", got, want)
	}
	if got, want := string(gotParams), `["0x407d73d8a49eeb85d32cf465507dd71d507100c1","0x10"]`; got != want {
		t.Errorf("got params: %s; want %s", got, want)
	}
}

func TestRunInfo(t *testing.T) {
	geth := fakenode.NewGeth(16)
	defer geth.Stop()
	server := httptest.NewServer(geth.HTTPHandler())
	defer server.Close()

	c, err := client.New(context.Background(), transport.HTTP, transport.Config{EndpointURL: server.URL})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	var out bytes.Buffer
	// The fake node has no admin API, which only skips the peering info.
	if err := runInfo(context.Background(), c, &out); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"Client:   Geth/v1.9.15-stable/linux-amd64/go1.21\n",
		"Kind:     geth-full\n",
		"Block:    16\n",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("missing %q in output:\n%s", want, out.String())
		}
	}
	if strings.Contains(out.String(), "Enode:") {
		t.Errorf("unexpected peering info:\n%s", out.String())
	}
}

func TestRunSubscribe(t *testing.T) {
	geth := fakenode.NewGeth(16)
	defer geth.Stop()
	server := httptest.NewServer(geth.WebsocketHandler())
	defer server.Close()

	c, err := client.New(context.Background(), transport.WebSocket, transport.Config{
		EndpointURL: "ws" + strings.TrimPrefix(server.URL, "http"),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var out syncBuffer
	errCh := make(chan error, 1)
	go func() {
		errCh <- runSubscribe(ctx, c, &out, 4, "newHeads", nil)
	}()

	waitFor(t, func() bool { return geth.Eth.NumSubscriptions() == 1 })
	geth.Eth.Mine()
	waitFor(t, func() bool { return strings.Contains(out.String(), `{"number":"0x11"}`) })

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe did not return after cancel")
	}
	waitFor(t, func() bool { return geth.Eth.NumSubscriptions() == 0 })
	if subs := c.Handler().Subscriptions(); len(subs) != 0 {
		t.Errorf("subscription still routed: %v", subs)
	}
}

func TestRunSubscribeUnsupported(t *testing.T) {
	c := newLocalClient(t, nil)
	err := runSubscribe(context.Background(), c, &bytes.Buffer{}, 1, "newHeads", nil)
	if err != client.ErrSubscriptionsUnsupported {
		t.Errorf("got error: %v; want %v", err, client.ErrSubscriptionsUnsupported)
	}
}

func TestExplain(t *testing.T) {
	explained := []error{
		&transport.ConfigError{Field: "EndpointURL", Reason: "required"},
		errors.Wrap(&jsonrpc2.ErrResponse{Code: jsonrpc2.ErrCodeMethodNotFound, Message: "nope"}, "call"),
		&ipc.PoolTimeoutError{After: time.Second},
		client.ErrSubscriptionsUnsupported,
	}
	for _, err := range explained {
		var e ErrExplain
		if !errors.As(explain(err), &e) {
			t.Errorf("%T was not explained", err)
		}
	}

	plain := errors.New("something else")
	if got := explain(plain); got != plain {
		t.Errorf("got %v; want the error unchanged", got)
	}
	rpcErr := &jsonrpc2.ErrResponse{Code: -32000, Message: "execution reverted"}
	if got := explain(rpcErr); got != error(rpcErr) {
		t.Errorf("got %v; want the error unchanged", got)
	}
}
