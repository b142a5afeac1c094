package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/vipnode/ethrpc/client"
	"github.com/vipnode/ethrpc/eth"
	"github.com/vipnode/ethrpc/ethnode"
	"github.com/vipnode/ethrpc/internal/pretty"
	"github.com/vipnode/ethrpc/jsonrpc2"
)

// rpcTimeout bounds the calls made on the way out, after an interrupt.
var rpcTimeout = time.Second * 5

// parseParam returns s as raw JSON if it parses as JSON, otherwise as a
// string.
func parseParam(s string) interface{} {
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	return s
}

func parseParams(args []string) []interface{} {
	params := make([]interface{}, 0, len(args))
	for _, arg := range args {
		params = append(params, parseParam(arg))
	}
	return params
}

// parseBatchArg splits METHOD:PARAM,PARAM into the method and its params. If
// the params form a valid JSON list they are split as JSON, so objects with
// commas survive.
func parseBatchArg(s string) (string, []interface{}) {
	method, rest, ok := strings.Cut(s, ":")
	if !ok || rest == "" {
		return method, nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte("["+rest+"]"), &raw); err == nil {
		params := make([]interface{}, 0, len(raw))
		for _, r := range raw {
			params = append(params, r)
		}
		return method, params
	}
	return method, parseParams(strings.Split(rest, ","))
}

// resolveMethod translates friendly names to wire names and fills in the
// default block tag. Methods that aren't in the table pass through as-is.
func resolveMethod(name string, params []interface{}) (string, []interface{}, error) {
	m, ok := eth.Lookup(name)
	if !ok {
		return name, params, nil
	}
	if m.BlockTag && len(params) == m.Arity {
		params[len(params)-1] = blockNumber(params[len(params)-1])
	}
	params, err := m.Params(params...)
	if err != nil {
		return "", nil, err
	}
	return m.Wire, params, nil
}

// blockNumber turns a decimal block number into a number so that it gets hex
// encoded.
func blockNumber(param interface{}) interface{} {
	raw, ok := param.(json.RawMessage)
	if !ok {
		return param
	}
	if n, err := strconv.ParseUint(string(raw), 10, 64); err == nil {
		return n
	}
	return param
}

func writeJSON(w io.Writer, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", out)
	return err
}

func runCall(ctx context.Context, c *client.Client, w io.Writer, method string, args []string) error {
	wire, params, err := resolveMethod(method, parseParams(args))
	if err != nil {
		return err
	}
	// A lone json.RawMessage param would be taken for the whole list, so
	// params always goes in as the list.
	resp, err := c.Request(ctx, wire, params)
	if err != nil {
		return err
	}
	switch resp := resp.(type) {
	case *jsonrpc2.Success:
		return writeJSON(w, resp.Result)
	case *jsonrpc2.ErrorResponse:
		if err := writeJSON(w, resp.Error); err != nil {
			return err
		}
		return resp.Error
	}
	return errors.Errorf("unexpected response type: %T", resp)
}

func runBatch(ctx context.Context, c *client.Client, w io.Writer, args []string) error {
	var call *client.Call
	for _, arg := range args {
		method, params := parseBatchArg(arg)
		wire, params, err := resolveMethod(method, params)
		if err != nil {
			return errors.Wrapf(err, "batch request %q", arg)
		}
		if call == nil {
			call = c.BuildCall(wire, params)
		} else {
			call.AddRequest(wire, params)
		}
	}
	if call == nil {
		return errors.New("no requests to send")
	}
	resps, err := call.Send(ctx)
	if err != nil {
		return err
	}
	return writeJSON(w, resps)
}

// runSubscribe prints the result of each event on its own line until ctx is
// done or the process is interrupted, then unsubscribes.
func runSubscribe(ctx context.Context, c *client.Client, w io.Writer, buffer int, kind string, args []string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	if buffer < 0 {
		buffer = 0
	}
	events := make(chan *jsonrpc2.SubscriptionEvent, buffer)
	params := append([]interface{}{kind}, parseParams(args)...)
	sub, err := c.Subscribe(ctx, events, params...)
	if err != nil {
		return err
	}
	logger.Infof("Subscribed to %s: %s", kind, pretty.Hex(sub))

	enc := json.NewEncoder(w)
	for {
		select {
		case ev := <-events:
			if err := enc.Encode(ev.Result); err != nil {
				return err
			}
		case <-ctx.Done():
			logger.Info("Unsubscribing...")
			unsubCtx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
			defer cancel()
			ok, err := c.Unsubscribe(unsubCtx, sub)
			if err != nil {
				return err
			}
			if !ok {
				logger.Warningf("Node did not know subscription %s", pretty.Hex(sub))
			}
			return nil
		}
	}
}

func runInfo(ctx context.Context, c *client.Client, w io.Writer) error {
	node, err := ethnode.Remote(ctx, c)
	if err != nil {
		return err
	}
	agent := node.UserAgent()
	fmt.Fprintf(w, "Client:   %s\n", agent.Version)
	fmt.Fprintf(w, "Kind:     %s\n", agent.KindType())
	fmt.Fprintf(w, "Network:  %s\n", agent.Network)
	fmt.Fprintf(w, "Protocol: %s\n", agent.EthProtocol)

	block, err := node.BlockNumber(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Block:    %d\n", block)

	if err := node.CheckCompatible(ctx); err != nil {
		var compatErr *ethnode.IncompatibleError
		if errors.As(err, &compatErr) {
			logger.Warningf("Skipping peering info: %s", err)
			return nil
		}
		return err
	}

	enode, err := node.Enode(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Enode:    %s\n", enode)

	peers, err := node.Peers(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Peers:    %d\n", len(peers))
	for _, peer := range peers {
		fmt.Fprintf(w, "  %s %s\n", pretty.Hex(peer.EnodeID()), peer.Name)
	}
	return nil
}

func runBalance(ctx context.Context, c *client.Client, w io.Writer, address string, block string) error {
	args := []interface{}{address}
	if block != "" {
		args = append(args, blockNumber(parseParam(block)))
	}
	var balance string
	if err := eth.Invoke(ctx, c, &balance, "GetBalance", args...); err != nil {
		return err
	}
	ether, err := pretty.HexEther(balance)
	if err != nil {
		return errors.Wrapf(err, "invalid balance %q", balance)
	}
	_, err = fmt.Fprintf(w, "%s\n", ether)
	return err
}
