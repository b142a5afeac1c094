package fakenode

import (
	"encoding/json"
	"fmt"

	"github.com/vipnode/ethrpc/jsonrpc2"
)

// Script decides how a scripted node answers an inbound frame. It returns the
// frames to send back, which may be none.
type Script func(frame []byte) [][]byte

// AnswerFunc returns the result or error for one request.
type AnswerFunc func(req jsonrpc2.Request) (result interface{}, err *jsonrpc2.ErrResponse)

// Silent never answers.
func Silent(frame []byte) [][]byte {
	return nil
}

// Answer returns a Script that answers every request in a frame with fn. If
// reverse is set, batch responses are sent in reverse order.
func Answer(fn AnswerFunc, reverse bool) Script {
	return func(frame []byte) [][]byte {
		var reqs []jsonrpc2.Request
		batch := jsonrpc2.IsBatch(frame)
		if batch {
			if err := json.Unmarshal(frame, &reqs); err != nil {
				return [][]byte{parseError()}
			}
		} else {
			var req jsonrpc2.Request
			if err := json.Unmarshal(frame, &req); err != nil {
				return [][]byte{parseError()}
			}
			reqs = append(reqs, req)
		}

		resps := make([]interface{}, 0, len(reqs))
		for _, req := range reqs {
			result, rpcErr := fn(req)
			if rpcErr != nil {
				resps = append(resps, &jsonrpc2.ErrorResponse{ID: req.ID, Version: jsonrpc2.Version, Error: rpcErr})
				continue
			}
			raw, err := json.Marshal(result)
			if err != nil {
				panic(err)
			}
			resps = append(resps, &jsonrpc2.Success{ID: req.ID, Version: jsonrpc2.Version, Result: raw})
		}
		if reverse {
			for i, j := 0, len(resps)-1; i < j; i, j = i+1, j-1 {
				resps[i], resps[j] = resps[j], resps[i]
			}
		}

		var out []byte
		var err error
		if batch {
			out, err = json.Marshal(resps)
		} else {
			out, err = json.Marshal(resps[0])
		}
		if err != nil {
			panic(err)
		}
		return [][]byte{out}
	}
}

// Methods answers from a static table of method results. Unknown methods get
// a method-not-found error.
func Methods(results map[string]interface{}) AnswerFunc {
	return func(req jsonrpc2.Request) (interface{}, *jsonrpc2.ErrResponse) {
		result, ok := results[req.Method]
		if !ok {
			return nil, &jsonrpc2.ErrResponse{
				Code:    jsonrpc2.ErrCodeMethodNotFound,
				Message: fmt.Sprintf("the method %s does not exist/is not available", req.Method),
			}
		}
		return result, nil
	}
}

// Event encodes an eth_subscription notification frame.
func Event(subscription string, result interface{}) []byte {
	out, err := json.Marshal(map[string]interface{}{
		"jsonrpc": jsonrpc2.Version,
		"method":  jsonrpc2.MethodSubscription,
		"params": map[string]interface{}{
			"subscription": subscription,
			"result":       result,
		},
	})
	if err != nil {
		panic(err)
	}
	return out
}

// Result encodes a success response frame.
func Result(id uint64, result interface{}) []byte {
	raw, err := json.Marshal(result)
	if err != nil {
		panic(err)
	}
	out, err := json.Marshal(&jsonrpc2.Success{ID: id, Version: jsonrpc2.Version, Result: raw})
	if err != nil {
		panic(err)
	}
	return out
}

func parseError() []byte {
	return []byte(`{"jsonrpc":"2.0","error":{"code":-32700,"message":"parse error"},"id":null}`)
}
