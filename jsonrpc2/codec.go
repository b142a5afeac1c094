package jsonrpc2

import (
	"bytes"
	"encoding/json"
	"strconv"

	"go.uber.org/multierr"
)

// EncodeRequest serializes a single request.
func EncodeRequest(req *Request) ([]byte, error) {
	out, err := json.Marshal(req)
	if err != nil {
		return nil, &EncodingError{err}
	}
	return out, nil
}

// EncodeBatch serializes requests as a JSON array, even if there is only one.
func EncodeBatch(reqs []*Request) ([]byte, error) {
	out, err := json.Marshal(reqs)
	if err != nil {
		return nil, &EncodingError{err}
	}
	return out, nil
}

// wireMessage is the superset of every inbound message shape.
type wireMessage struct {
	ID      json.RawMessage `json:"id"`
	Version *fixedVersion   `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	Result  json.RawMessage `json:"result"`
	Error   *ErrResponse    `json:"error"`
}

type subscriptionParams struct {
	Subscription string          `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

// Decode deserializes a payload which may be a single response or a batch.
// Batch decoding is all-or-nothing: if any element is malformed, the returned
// DecodingError names every offending element.
func Decode(payload []byte) (resps []Response, batch bool, err error) {
	if isArray(payload) {
		resps, err = DecodeBatch(payload)
		return resps, true, err
	}
	resp, err := DecodeResponse(payload)
	if err != nil {
		return nil, false, err
	}
	return []Response{resp}, false, nil
}

// DecodeResponse deserializes a single, non-batched response.
func DecodeResponse(payload []byte) (Response, error) {
	var msg wireMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, &DecodingError{Reason: "invalid json", cause: err}
	}
	resp, reason := fromWire(&msg)
	if resp == nil {
		return nil, &DecodingError{Reason: reason}
	}
	return resp, nil
}

// DecodeBatch deserializes a JSON array of responses.
func DecodeBatch(payload []byte) ([]Response, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(payload, &raws); err != nil {
		return nil, &DecodingError{Reason: "invalid json", cause: err}
	}

	var errs error
	resps := make([]Response, 0, len(raws))
	for i, raw := range raws {
		var msg wireMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			errs = multierr.Append(errs, &ElementError{Index: i, Reason: err.Error()})
			continue
		}
		resp, reason := fromWire(&msg)
		if resp == nil {
			errs = multierr.Append(errs, &ElementError{Index: i, Reason: reason})
			continue
		}
		resps = append(resps, resp)
	}
	if errs != nil {
		return nil, &DecodingError{Reason: "malformed batch", cause: errs}
	}
	return resps, nil
}

// fromWire converts a decoded message into a Response, or returns a reason
// why it can't be.
func fromWire(msg *wireMessage) (Response, string) {
	if msg.Method == MethodSubscription {
		var params subscriptionParams
		if err := json.Unmarshal(msg.Params, &params); err != nil || params.Subscription == "" {
			return nil, "subscription event without params.subscription"
		}
		return &SubscriptionEvent{
			Subscription: params.Subscription,
			Result:       params.Result,
		}, ""
	}

	id, ok := parseID(msg.ID)
	if !ok {
		return nil, "invalid id: " + string(msg.ID)
	}
	if msg.Error != nil {
		return &ErrorResponse{
			ID:      id,
			Version: Version,
			Error:   msg.Error,
		}, ""
	}
	if len(msg.Result) > 0 {
		return &Success{
			ID:      id,
			Version: Version,
			Result:  msg.Result,
		}, ""
	}
	if msg.Method != "" {
		return nil, "unexpected request or notification: " + msg.Method
	}
	return nil, "missing result and error"
}

// parseID accepts numeric IDs, numeric strings, and null (which maps to 0).
func parseID(raw json.RawMessage) (uint64, bool) {
	raw = bytes.TrimSpace(raw)
	if isNull(raw) {
		return 0, true
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		raw = []byte(s)
	}
	id, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
