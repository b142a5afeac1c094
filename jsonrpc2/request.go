package jsonrpc2

import (
	"encoding/json"
)

var emptyParams = json.RawMessage("[]")

// NewRequest returns a request without an ID, one will be assigned when it's
// sent. Each param is encoded as one positional argument, except that a
// single []interface{} or json.RawMessage argument is taken as the complete
// positional params list.
func NewRequest(method string, params ...interface{}) (*Request, error) {
	if method == "" {
		return nil, &InvalidRequestError{Field: "method", Reason: "must be a non-empty string"}
	}
	raw, err := encodeParams(params)
	if err != nil {
		return nil, err
	}
	return &Request{
		Version: Version,
		Method:  method,
		Params:  raw,
	}, nil
}

// NewRequestWithID is like NewRequest but with an explicit ID, which must be
// positive.
func NewRequestWithID(id uint64, method string, params ...interface{}) (*Request, error) {
	if id == 0 {
		return nil, &InvalidRequestError{Field: "id", Reason: "must be a positive integer"}
	}
	req, err := NewRequest(method, params...)
	if err != nil {
		return nil, err
	}
	req.ID = id
	return req, nil
}

// NewRawRequest builds a request from already-encoded params, which must be a
// JSON array. An empty params value is treated as no params. A zero id means
// no ID.
func NewRawRequest(id uint64, method string, params json.RawMessage) (*Request, error) {
	if method == "" {
		return nil, &InvalidRequestError{Field: "method", Reason: "must be a non-empty string"}
	}
	if len(params) == 0 {
		params = emptyParams
	} else if !isArray(params) || !json.Valid(params) {
		return nil, &InvalidRequestError{Field: "params", Reason: "must be a JSON array"}
	}
	return &Request{
		Version: Version,
		Method:  method,
		Params:  params,
		ID:      id,
	}, nil
}

func encodeParams(params []interface{}) (json.RawMessage, error) {
	if len(params) == 0 {
		return emptyParams, nil
	}
	// A single slice argument is taken as the whole positional params list.
	if len(params) == 1 {
		switch p := params[0].(type) {
		case json.RawMessage:
			if !isArray(p) || !json.Valid(p) {
				return nil, &InvalidRequestError{Field: "params", Reason: "must be a JSON array"}
			}
			return p, nil
		case []interface{}:
			if len(p) == 0 {
				return emptyParams, nil
			}
			params = p
		}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, &InvalidRequestError{Field: "params", Reason: err.Error()}
	}
	return raw, nil
}
