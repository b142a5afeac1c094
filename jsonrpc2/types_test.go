package jsonrpc2

import (
	"encoding/json"
	"testing"
)

func TestRequestString(t *testing.T) {
	req, err := NewRequestWithID(42, "eth_getBalance", "0x01", "latest")
	if err != nil {
		t.Fatal(err)
	}

	got, want := req.String(), `eth_getBalance["0x01","latest"]#42`
	if got != want {
		t.Errorf("wrong request string formatting:\n  got: %s;\n want: %s", got, want)
	}
}

func TestResponseID(t *testing.T) {
	testcases := []struct {
		Resp Response
		Want uint64
	}{
		{&Success{ID: 7}, 7},
		{&ErrorResponse{ID: 9, Error: &ErrResponse{Code: ErrCodeInternal}}, 9},
		{&ErrorResponse{Error: &ErrResponse{Code: ErrCodeParse}}, 0},
		{&SubscriptionEvent{Subscription: "0xcd0c3e8af590364c09d0fa6a1210faf5"}, 0},
		{nil, 0},
	}
	for i, tc := range testcases {
		if got := ResponseID(tc.Resp); got != tc.Want {
			t.Errorf("[case %d] got: %d; want %d", i, got, tc.Want)
		}
	}
}

func TestUnmarshalResult(t *testing.T) {
	var block string
	resp := &Success{ID: 1, Result: json.RawMessage(`"0x10"`)}
	if err := resp.UnmarshalResult(&block); err != nil {
		t.Fatal(err)
	}
	if block != "0x10" {
		t.Errorf("got: %q; want %q", block, "0x10")
	}

	block = "untouched"
	resp = &Success{ID: 1, Result: json.RawMessage(`null`)}
	if err := resp.UnmarshalResult(&block); err != nil {
		t.Fatal(err)
	}
	if block != "untouched" {
		t.Errorf("null result changed the value to %q", block)
	}
}

func TestErrResponse(t *testing.T) {
	err := &ErrResponse{Code: ErrCodeMethodNotFound, Message: "the method invalid_method does not exist/is not available"}
	if got, want := err.Error(), "-32601: the method invalid_method does not exist/is not available"; got != want {
		t.Errorf("got: %q; want %q", got, want)
	}
	if err.ErrorCode() != -32601 {
		t.Errorf("got code: %d", err.ErrorCode())
	}
}
