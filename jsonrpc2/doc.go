/*
	Package jsonrpc2 implements the JSONRPC 2.0 message model used by ethrpc
	clients: requests, the three kinds of responses a node can send back, and
	the encoding and decoding of single and batched payloads.

	Request is an outgoing call. An ID of zero means the ID has not been
	assigned yet; clients assign IDs when the request is sent.

	Response is one of *Success, *ErrorResponse or *SubscriptionEvent. Success
	and ErrorResponse correlate to a request by ID, SubscriptionEvent
	correlates to an earlier eth_subscribe call by its subscription ID.

	This package does not do any I/O, see the transport packages for that.
*/
package jsonrpc2
