// Package httptransport implements the synchronous HTTP transport: one
// request maps to one POST on a pooled client and one response.
package httptransport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vipnode/ethrpc/transport"
)

const httpContentType = "application/json"

// UserAgent is sent with every request unless overridden by a header.
var UserAgent = "ethrpc/dev"

var _ transport.Sync = &Transport{}

// Transport posts encoded requests to an HTTP endpoint. It holds no state
// beyond the pooled connections of its client and is safe for concurrent use.
type Transport struct {
	client   *http.Client
	endpoint string
	header   http.Header

	// maxContentLength is the response size limit (optional)
	maxContentLength int64
}

// New validates cfg and returns an HTTP transport.
func New(cfg transport.Config) (*Transport, error) {
	u, err := transport.ValidateURL(cfg.EndpointURL, "http", "https")
	if err != nil {
		return nil, err
	}
	if cfg.MaxContentLength < 0 {
		return nil, &transport.ConfigError{Field: "MaxContentLength", Reason: "must not be negative"}
	}

	client := cfg.HTTPClient
	if client == nil {
		client = newClient(cfg.TimeoutOrDefault())
	}

	header := http.Header{}
	header.Set("Content-Type", httpContentType)
	header.Set("Accept", httpContentType)
	header.Set("User-Agent", UserAgent)
	for k, v := range cfg.Headers {
		header.Set(k, v)
	}

	return &Transport{
		client:           client,
		endpoint:         u.String(),
		header:           header,
		maxContentLength: cfg.MaxContentLength,
	}, nil
}

func newClient(timeout time.Duration) *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.MaxIdleConnsPerHost = 64
	return &http.Client{
		Timeout:   timeout,
		Transport: tr,
	}
}

func (t *Transport) Kind() transport.Kind { return transport.HTTP }

// Endpoint returns the URL requests are posted to.
func (t *Transport) Endpoint() string { return t.endpoint }

// Send posts the payload and returns the response body. Network failures are
// returned unchanged, non-200 responses return *HTTPError.
func (t *Transport) Send(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequest(http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)
	for k, v := range t.header {
		req.Header[k] = v
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer cleanlyCloseBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &HTTPError{
			Status: resp.StatusCode,
			Body:   string(body),
		}
	}
	if t.maxContentLength > 0 && resp.ContentLength > t.maxContentLength {
		return nil, &HTTPError{
			Status: resp.StatusCode,
			Reason: "response too large",
		}
	}

	var r io.Reader = resp.Body
	if t.maxContentLength > 0 {
		r = io.LimitReader(resp.Body, t.maxContentLength+1)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if t.maxContentLength > 0 && int64(len(body)) > t.maxContentLength {
		return nil, &HTTPError{
			Status: resp.StatusCode,
			Reason: "response too large",
		}
	}
	return body, nil
}

// Close drops idle pooled connections.
func (t *Transport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

// cleanlyCloseBody drains and closes a response body so the connection can be
// reused.
func cleanlyCloseBody(body io.ReadCloser) error {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 1<<16))
	return body.Close()
}

// HTTPError is returned when the node responds with a non-200 status.
type HTTPError struct {
	Status int
	Body   string
	Reason string
}

func (err *HTTPError) Error() string {
	if err.Reason != "" {
		return fmt.Sprintf("http rpc request error: %s (status %d)", err.Reason, err.Status)
	}
	return fmt.Sprintf("http rpc request error: bad status code: %d", err.Status)
}
