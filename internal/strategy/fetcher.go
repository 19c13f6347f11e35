package strategy

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/estoca-ai/estoca-worker/internal/cachestore"
	"github.com/estoca-ai/estoca-worker/internal/errors"
)

// Request is an intercepted request with its body already buffered.
type Request struct {
	Key    cachestore.Key
	Header http.Header
	Body   []byte
}

// NewRequest builds a GET request for key with no headers.
func NewRequest(key cachestore.Key) *Request {
	return &Request{Key: key, Header: http.Header{}}
}

// Cacheable reports whether the request may be read from or written to a
// partition. Only GET requests are.
func (r *Request) Cacheable() bool {
	return r.Key.Method == http.MethodGet
}

// Fetcher performs the network side of a request. An error means the
// network failed; HTTP error statuses are returned as responses.
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (*cachestore.Response, error)
}

// skipRequestHeaders are never forwarded upstream.
var skipRequestHeaders = map[string]bool{
	"Connection":        true,
	"Keep-Alive":        true,
	"Proxy-Connection":  true,
	"Transfer-Encoding": true,
	"Upgrade":           true,
	"Te":                true,
	"Host":              true,
	"Content-Length":    true,
}

// HTTPFetcher fetches over an *http.Client.
type HTTPFetcher struct {
	client *http.Client
}

var _ Fetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher creates a fetcher. A nil client uses a default client with
// the given timeout (0 means no timeout).
func NewHTTPFetcher(client *http.Client, timeout time.Duration) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPFetcher{client: client}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, req *Request) (*cachestore.Response, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Key.Method, req.Key.URL, body)
	if err != nil {
		return nil, networkError(err, req)
	}
	for k, vs := range req.Header {
		if skipRequestHeaders[http.CanonicalHeaderKey(k)] {
			continue
		}
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, networkError(err, req)
	}
	out, err := cachestore.FromHTTP(resp)
	if err != nil {
		return nil, networkError(err, req)
	}
	return out, nil
}

func networkError(err error, req *Request) error {
	return errors.New(err).
		Component("strategy").
		Category(errors.CategoryNetwork).
		Context("operation", "fetch").
		Context("url", req.Key.URL).
		Context("method", req.Key.Method).
		Build()
}
