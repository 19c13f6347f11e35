package cachestore

import (
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Response is a fully buffered HTTP response that can be stored, cloned and
// replayed any number of times.
type Response struct {
	Status   int
	Header   http.Header
	Body     []byte
	StoredAt time.Time
}

// NewResponse builds a response with a single Content-Type header.
func NewResponse(status int, contentType string, body []byte) *Response {
	h := http.Header{}
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return &Response{Status: status, Header: h, Body: body}
}

// FromHTTP reads and closes resp.Body.
func FromHTTP(resp *http.Response) (*Response, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return &Response{
		Status: resp.StatusCode,
		Header: resp.Header.Clone(),
		Body:   body,
	}, nil
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Clone returns a deep copy so the stored copy and the returned copy never
// share a header map or body slice.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	c := &Response{Status: r.Status, StoredAt: r.StoredAt, Header: r.Header.Clone()}
	if r.Body != nil {
		c.Body = append([]byte(nil), r.Body...)
	}
	return c
}

// Digest returns the blake2b-256 hex digest of the body.
func (r *Response) Digest() string {
	sum := blake2b.Sum256(r.Body)
	return hex.EncodeToString(sum[:])
}

// hopHeaders are connection-scoped and never replayed to a client.
var hopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Connection", "Transfer-Encoding", "Upgrade", "Trailer", "Te",
}

// Write replays the response onto w.
func (r *Response) Write(w http.ResponseWriter) error {
	h := w.Header()
	for k, vs := range r.Header {
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	for _, k := range hopHeaders {
		h.Del(k)
	}
	h.Set("Content-Length", strconv.Itoa(len(r.Body)))
	w.WriteHeader(r.Status)
	_, err := w.Write(r.Body)
	return err
}
