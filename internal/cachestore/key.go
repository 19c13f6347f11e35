package cachestore

import (
	"encoding/hex"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/estoca-ai/estoca-worker/internal/errors"
)

// Key is the identity of a cached request: method plus normalized absolute URL.
type Key struct {
	Method string
	URL    string
}

// String renders the key as "GET https://host/path".
func (k Key) String() string {
	return k.Method + " " + k.URL
}

// Hash returns the blake2b-256 hex digest of the key, used as the storage index.
func (k Key) Hash() string {
	sum := blake2b.Sum256([]byte(k.String()))
	return hex.EncodeToString(sum[:])
}

// Path returns the path component of the key URL.
func (k Key) Path() string {
	u, err := url.Parse(k.URL)
	if err != nil {
		return ""
	}
	return u.Path
}

// NewKey normalizes raw into a Key. Relative URLs resolve against base.
// Normalization lowercases scheme and host, strips default ports and the
// fragment, maps an empty path to "/" and sorts query parameters.
func NewKey(method, raw string, base *url.URL) (Key, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Key{}, errors.New(err).
			Component("cachestore").
			Category(errors.CategoryValidation).
			Context("operation", "parse_key").
			Context("url", raw).
			Build()
	}
	if !u.IsAbs() {
		if base == nil {
			return Key{}, errors.Newf("relative url %q without base", raw).
				Component("cachestore").
				Category(errors.CategoryValidation).
				Context("operation", "parse_key").
				Build()
		}
		u = base.ResolveReference(u)
	}
	return Key{Method: normalizeMethod(method), URL: normalizeURL(u)}, nil
}

// KeyFromRequest builds the key for an intercepted request. Origin-form
// requests (path only) resolve against base; absolute-form requests keep
// their own host.
func KeyFromRequest(req *http.Request, base *url.URL) (Key, error) {
	return NewKey(req.Method, req.URL.String(), base)
}

func normalizeMethod(m string) string {
	if m == "" {
		return http.MethodGet
	}
	return strings.ToUpper(m)
}

func normalizeURL(u *url.URL) string {
	n := *u
	n.Scheme = strings.ToLower(n.Scheme)
	n.Host = strings.ToLower(n.Host)
	if port := n.Port(); (n.Scheme == "http" && port == "80") || (n.Scheme == "https" && port == "443") {
		n.Host = n.Hostname()
	}
	n.Fragment = ""
	n.RawFragment = ""
	if n.Path == "" {
		n.Path = "/"
	}
	if n.RawQuery != "" {
		if q, err := url.ParseQuery(n.RawQuery); err == nil {
			n.RawQuery = q.Encode()
		}
	}
	n.ForceQuery = false
	return n.String()
}
