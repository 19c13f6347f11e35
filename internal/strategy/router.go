// Package strategy routes intercepted requests to a caching strategy and
// executes cache-first, network-first and stale-while-revalidate.
package strategy

import (
	"net/url"
	"strings"

	"github.com/estoca-ai/estoca-worker/internal/cachestore"
	"github.com/estoca-ai/estoca-worker/internal/conf"
	"github.com/estoca-ai/estoca-worker/internal/errors"
)

// Strategy names how a request is served.
type Strategy int

const (
	StaleWhileRevalidate Strategy = iota
	CacheFirst
	NetworkFirst
)

// String returns the metric label for s.
func (s Strategy) String() string {
	switch s {
	case CacheFirst:
		return "cache-first"
	case NetworkFirst:
		return "network-first"
	default:
		return "stale-while-revalidate"
	}
}

// Router classifies requests. It is pure: the same key always routes the same way.
type Router struct {
	mode      string
	apiPrefix string
	raw       []string
	exact     map[string]struct{}
}

// NewRouter builds a router from the static manifest. Manifest entries are
// normalized against base for exact matching.
func NewRouter(manifest []string, apiPrefix, mode string, base *url.URL) (*Router, error) {
	r := &Router{
		mode:      mode,
		apiPrefix: apiPrefix,
		raw:       append([]string(nil), manifest...),
		exact:     make(map[string]struct{}, len(manifest)),
	}
	if r.mode == "" {
		r.mode = conf.MatchModeExact
	}
	for _, entry := range manifest {
		k, err := cachestore.NewKey("GET", entry, base)
		if err != nil {
			return nil, errors.New(err).
				Component("strategy").
				Category(errors.CategoryConfiguration).
				Context("manifest_entry", entry).
				Build()
		}
		r.exact[k.URL] = struct{}{}
	}
	return r, nil
}

// Route returns exactly one strategy for key. Manifest membership wins over
// the API prefix.
func (r *Router) Route(key cachestore.Key) Strategy {
	if r.inManifest(key) {
		return CacheFirst
	}
	if strings.HasPrefix(key.Path(), r.apiPrefix) {
		return NetworkFirst
	}
	return StaleWhileRevalidate
}

// IsAPI reports whether key falls under the API prefix.
func (r *Router) IsAPI(key cachestore.Key) bool {
	return strings.HasPrefix(key.Path(), r.apiPrefix)
}

func (r *Router) inManifest(key cachestore.Key) bool {
	if r.mode == conf.MatchModeSubstring {
		for _, entry := range r.raw {
			if strings.Contains(key.URL, entry) {
				return true
			}
		}
		return false
	}
	_, ok := r.exact[key.URL]
	return ok
}
