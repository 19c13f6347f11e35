package strategy

import (
	"io"
	"net/http"
	"net/url"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"

	"github.com/estoca-ai/estoca-worker/internal/cachestore"
	"github.com/estoca-ai/estoca-worker/internal/conf"
	"github.com/estoca-ai/estoca-worker/internal/logger"
	"github.com/estoca-ai/estoca-worker/internal/observability/metrics"
	"github.com/estoca-ai/estoca-worker/internal/offline"
)

const origin = "http://localhost:3000"

var testParts = Partitions{
	Static:     "estoca-ai-static-v1.2",
	Dynamic:    "estoca-ai-dynamic-v1.2",
	Generation: "estoca-ai-v1.2",
}

func testLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
}

func baseURL(t *testing.T) *url.URL {
	t.Helper()
	u, err := url.Parse(origin)
	require.NoError(t, err)
	return u
}

type testEnv struct {
	exec    *Executor
	store   *cachestore.MemoryStore
	mt      *httpmock.MockTransport
	metrics *metrics.Metrics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	router, err := NewRouter(conf.DefaultStaticManifest, "/api/", conf.MatchModeExact, baseURL(t))
	require.NoError(t, err)

	mt := httpmock.NewMockTransport()
	store := cachestore.NewMemoryStore()
	m := metrics.New()
	exec := NewExecutor(testParts, store, NewHTTPFetcher(&http.Client{Transport: mt}, 0), router, offline.Default(), m, testLogger())
	t.Cleanup(exec.Close)
	return &testEnv{exec: exec, store: store, mt: mt, metrics: m}
}

func (env *testEnv) req(t *testing.T, method, path string) *Request {
	t.Helper()
	k, err := cachestore.NewKey(method, path, baseURL(t))
	require.NoError(t, err)
	return &Request{Key: k, Header: http.Header{}}
}

func (env *testEnv) seed(t *testing.T, partition, path, body string) {
	t.Helper()
	p, err := env.store.Open(t.Context(), partition, testParts.Generation)
	require.NoError(t, err)
	require.NoError(t, p.Put(t.Context(), env.req(t, "GET", path).Key, cachestore.NewResponse(200, "text/plain", []byte(body))))
}

func (env *testEnv) cached(t *testing.T, partition, path string) (*cachestore.Response, bool) {
	t.Helper()
	has, err := env.store.Has(t.Context(), partition)
	require.NoError(t, err)
	if !has {
		return nil, false
	}
	p, err := env.store.Open(t.Context(), partition, testParts.Generation)
	require.NoError(t, err)
	resp, ok, err := p.Match(t.Context(), env.req(t, "GET", path).Key)
	require.NoError(t, err)
	return resp, ok
}

// counterValue reads a counter sample from the registry by name and labels.
func counterValue(t *testing.T, m *metrics.Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, sample := range mf.GetMetric() {
			for _, lp := range sample.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue next
				}
			}
			return sample.GetCounter().GetValue()
		}
	}
	return 0
}
