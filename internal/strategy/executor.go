package strategy

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/estoca-ai/estoca-worker/internal/cachestore"
	"github.com/estoca-ai/estoca-worker/internal/logger"
	"github.com/estoca-ai/estoca-worker/internal/observability/metrics"
	"github.com/estoca-ai/estoca-worker/internal/offline"
)

const (
	offlineResourceMessage = "Offline - resource not available"
	offlineDataMessage     = `{"error":"Offline - data not available"}`

	// backgroundTimeout bounds a stale-while-revalidate refresh.
	backgroundTimeout = 60 * time.Second
)

// Partitions names the partitions an executor reads and writes.
type Partitions struct {
	Static     string
	Dynamic    string
	Generation string
}

// Executor runs the caching strategies for one worker version.
type Executor struct {
	parts   Partitions
	store   cachestore.Store
	fetcher Fetcher
	router  *Router
	dataset offline.Dataset
	metrics *metrics.Metrics
	log     logger.Logger

	// Background refreshes outlive the request that started them.
	bgCtx    context.Context
	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
	retired  atomic.Bool
}

// NewExecutor creates an executor. m may be nil.
func NewExecutor(parts Partitions, store cachestore.Store, fetcher Fetcher, router *Router, dataset offline.Dataset, m *metrics.Metrics, log logger.Logger) *Executor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Executor{
		parts:    parts,
		store:    store,
		fetcher:  fetcher,
		router:   router,
		dataset:  dataset,
		metrics:  m,
		log:      log.Module("strategy"),
		bgCtx:    ctx,
		bgCancel: cancel,
	}
}

// Router returns the router the executor routes with.
func (e *Executor) Router() *Router {
	return e.router
}

// Handle routes req and runs the chosen strategy. The returned error is only
// ever a cache read failure; network failures produce synthetic responses.
func (e *Executor) Handle(ctx context.Context, req *Request) (*cachestore.Response, Strategy, error) {
	s := e.router.Route(req.Key)
	var (
		resp *cachestore.Response
		err  error
	)
	switch s {
	case CacheFirst:
		resp, err = e.CacheFirst(ctx, req)
	case NetworkFirst:
		resp, err = e.NetworkFirst(ctx, req)
	default:
		resp, err = e.StaleWhileRevalidate(ctx, req)
	}
	return resp, s, err
}

// Wait blocks until every background refresh has finished.
func (e *Executor) Wait() {
	e.bgWG.Wait()
}

// Retire stops writes from late background refreshes once this version is
// replaced, so an evicted partition is never recreated.
func (e *Executor) Retire() {
	e.retired.Store(true)
}

// Resume undoes Retire when the replacement version failed to activate.
func (e *Executor) Resume() {
	e.retired.Store(false)
}

// Close cancels outstanding background refreshes and waits for them.
func (e *Executor) Close() {
	e.Retire()
	e.bgCancel()
	e.bgWG.Wait()
}

// match reads from a partition without creating it.
func (e *Executor) match(ctx context.Context, partition string, req *Request) (*cachestore.Response, bool, error) {
	if !req.Cacheable() {
		return nil, false, nil
	}
	exists, err := e.store.Has(ctx, partition)
	if err != nil || !exists {
		return nil, false, err
	}
	p, err := e.store.Open(ctx, partition, e.parts.Generation)
	if err != nil {
		return nil, false, err
	}
	return p.Match(ctx, req.Key)
}

// put stores a clone of resp. Failures are logged and counted; the caller
// still serves the response it fetched.
func (e *Executor) put(ctx context.Context, partition string, req *Request, resp *cachestore.Response) {
	if !req.Cacheable() || e.retired.Load() {
		return
	}
	p, err := e.store.Open(ctx, partition, e.parts.Generation)
	if err == nil {
		err = p.Put(ctx, req.Key, resp.Clone())
	}
	e.metrics.RecordCacheWrite(partition, err)
	if err != nil {
		e.log.Warn("failed to store response",
			logger.String("partition", partition),
			logger.String("url", req.Key.URL),
			logger.Error(err))
	}
}

func (e *Executor) record(s Strategy, source string, start time.Time) {
	e.metrics.RecordFetch(s.String(), source, time.Since(start))
}

func offlineText() *cachestore.Response {
	return cachestore.NewResponse(http.StatusServiceUnavailable, "text/plain", []byte(offlineResourceMessage))
}

func offlineJSON() *cachestore.Response {
	return cachestore.NewResponse(http.StatusServiceUnavailable, "application/json", []byte(offlineDataMessage))
}
