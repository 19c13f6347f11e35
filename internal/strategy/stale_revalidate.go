package strategy

import (
	"context"
	"time"

	"github.com/estoca-ai/estoca-worker/internal/cachestore"
	"github.com/estoca-ai/estoca-worker/internal/logger"
	"github.com/estoca-ai/estoca-worker/internal/observability/metrics"
)

// StaleWhileRevalidate returns the dynamic partition's entry immediately and
// refreshes it in the background. Without an entry it waits for the network.
// Refresh failures are logged and never surface to the caller.
func (e *Executor) StaleWhileRevalidate(ctx context.Context, req *Request) (*cachestore.Response, error) {
	start := time.Now()

	cached, ok, err := e.match(ctx, e.parts.Dynamic, req)
	if err != nil {
		return nil, err
	}

	if ok {
		e.bgWG.Add(1)
		go func() {
			defer e.bgWG.Done()
			e.revalidate(req)
		}()
		e.record(StaleWhileRevalidate, metrics.SourceCache, start)
		return cached, nil
	}

	resp, err := e.fetcher.Fetch(ctx, req)
	if err != nil {
		e.log.Debug("stale-while-revalidate network failure with empty cache",
			logger.String("url", req.Key.URL),
			logger.Error(err))
		e.record(StaleWhileRevalidate, metrics.SourceSynthetic, start)
		return offlineText(), nil
	}
	if resp.OK() {
		e.put(ctx, e.parts.Dynamic, req, resp)
	}
	e.record(StaleWhileRevalidate, metrics.SourceNetwork, start)
	return resp, nil
}

// revalidate runs detached from the request context.
func (e *Executor) revalidate(req *Request) {
	ctx, cancel := context.WithTimeout(e.bgCtx, backgroundTimeout)
	defer cancel()

	resp, err := e.fetcher.Fetch(ctx, req)
	if err != nil {
		e.log.Debug("background revalidation failed",
			logger.String("url", req.Key.URL),
			logger.Error(err))
		return
	}
	if resp.OK() {
		e.put(ctx, e.parts.Dynamic, req, resp)
	}
}
