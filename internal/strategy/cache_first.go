package strategy

import (
	"context"
	"time"

	"github.com/estoca-ai/estoca-worker/internal/cachestore"
	"github.com/estoca-ai/estoca-worker/internal/logger"
	"github.com/estoca-ai/estoca-worker/internal/observability/metrics"
)

// CacheFirst serves from the static partition, falling back to the network.
// Successful network responses are stored in the static partition. With
// neither, it answers 503 text/plain.
func (e *Executor) CacheFirst(ctx context.Context, req *Request) (*cachestore.Response, error) {
	start := time.Now()

	cached, ok, err := e.match(ctx, e.parts.Static, req)
	if err != nil {
		return nil, err
	}
	if ok {
		e.record(CacheFirst, metrics.SourceCache, start)
		return cached, nil
	}

	resp, err := e.fetcher.Fetch(ctx, req)
	if err != nil {
		e.log.Debug("cache-first network failure",
			logger.String("url", req.Key.URL),
			logger.Error(err))
		e.record(CacheFirst, metrics.SourceSynthetic, start)
		return offlineText(), nil
	}
	if resp.OK() {
		e.put(ctx, e.parts.Static, req, resp)
	}
	e.record(CacheFirst, metrics.SourceNetwork, start)
	return resp, nil
}
