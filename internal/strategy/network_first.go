package strategy

import (
	"context"
	"time"

	"github.com/estoca-ai/estoca-worker/internal/cachestore"
	"github.com/estoca-ai/estoca-worker/internal/logger"
	"github.com/estoca-ai/estoca-worker/internal/observability/metrics"
	"github.com/estoca-ai/estoca-worker/internal/offline"
)

// NetworkFirst tries the network and stores 2xx responses in the dynamic
// partition. On network failure it falls back to the dynamic partition, then
// to the offline dataset for API paths, then to 503 application/json.
func (e *Executor) NetworkFirst(ctx context.Context, req *Request) (*cachestore.Response, error) {
	start := time.Now()

	resp, fetchErr := e.fetcher.Fetch(ctx, req)
	if fetchErr == nil {
		if resp.OK() {
			e.put(ctx, e.parts.Dynamic, req, resp)
		}
		e.record(NetworkFirst, metrics.SourceNetwork, start)
		return resp, nil
	}

	e.log.Debug("network-first network failure, trying cache",
		logger.String("url", req.Key.URL),
		logger.Error(fetchErr))

	cached, ok, err := e.match(ctx, e.parts.Dynamic, req)
	if err != nil {
		return nil, err
	}
	if ok {
		e.record(NetworkFirst, metrics.SourceCache, start)
		return cached, nil
	}

	if e.router.IsAPI(req.Key) {
		e.record(NetworkFirst, metrics.SourceFallback, start)
		return offline.Fallback(e.dataset, req.Key.Path()), nil
	}

	e.record(NetworkFirst, metrics.SourceSynthetic, start)
	return offlineJSON(), nil
}
