package lifecycle

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/estoca-ai/estoca-worker/internal/cachestore"
	"github.com/estoca-ai/estoca-worker/internal/errors"
	"github.com/estoca-ai/estoca-worker/internal/logger"
	"github.com/estoca-ai/estoca-worker/internal/observability/metrics"
)

const maxConcurrentEvictions = 4

// Claimer takes control of every connected client for a version.
type Claimer interface {
	Claim(ctx context.Context, version string) error
}

// Activator evicts partitions of other generations and claims clients.
type Activator struct {
	store      cachestore.Store
	generation string
	claimer    Claimer
	metrics    *metrics.Metrics
	log        logger.Logger
}

// NewActivator creates an activator for generation.
func NewActivator(store cachestore.Store, generation string, claimer Claimer, m *metrics.Metrics, log logger.Logger) *Activator {
	return &Activator{
		store:      store,
		generation: generation,
		claimer:    claimer,
		metrics:    m,
		log:        log.Module("activate"),
	}
}

// Activate deletes every partition whose generation differs from the
// current one, waits for all deletions, and only then claims clients. A
// failed deletion is logged and does not block activation.
func (a *Activator) Activate(ctx context.Context) ([]string, error) {
	infos, err := a.store.Keys(ctx)
	if err != nil {
		return nil, errors.New(err).
			Component("lifecycle").
			Category(errors.CategoryCache).
			Context("operation", "list_partitions").
			Build()
	}

	var (
		mu      sync.Mutex
		evicted []string
	)
	var g errgroup.Group
	g.SetLimit(maxConcurrentEvictions)
	for _, info := range infos {
		if info.Generation == a.generation {
			continue
		}
		g.Go(func() error {
			ok, err := a.store.Delete(ctx, info.Name)
			if err != nil {
				a.log.Error("failed to evict partition",
					logger.String("partition", info.Name),
					logger.String("generation", info.Generation),
					logger.Error(err))
				return nil
			}
			if ok {
				mu.Lock()
				evicted = append(evicted, info.Name)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	a.metrics.RecordEviction(len(evicted))
	a.log.Info("evicted stale partitions",
		logger.Int("count", len(evicted)),
		logger.Any("partitions", evicted))

	if a.claimer != nil {
		if err := a.claimer.Claim(ctx, a.generation); err != nil {
			return evicted, errors.New(err).
				Component("lifecycle").
				Category(errors.CategoryGeneric).
				Context("operation", "claim").
				Build()
		}
	}
	return evicted, nil
}
