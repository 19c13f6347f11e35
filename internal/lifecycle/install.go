package lifecycle

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/estoca-ai/estoca-worker/internal/cachestore"
	"github.com/estoca-ai/estoca-worker/internal/errors"
	"github.com/estoca-ai/estoca-worker/internal/logger"
	"github.com/estoca-ai/estoca-worker/internal/offline"
	"github.com/estoca-ai/estoca-worker/internal/strategy"
)

// maxConcurrentPrecache bounds parallel manifest fetches.
const maxConcurrentPrecache = 6

// Installer precaches the static manifest and seeds the offline dataset.
type Installer struct {
	store    cachestore.Store
	fetcher  strategy.Fetcher
	parts    strategy.Partitions
	manifest []cachestore.Key
	sentinel cachestore.Key
	dataset  offline.Dataset
	log      logger.Logger
}

// NewInstaller creates an installer.
func NewInstaller(store cachestore.Store, fetcher strategy.Fetcher, parts strategy.Partitions, manifest []cachestore.Key, sentinel cachestore.Key, dataset offline.Dataset, log logger.Logger) *Installer {
	return &Installer{
		store:    store,
		fetcher:  fetcher,
		parts:    parts,
		manifest: manifest,
		sentinel: sentinel,
		dataset:  dataset,
		log:      log.Module("install"),
	}
}

// Install fetches every manifest entry and commits them to the static
// partition in one step. Any failed or non-2xx fetch aborts the install
// before anything is written. It then stores the dataset under the sentinel
// key in the dynamic partition.
func (i *Installer) Install(ctx context.Context) error {
	responses := make([]*cachestore.Response, len(i.manifest))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentPrecache)
	for idx, key := range i.manifest {
		g.Go(func() error {
			resp, err := i.fetcher.Fetch(gctx, strategy.NewRequest(key))
			if err != nil {
				return fmt.Errorf("precache %s: %w", key.URL, err)
			}
			if !resp.OK() {
				return fmt.Errorf("precache %s: status %d", key.URL, resp.Status)
			}
			responses[idx] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return installError(err, "precache", i.parts.Static)
	}

	if err := i.commit(ctx, responses); err != nil {
		return err
	}

	i.log.Info("static manifest precached",
		logger.String("partition", i.parts.Static),
		logger.Int("entries", len(responses)))
	return nil
}

func (i *Installer) commit(ctx context.Context, responses []*cachestore.Response) error {
	staticExisted, err := i.store.Has(ctx, i.parts.Static)
	if err != nil {
		return installError(err, "commit", i.parts.Static)
	}
	dynamicExisted, err := i.store.Has(ctx, i.parts.Dynamic)
	if err != nil {
		return installError(err, "commit", i.parts.Dynamic)
	}

	// rollback removes partitions this install created so a failed install
	// leaves nothing behind.
	rollback := func() {
		if !staticExisted {
			_, _ = i.store.Delete(context.WithoutCancel(ctx), i.parts.Static)
		}
		if !dynamicExisted {
			_, _ = i.store.Delete(context.WithoutCancel(ctx), i.parts.Dynamic)
		}
	}

	entries := make([]cachestore.Entry, len(i.manifest))
	for idx, key := range i.manifest {
		entries[idx] = cachestore.Entry{Key: key, Response: responses[idx]}
	}
	static, err := i.store.Open(ctx, i.parts.Static, i.parts.Generation)
	if err != nil {
		rollback()
		return installError(err, "open", i.parts.Static)
	}
	if err := static.PutAll(ctx, entries); err != nil {
		rollback()
		return installError(err, "commit", i.parts.Static)
	}

	body, err := i.dataset.JSON()
	if err != nil {
		rollback()
		return installError(err, "encode_dataset", i.parts.Dynamic)
	}
	dynamic, err := i.store.Open(ctx, i.parts.Dynamic, i.parts.Generation)
	if err != nil {
		rollback()
		return installError(err, "open", i.parts.Dynamic)
	}
	if err := dynamic.Put(ctx, i.sentinel, cachestore.NewResponse(200, "application/json", body)); err != nil {
		rollback()
		return installError(err, "seed_dataset", i.parts.Dynamic)
	}
	return nil
}

func installError(err error, op, partition string) error {
	return errors.New(err).
		Component("lifecycle").
		Category(errors.CategoryInstall).
		Context("operation", op).
		Context("partition", partition).
		Build()
}
