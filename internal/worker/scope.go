package worker

import (
	"context"
	"net/url"

	"github.com/estoca-ai/estoca-worker/internal/cachestore"
	"github.com/estoca-ai/estoca-worker/internal/clients"
	"github.com/estoca-ai/estoca-worker/internal/conf"
	"github.com/estoca-ai/estoca-worker/internal/errors"
	"github.com/estoca-ai/estoca-worker/internal/lifecycle"
	"github.com/estoca-ai/estoca-worker/internal/logger"
	"github.com/estoca-ai/estoca-worker/internal/observability/metrics"
	"github.com/estoca-ai/estoca-worker/internal/offline"
	"github.com/estoca-ai/estoca-worker/internal/push"
	"github.com/estoca-ai/estoca-worker/internal/strategy"
	"github.com/estoca-ai/estoca-worker/internal/syncqueue"
)

// Deps are the services shared by every worker version.
type Deps struct {
	Store   cachestore.Store
	Fetcher strategy.Fetcher
	Sync    *syncqueue.Queue
	Push    *push.Handler
	Clients *clients.Registry
	Metrics *metrics.Metrics
	Log     logger.Logger
}

// Waiter promotes a waiting worker version.
type Waiter interface {
	SkipWaiting(ctx context.Context) error
}

// Scope is everything a handler needs for one worker version. It is built
// once per version and never mutated by handlers.
type Scope struct {
	Version    string
	Partitions strategy.Partitions
	Manifest   []cachestore.Key
	Sentinel   cachestore.Key
	Dataset    offline.Dataset
	SkipWait   bool

	Store     cachestore.Store
	Fetcher   strategy.Fetcher
	Executor  *strategy.Executor
	Machine   *lifecycle.Machine
	Installer *lifecycle.Installer
	Activator *lifecycle.Activator
	Sync      *syncqueue.Queue
	Push      *push.Handler
	Clients   *clients.Registry
	Waiter    Waiter

	Metrics *metrics.Metrics
	Log     logger.Logger
}

// NewScope builds the scope of the version described by settings. Relative
// manifest entries resolve against base.
func NewScope(settings conf.WorkerSettings, base *url.URL, deps Deps, waiter Waiter) (*Scope, error) {
	if deps.Store == nil || deps.Fetcher == nil || deps.Clients == nil {
		return nil, errors.Newf("worker scope requires a store, a fetcher and a client registry").
			Component("worker").
			Category(errors.CategoryConfiguration).
			Build()
	}

	parts := strategy.Partitions{
		Static:     settings.StaticPartition(),
		Dynamic:    settings.DynamicPartition(),
		Generation: settings.VersionToken(),
	}

	manifest := make([]cachestore.Key, 0, len(settings.StaticManifest))
	for _, raw := range settings.StaticManifest {
		key, err := cachestore.NewKey("GET", raw, base)
		if err != nil {
			return nil, scopeError(err, "manifest", raw)
		}
		manifest = append(manifest, key)
	}
	sentinel, err := cachestore.NewKey("GET", settings.SentinelKey, base)
	if err != nil {
		return nil, scopeError(err, "sentinel", settings.SentinelKey)
	}

	router, err := strategy.NewRouter(settings.StaticManifest, settings.APIPrefix, settings.MatchMode, base)
	if err != nil {
		return nil, scopeError(err, "router", settings.MatchMode)
	}

	log := deps.Log.With(logger.String("version", parts.Generation))
	dataset := offline.Default()

	return &Scope{
		Version:    parts.Generation,
		Partitions: parts,
		Manifest:   manifest,
		Sentinel:   sentinel,
		Dataset:    dataset,
		SkipWait:   settings.SkipWaiting,
		Store:      deps.Store,
		Fetcher:    deps.Fetcher,
		Executor:   strategy.NewExecutor(parts, deps.Store, deps.Fetcher, router, dataset, deps.Metrics, log),
		Machine:    lifecycle.NewMachine(parts.Generation, deps.Metrics, log),
		Installer:  lifecycle.NewInstaller(deps.Store, deps.Fetcher, parts, manifest, sentinel, dataset, log),
		Activator:  lifecycle.NewActivator(deps.Store, parts.Generation, deps.Clients, deps.Metrics, log),
		Sync:       deps.Sync,
		Push:       deps.Push,
		Clients:    deps.Clients,
		Waiter:     waiter,
		Metrics:    deps.Metrics,
		Log:        log.Module("worker"),
	}, nil
}

func scopeError(err error, field, value string) error {
	return errors.New(err).
		Component("worker").
		Category(errors.CategoryConfiguration).
		Context("field", field).
		Context("value", value).
		Build()
}
