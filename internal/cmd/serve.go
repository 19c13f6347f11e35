package cmd

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/estoca-ai/estoca-worker/internal/api"
	"github.com/estoca-ai/estoca-worker/internal/cachestore"
	"github.com/estoca-ai/estoca-worker/internal/clients"
	"github.com/estoca-ai/estoca-worker/internal/conf"
	"github.com/estoca-ai/estoca-worker/internal/datastore"
	"github.com/estoca-ai/estoca-worker/internal/datastore/repository"
	"github.com/estoca-ai/estoca-worker/internal/errors"
	"github.com/estoca-ai/estoca-worker/internal/logger"
	"github.com/estoca-ai/estoca-worker/internal/mqtt"
	"github.com/estoca-ai/estoca-worker/internal/notification"
	"github.com/estoca-ai/estoca-worker/internal/observability"
	"github.com/estoca-ai/estoca-worker/internal/observability/metrics"
	"github.com/estoca-ai/estoca-worker/internal/push"
	"github.com/estoca-ai/estoca-worker/internal/strategy"
	"github.com/estoca-ai/estoca-worker/internal/syncqueue"
	"github.com/estoca-ai/estoca-worker/internal/worker"
)

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Intercept requests for the dashboard and serve the control endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
}

// runtime is the set of long-lived components behind serve.
type runtime struct {
	settings *conf.Settings
	log      logger.Logger

	base    *url.URL
	db      *gorm.DB
	store   cachestore.Store
	fetcher *strategy.HTTPFetcher
	metrics *metrics.Metrics
	queue   *syncqueue.Queue
	clients *clients.Registry
	notes   *notification.Service
	reg     *worker.Registration
	monitor *syncqueue.Monitor
	mqtt    *mqtt.Client
	server  *api.Server
}

func (a *app) serve(ctx context.Context) error {
	flush, err := observability.InitSentry(a.settings.Sentry, a.build.Version, a.log)
	if err != nil {
		a.log.Warn("sentry initialization failed", logger.Error(err))
	}
	defer flush()

	rt, err := a.newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	return rt.run(ctx)
}

// newRuntime wires every component. The first version is installed before
// the listener starts; if that fails pages stay uncontrolled and requests
// pass straight through.
func (a *app) newRuntime(ctx context.Context) (*runtime, error) {
	s := a.settings
	rt := &runtime{settings: s, log: a.log.Module("serve")}

	base, err := parseOrigin(s.Upstream.Origin)
	if err != nil {
		return nil, err
	}
	rt.base = base

	rt.db, err = datastore.Open(s.Database, s.WebServer.Debug, a.log)
	if err != nil {
		return nil, err
	}

	rt.metrics = metrics.New()
	rt.store = cachestore.New(s, rt.db, a.log)
	rt.fetcher = strategy.NewHTTPFetcher(a.httpClient, s.Upstream.Timeout.Std())

	endpoint, err := cachestore.NewKey(http.MethodPost, s.Sync.Endpoint, base)
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.queue = syncqueue.New(syncqueue.Config{
		Tag:           s.Sync.Tag,
		Endpoint:      endpoint,
		RatePerSecond: s.Sync.RatePerSecond,
	}, repository.NewSyncTaskRepository(rt.db), rt.fetcher, rt.metrics, a.log)

	rt.clients = clients.NewRegistry(rt.metrics, a.log)
	rt.notes = notification.Initialize(&notification.ServiceConfig{
		HistoryLimit: s.Push.HistoryLimit,
		Providers:    a.providers(),
		Log:          a.log,
		Metrics:      rt.metrics,
	})
	handler := push.NewHandler(push.Config{
		Title:       s.Push.Title,
		DefaultBody: s.Push.DefaultBody,
		Icon:        s.Push.Icon,
		DefaultURL:  s.Push.DefaultURL,
	}, rt.notes, rt.clients, rt.metrics, a.log)

	rt.reg = worker.NewRegistration(base, worker.Deps{
		Store:   rt.store,
		Fetcher: rt.fetcher,
		Sync:    rt.queue,
		Push:    handler,
		Clients: rt.clients,
		Metrics: rt.metrics,
		Log:     a.log,
	})
	if _, err := rt.reg.Update(ctx, s.Worker); err != nil {
		rt.log.Error("initial install failed, serving uncontrolled", logger.Error(err))
	}

	probe, err := cachestore.NewKey(http.MethodGet, s.Sync.ProbePath, base)
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.monitor = syncqueue.NewMonitor(rt.fetcher, probe, s.Sync.ProbeInterval.Std(), s.Sync.Tag, rt.triggerSync, a.log)

	if s.Push.MQTT.Enabled {
		if rt.mqtt, err = rt.newMQTT(); err != nil {
			rt.close()
			return nil, err
		}
	}

	rt.server, err = api.New(api.Config{
		Settings:      s.WebServer,
		Base:          base,
		Registration:  rt.reg,
		Fetcher:       rt.fetcher,
		Clients:       rt.clients,
		Notifications: rt.notes,
		Sync:          rt.queue,
		Metrics:       rt.metrics,
		Log:           a.log,
	})
	if err != nil {
		rt.close()
		return nil, err
	}
	return rt, nil
}

// providers builds the external forwarders from push.providers.
func (a *app) providers() []notification.Provider {
	urls := a.settings.Push.Providers
	if len(urls) == 0 {
		return nil
	}
	p := notification.NewShoutrrrProvider("shoutrrr", true, urls, 0)
	if err := p.ValidateConfig(); err != nil {
		a.log.Warn("ignoring invalid notification providers", logger.Error(err))
		return nil
	}
	return []notification.Provider{p}
}

func (rt *runtime) triggerSync(tag string) {
	if !rt.reg.Publish(worker.NewSyncEvent(tag)) {
		rt.log.Warn("sync event dropped", logger.String("tag", tag))
	}
}

func (rt *runtime) newMQTT() (*mqtt.Client, error) {
	settings := rt.settings.Push.MQTT
	client, err := mqtt.NewClient(settings, rt.log)
	if err != nil {
		return nil, err
	}
	if settings.PushTopic != "" {
		if err := client.Subscribe(settings.PushTopic, func(_ context.Context, payload []byte) {
			rt.reg.Publish(worker.NewPushEvent(payload, push.TransportMQTT))
		}); err != nil {
			return nil, err
		}
	}
	if settings.SyncTopic != "" {
		if err := client.Subscribe(settings.SyncTopic, func(_ context.Context, payload []byte) {
			tag := strings.TrimSpace(string(payload))
			if tag == "" {
				tag = rt.settings.Sync.Tag
			}
			rt.triggerSync(tag)
		}); err != nil {
			return nil, err
		}
	}
	return client, nil
}

// run serves until ctx is done or the listener fails.
func (rt *runtime) run(ctx context.Context) error {
	rt.monitor.Start()
	if rt.mqtt != nil {
		// The paho client keeps retrying in the background.
		if err := rt.mqtt.Connect(ctx); err != nil {
			rt.log.Warn("mqtt connect failed", logger.Error(err))
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- rt.server.Start(rt.settings.WebServer.Listen)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		rt.log.Info("shutting down")
	}

	shutdownCtx := context.WithoutCancel(ctx)
	if err := rt.server.Shutdown(shutdownCtx); err != nil {
		rt.log.Warn("server shutdown failed", logger.Error(err))
	}
	return <-errCh
}

// close releases everything newRuntime acquired, in reverse order.
func (rt *runtime) close() {
	if rt.mqtt != nil {
		rt.mqtt.Disconnect()
	}
	if rt.monitor != nil {
		rt.monitor.Stop()
	}
	if rt.reg != nil {
		rt.reg.Close(context.Background())
	}
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			rt.log.Warn("failed to close cache store", logger.Error(err))
		}
	}
	if rt.db != nil {
		if err := datastore.Close(rt.db); err != nil {
			rt.log.Warn("failed to close database", logger.Error(err))
		}
	}
}

func parseOrigin(origin string) (*url.URL, error) {
	base, err := url.Parse(origin)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errors.Newf("invalid upstream origin %q", origin).
			Component("cmd").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return base, nil
}
