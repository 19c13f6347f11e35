package worker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/estoca-ai/estoca-worker/internal/cachestore"
	"github.com/estoca-ai/estoca-worker/internal/clients"
	"github.com/estoca-ai/estoca-worker/internal/conf"
	"github.com/estoca-ai/estoca-worker/internal/datastore"
	"github.com/estoca-ai/estoca-worker/internal/datastore/repository"
	"github.com/estoca-ai/estoca-worker/internal/logger"
	"github.com/estoca-ai/estoca-worker/internal/notification"
	"github.com/estoca-ai/estoca-worker/internal/observability/metrics"
	"github.com/estoca-ai/estoca-worker/internal/push"
	"github.com/estoca-ai/estoca-worker/internal/strategy"
	"github.com/estoca-ai/estoca-worker/internal/syncqueue"
)

const origin = "http://localhost:3000"

var errOffline = fmt.Errorf("dial tcp: connection refused")

func testLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
}

type testEnv struct {
	base     *url.URL
	mt       *httpmock.MockTransport
	store    cachestore.Store
	clients  *clients.Registry
	notes    *notification.Service
	queue    *syncqueue.Queue
	metrics  *metrics.Metrics
	deps     Deps
	reg      *Registration
}

type fakePage struct {
	msgs []clients.Message
}

func (p *fakePage) WriteJSON(v any) error {
	p.msgs = append(p.msgs, v.(clients.Message))
	return nil
}

func (p *fakePage) Close() error { return nil }

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=ON", name)), &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, datastore.Migrate(db))
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	base, err := url.Parse(origin)
	require.NoError(t, err)
	log := testLogger()

	mt := httpmock.NewMockTransport()
	fetcher := strategy.NewHTTPFetcher(&http.Client{Transport: mt}, 0)
	store := cachestore.NewMemoryStore()
	m := metrics.New()

	endpoint, err := cachestore.NewKey("POST", "/api/sync", base)
	require.NoError(t, err)
	queue := syncqueue.New(syncqueue.Config{Tag: "sync-data", Endpoint: endpoint},
		repository.NewSyncTaskRepository(setupTestDB(t)), fetcher, m, log)

	registry := clients.NewRegistry(m, log)
	notes := notification.NewService(&notification.ServiceConfig{Log: log, Metrics: m})
	handler := push.NewHandler(push.Config{
		Title:       "Estoca.AI",
		DefaultBody: "Nova notificação do Estoca.AI",
		Icon:        "/ce871213-1168-48f7-b65f-4681ac5f7386.jpg",
		DefaultURL:  "/",
	}, notes, registry, m, log)

	deps := Deps{
		Store:   store,
		Fetcher: fetcher,
		Sync:    queue,
		Push:    handler,
		Clients: registry,
		Metrics: m,
		Log:     log,
	}
	reg := NewRegistration(base, deps)
	t.Cleanup(func() { reg.Close(context.Background()) })

	return &testEnv{
		base:    base,
		mt:      mt,
		store:   store,
		clients: registry,
		notes:   notes,
		queue:   queue,
		metrics: m,
		deps:    deps,
		reg:     reg,
	}
}

func settingsFor(version string, manifest ...string) conf.WorkerSettings {
	return conf.WorkerSettings{
		CacheName:      "estoca-ai",
		Version:        version,
		APIPrefix:      "/api/",
		SentinelKey:    "/api/offline-data",
		MatchMode:      conf.MatchModeExact,
		StaticManifest: manifest,
		SkipWaiting:    true,
	}
}

// serveAssets answers every manifest path with a small body.
func (e *testEnv) serveAssets(paths ...string) {
	for _, p := range paths {
		e.mt.RegisterResponder("GET", origin+p, httpmock.NewStringResponder(200, "asset "+p))
	}
}

func (e *testEnv) scope(t *testing.T, settings conf.WorkerSettings) *Scope {
	t.Helper()
	s, err := NewScope(settings, e.base, e.deps, nil)
	require.NoError(t, err)
	t.Cleanup(s.Executor.Close)
	return s
}

func (e *testEnv) request(t *testing.T, method, path string) *strategy.Request {
	t.Helper()
	key, err := cachestore.NewKey(method, path, e.base)
	require.NoError(t, err)
	return strategy.NewRequest(key)
}

func (e *testEnv) partitionNames(t *testing.T) []string {
	t.Helper()
	infos, err := e.store.Keys(t.Context())
	require.NoError(t, err)
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name)
	}
	return names
}
