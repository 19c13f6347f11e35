package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
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
	"github.com/estoca-ai/estoca-worker/internal/worker"
)

const origin = "http://localhost:3000"

type testEnv struct {
	mt      *httpmock.MockTransport
	clients *clients.Registry
	notes   *notification.Service
	queue   *syncqueue.Queue
	reg     *worker.Registration
	server  *Server
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
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

func newTestEnv(t *testing.T, settings conf.WebServerSettings) *testEnv {
	t.Helper()
	base, err := url.Parse(origin)
	require.NoError(t, err)
	log := logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)

	mt := httpmock.NewMockTransport()
	fetcher := strategy.NewHTTPFetcher(&http.Client{Transport: mt}, 0)
	m := metrics.New()

	endpoint, err := cachestore.NewKey(http.MethodPost, "/api/sync", base)
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

	reg := worker.NewRegistration(base, worker.Deps{
		Store:   cachestore.NewMemoryStore(),
		Fetcher: fetcher,
		Sync:    queue,
		Push:    handler,
		Clients: registry,
		Metrics: m,
		Log:     log,
	})
	t.Cleanup(func() { reg.Close(context.Background()) })

	srv, err := New(Config{
		Settings:      settings,
		Base:          base,
		Registration:  reg,
		Fetcher:       fetcher,
		Clients:       registry,
		Notifications: notes,
		Sync:          queue,
		Metrics:       m,
		Log:           log,
	})
	require.NoError(t, err)

	return &testEnv{mt: mt, clients: registry, notes: notes, queue: queue, reg: reg, server: srv}
}

// activate installs and activates a version precaching the given paths.
func (e *testEnv) activate(t *testing.T, manifest ...string) {
	t.Helper()
	for _, p := range manifest {
		e.mt.RegisterResponder(http.MethodGet, origin+p, httpmock.NewStringResponder(http.StatusOK, "asset "+p))
	}
	_, err := e.reg.Update(t.Context(), conf.WorkerSettings{
		CacheName:      "estoca-ai",
		Version:        "1.2",
		APIPrefix:      "/api/",
		SentinelKey:    "/api/offline-data",
		MatchMode:      conf.MatchModeExact,
		StaticManifest: manifest,
		SkipWaiting:    true,
	})
	require.NoError(t, err)
	require.NotNil(t, e.reg.Active())
}

// offline drops every upstream responder.
func (e *testEnv) offline() {
	e.mt.Reset()
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader = http.NoBody
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}
