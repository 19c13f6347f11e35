package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estoca-ai/estoca-worker/internal/cachestore"
	"github.com/estoca-ai/estoca-worker/internal/conf"
	"github.com/estoca-ai/estoca-worker/internal/datastore"
	"github.com/estoca-ai/estoca-worker/internal/datastore/repository"
	"github.com/estoca-ai/estoca-worker/internal/logger"
	"github.com/estoca-ai/estoca-worker/internal/notification"
	"github.com/estoca-ai/estoca-worker/internal/syncqueue"
)

const origin = "http://localhost:3000"

// newTestApp returns an app with default settings on a temporary sqlite file
// and a mock upstream.
func newTestApp(t *testing.T) (*app, *httpmock.MockTransport, *bytes.Buffer) {
	t.Helper()
	settings := conf.Defaults()
	settings.Database.Path = filepath.Join(t.TempDir(), "worker.db")
	settings.Cache.QuotaPercent = 0
	settings.Upstream.Origin = origin
	settings.Worker.StaticManifest = []string{"/"}
	settings.Sync.ProbeInterval = 0
	require.NoError(t, settings.Validate())

	mt := httpmock.NewMockTransport()
	out := &bytes.Buffer{}
	return &app{
		build:      BuildInfo{Version: "1.2.0", BuildDate: "2024-02-01"},
		settings:   settings,
		log:        logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil),
		out:        out,
		httpClient: &http.Client{Transport: mt},
	}, mt, out
}

func execute(t *testing.T, a *app, args ...string) error {
	t.Helper()
	root := newRootCommand(a)
	root.SetArgs(args)
	root.SetErr(io.Discard)
	return root.ExecuteContext(t.Context())
}

func TestVersionCommand(t *testing.T) {
	a, _, out := newTestApp(t)

	require.NoError(t, execute(t, a, "version"))

	assert.Equal(t, "estoca-worker 1.2.0 (built 2024-02-01)\n", out.String())
}

func TestConfigCommand_MasksSecrets(t *testing.T) {
	a, _, out := newTestApp(t)
	a.settings.Database.DSN = "user:secret@tcp(db:3306)/estoca"
	a.settings.Push.MQTT.Password = "hunter2"

	require.NoError(t, execute(t, a, "config"))

	assert.Contains(t, out.String(), "cachename: estoca-ai")
	assert.NotContains(t, out.String(), "secret@")
	assert.NotContains(t, out.String(), "hunter2")
}

func TestPartitionsCommand(t *testing.T) {
	a, _, out := newTestApp(t)

	db, err := datastore.Open(a.settings.Database, false, a.log)
	require.NoError(t, err)
	store := cachestore.New(a.settings, db, a.log)
	for _, p := range []struct{ name, gen string }{
		{"estoca-ai-static-v1.1", "estoca-ai-v1.1"},
		{"estoca-ai-static-v1.2", "estoca-ai-v1.2"},
	} {
		_, err := store.Open(t.Context(), p.name, p.gen)
		require.NoError(t, err)
	}
	require.NoError(t, datastore.Close(db))

	t.Run("table", func(t *testing.T) {
		out.Reset()
		require.NoError(t, execute(t, a, "partitions"))
		assert.Contains(t, out.String(), "estoca-ai-static-v1.1")
		assert.Regexp(t, `estoca-ai-static-v1\.2\s+estoca-ai-v1\.2\s+\S+\s+\*`, out.String())
	})

	t.Run("json", func(t *testing.T) {
		out.Reset()
		require.NoError(t, execute(t, a, "partitions", "--json"))
		var parts []cachestore.PartitionInfo
		require.NoError(t, json.Unmarshal(out.Bytes(), &parts))
		require.Len(t, parts, 2)
		assert.Equal(t, "estoca-ai-static-v1.1", parts[0].Name)
	})
}

func TestSyncCommand(t *testing.T) {
	a, mt, out := newTestApp(t)
	mt.RegisterResponder(http.MethodPost, origin+"/api/sync", httpmock.NewStringResponder(http.StatusOK, `{}`))

	db, err := datastore.Open(a.settings.Database, false, a.log)
	require.NoError(t, err)
	queue := syncqueue.New(syncqueue.Config{Tag: "sync-data"}, repository.NewSyncTaskRepository(db), nil, nil, a.log)
	_, err = queue.Enqueue(t.Context(), "sync-data", json.RawMessage(`{"sku":"A-1"}`))
	require.NoError(t, err)
	_, err = queue.Enqueue(t.Context(), "sync-data", json.RawMessage(`{"sku":"B-2"}`))
	require.NoError(t, err)
	require.NoError(t, datastore.Close(db))

	require.NoError(t, execute(t, a, "sync"))

	assert.JSONEq(t, `{"replayed":2,"pending":0}`, out.String())
	assert.Equal(t, 2, mt.GetCallCountInfo()["POST "+origin+"/api/sync"])
}

func TestSyncCommand_UpstreamDown(t *testing.T) {
	a, _, out := newTestApp(t)

	db, err := datastore.Open(a.settings.Database, false, a.log)
	require.NoError(t, err)
	queue := syncqueue.New(syncqueue.Config{Tag: "sync-data"}, repository.NewSyncTaskRepository(db), nil, nil, a.log)
	_, err = queue.Enqueue(t.Context(), "", json.RawMessage(`{"sku":"A-1"}`))
	require.NoError(t, err)
	require.NoError(t, datastore.Close(db))

	require.Error(t, execute(t, a, "sync"))
	assert.JSONEq(t, `{"replayed":0,"pending":1}`, out.String())
}

func TestNewRuntime_InstallsConfiguredVersion(t *testing.T) {
	notification.ResetForTesting()
	t.Cleanup(notification.ResetForTesting)

	a, mt, _ := newTestApp(t)
	mt.RegisterResponder(http.MethodGet, origin+"/", httpmock.NewStringResponder(http.StatusOK, "<html>dashboard</html>"))

	rt, err := a.newRuntime(t.Context())
	require.NoError(t, err)
	t.Cleanup(rt.close)

	active := rt.reg.Active()
	require.NotNil(t, active)
	assert.Equal(t, "estoca-ai-v1.2", active.Version())
	assert.True(t, notification.IsInitialized())

	parts, err := rt.store.Keys(context.Background())
	require.NoError(t, err)
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		names = append(names, p.Name)
	}
	assert.Contains(t, names, "estoca-ai-static-v1.2")
}

func TestNewRuntime_InstallFailureServesUncontrolled(t *testing.T) {
	notification.ResetForTesting()
	t.Cleanup(notification.ResetForTesting)

	a, _, _ := newTestApp(t)

	rt, err := a.newRuntime(t.Context())
	require.NoError(t, err)
	t.Cleanup(rt.close)

	assert.Nil(t, rt.reg.Active())
	assert.NotNil(t, rt.server)
}

func TestNewRuntime_RejectsBadOrigin(t *testing.T) {
	a, _, _ := newTestApp(t)
	a.settings.Upstream.Origin = "localhost"

	_, err := a.newRuntime(t.Context())

	require.Error(t, err)
}
