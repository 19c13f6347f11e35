package worker

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estoca-ai/estoca-worker/internal/lifecycle"
	"github.com/estoca-ai/estoca-worker/internal/strategy"
)

func TestDefaultHandlers_CoverEveryKind(t *testing.T) {
	t.Parallel()
	table := DefaultHandlers()
	for _, kind := range []EventKind{
		EventInstall, EventActivate, EventFetch, EventPush,
		EventNotificationClick, EventSync, EventMessage,
	} {
		assert.Contains(t, table, kind)
	}
	assert.Len(t, table, 7)
}

func TestHandleInstall_SeedsBothPartitions(t *testing.T) {
	env := newTestEnv(t)
	env.serveAssets("/index.html", "/script.js")
	s := env.scope(t, settingsFor("1.2", "/index.html", "/script.js"))

	_, err := HandleInstall(t.Context(), s, &Event{Kind: EventInstall})
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StateInstalled, s.Machine.Current())
	assert.True(t, s.Machine.SkipsWaiting())

	static, err := env.store.Open(t.Context(), s.Partitions.Static, s.Version)
	require.NoError(t, err)
	keys, err := static.Keys(t.Context())
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	dynamic, err := env.store.Open(t.Context(), s.Partitions.Dynamic, s.Version)
	require.NoError(t, err)
	resp, ok, err := dynamic.Match(t.Context(), s.Sentinel)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, string(resp.Body), "Produto A")
}

func TestHandleInstall_FailureMakesVersionRedundant(t *testing.T) {
	env := newTestEnv(t)
	env.serveAssets("/index.html")
	env.mt.RegisterResponder("GET", origin+"/script.js", httpmock.NewStringResponder(404, "missing"))
	s := env.scope(t, settingsFor("1.2", "/index.html", "/script.js"))

	_, err := HandleInstall(t.Context(), s, &Event{Kind: EventInstall})
	require.Error(t, err)
	assert.Equal(t, lifecycle.StateRedundant, s.Machine.Current())
	assert.Empty(t, env.partitionNames(t), "nothing committed")
}

func TestHandleActivate_EvictsOtherGenerations(t *testing.T) {
	env := newTestEnv(t)
	env.serveAssets("/index.html")

	old := env.scope(t, settingsFor("1.1", "/index.html"))
	_, err := HandleInstall(t.Context(), old, &Event{Kind: EventInstall})
	require.NoError(t, err)

	cur := env.scope(t, settingsFor("1.2", "/index.html"))
	_, err = HandleInstall(t.Context(), cur, &Event{Kind: EventInstall})
	require.NoError(t, err)

	res, err := HandleActivate(t.Context(), cur, &Event{Kind: EventActivate})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"estoca-ai-static-v1.1", "estoca-ai-dynamic-v1.1"}, res.Evicted)
	assert.ElementsMatch(t, []string{"estoca-ai-static-v1.2", "estoca-ai-dynamic-v1.2"}, env.partitionNames(t))
	assert.Equal(t, lifecycle.StateActivated, cur.Machine.Current())
}

func TestHandleFetch_OfflineInventoryFallback(t *testing.T) {
	env := newTestEnv(t)
	env.mt.RegisterNoResponder(httpmock.NewErrorResponder(errOffline))
	s := env.scope(t, settingsFor("1.2", "/index.html"))

	res, err := HandleFetch(t.Context(), s, NewFetchEvent(env.request(t, "GET", "/api/inventory")))
	require.NoError(t, err)
	assert.Equal(t, strategy.NetworkFirst, res.Strategy)
	assert.Equal(t, http.StatusOK, res.Response.Status)

	var items []map[string]any
	require.NoError(t, json.Unmarshal(res.Response.Body, &items))
	require.Len(t, items, 3)
	assert.Equal(t, "Produto A", items[0]["name"])
}

func TestHandleFetch_RequiresRequest(t *testing.T) {
	env := newTestEnv(t)
	s := env.scope(t, settingsFor("1.2"))
	_, err := HandleFetch(t.Context(), s, &Event{Kind: EventFetch})
	require.Error(t, err)
}

func TestHandlePushAndClick(t *testing.T) {
	env := newTestEnv(t)
	page := &fakePage{}
	env.clients.Register(page)
	s := env.scope(t, settingsFor("1.2"))

	res, err := HandlePush(t.Context(), s, NewPushEvent([]byte("Estoque baixo"), "http"))
	require.NoError(t, err)
	require.NotNil(t, res.Notification)
	assert.Equal(t, "Estoque baixo", res.Notification.Body)
	assert.Len(t, env.notes.List(), 1)

	_, err = HandleNotificationClick(t.Context(), s, NewClickEvent(res.Notification.ID, ""))
	require.NoError(t, err)
	assert.Empty(t, env.notes.List())
	require.Len(t, page.msgs, 1)
	assert.Equal(t, "NAVIGATE", page.msgs[0].Type)
	assert.Equal(t, "/", page.msgs[0].URL)
}

func TestHandleSync_ReplaysQueue(t *testing.T) {
	env := newTestEnv(t)
	var bodies []string
	env.mt.RegisterResponder("POST", origin+"/api/sync", func(req *http.Request) (*http.Response, error) {
		b, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		bodies = append(bodies, string(b))
		return httpmock.NewStringResponse(200, "ok"), nil
	})
	s := env.scope(t, settingsFor("1.2"))

	_, err := env.queue.Enqueue(t.Context(), "sync-data", json.RawMessage(`{"sale":1}`))
	require.NoError(t, err)
	_, err = env.queue.Enqueue(t.Context(), "sync-data", json.RawMessage(`{"sale":2}`))
	require.NoError(t, err)

	res, err := HandleSync(t.Context(), s, NewSyncEvent("sync-data"))
	require.NoError(t, err)
	require.NotNil(t, res.Sync)
	assert.Equal(t, 2, res.Sync.Replayed)
	require.Len(t, bodies, 2)
	assert.JSONEq(t, `{"sale":1}`, bodies[0])
	assert.JSONEq(t, `{"sale":2}`, bodies[1])
}

func TestHandleSync_IgnoresOtherTags(t *testing.T) {
	env := newTestEnv(t)
	s := env.scope(t, settingsFor("1.2"))

	res, err := HandleSync(t.Context(), s, NewSyncEvent("other"))
	require.NoError(t, err)
	assert.Nil(t, res.Sync)
	assert.Zero(t, env.mt.GetTotalCallCount())
}

func TestHandleMessage(t *testing.T) {
	env := newTestEnv(t)
	s := env.scope(t, settingsFor("1.2"))

	res, err := HandleMessage(t.Context(), s, NewMessageEvent(Message{Type: MessageGetVersion}))
	require.NoError(t, err)
	assert.Equal(t, VersionReply{Version: "estoca-ai-v1.2"}, res.Reply)

	res, err = HandleMessage(t.Context(), s, NewMessageEvent(Message{Type: MessageSkipWaiting}))
	require.NoError(t, err)
	assert.Nil(t, res.Reply)
	assert.True(t, s.Machine.SkipsWaiting())

	res, err = HandleMessage(t.Context(), s, NewMessageEvent(Message{Type: "PING"}))
	require.NoError(t, err)
	assert.Nil(t, res.Reply)
}

func TestWorker_DispatchRecoversPanics(t *testing.T) {
	env := newTestEnv(t)
	w := New(env.scope(t, settingsFor("1.2")))
	w.SetHandler(EventPush, func(_ context.Context, _ *Scope, _ *Event) (*Result, error) {
		panic("boom")
	})

	res, err := w.Dispatch(t.Context(), NewPushEvent(nil, "http"))
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "panic in push handler")
}

func TestWorker_DispatchUnknownKind(t *testing.T) {
	env := newTestEnv(t)
	w := New(env.scope(t, settingsFor("1.2")))
	_, err := w.Dispatch(t.Context(), &Event{Kind: "bogus"})
	require.Error(t, err)
}
