//go:build integration

package repository_test

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/estoca-ai/estoca-worker/internal/datastore"
	"github.com/estoca-ai/estoca-worker/internal/datastore/entities"
	"github.com/estoca-ai/estoca-worker/internal/datastore/repository"
	"github.com/estoca-ai/estoca-worker/internal/logger"
	"github.com/estoca-ai/estoca-worker/internal/testutil/containers"
)

var (
	mysqlContainer *containers.MySQLContainer
	mysqlDB        *gorm.DB
)

func TestMain(m *testing.M) {
	ctx := context.Background() //nolint:gocritic // TestMain has no *testing.T for t.Context()

	var err error
	mysqlContainer, err = containers.NewMySQLContainer(ctx, nil)
	if err != nil {
		panic("failed to start MySQL: " + err.Error())
	}
	mysqlDB, err = datastore.Open(mysqlContainer.DatabaseSettings(), false,
		logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil))
	if err != nil {
		_ = mysqlContainer.Terminate(ctx)
		panic("failed to open MySQL datastore: " + err.Error())
	}

	code := m.Run()

	_ = datastore.Close(mysqlDB)
	_ = mysqlContainer.Terminate(ctx)
	os.Exit(code)
}

func resetTables(t *testing.T) {
	t.Helper()
	require.NoError(t, mysqlContainer.Reset(t.Context(), []string{"cache_entries", "cache_partitions", "sync_tasks"}))
}

func TestMySQL_CacheRoundTrip(t *testing.T) {
	resetTables(t)
	repo := repository.NewCacheRepository(mysqlDB)
	ctx := t.Context()

	p, err := repo.EnsurePartition(ctx, "estoca-ai-static-v1.2", "estoca-ai-v1.2")
	require.NoError(t, err)

	body := make([]byte, 256*1024)
	for i := range body {
		body[i] = byte(i)
	}
	entry := &entities.CacheEntry{
		PartitionID: p.ID,
		KeyHash:     "k1",
		Method:      "GET",
		URL:         "http://localhost:3000/script.js",
		Status:      200,
		Header:      `{"Content-Type":["application/javascript"]}`,
		Body:        body,
		Size:        int64(len(body)),
		StoredAt:    time.Now().UTC(),
	}
	require.NoError(t, repo.PutEntry(ctx, entry))

	entry.Body = []byte("replaced")
	entry.ID = 0
	require.NoError(t, repo.PutEntry(ctx, entry), "upsert on the composite key")

	got, err := repo.GetEntry(ctx, p.ID, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("replaced"), got.Body)

	n, err := repo.CountEntries(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	deleted, err := repo.DeletePartition(ctx, p.Name)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = repo.GetEntry(ctx, p.ID, "k1")
	require.ErrorIs(t, err, repository.ErrEntryNotFound)
}

func TestMySQL_SyncQueueOrder(t *testing.T) {
	resetTables(t)
	repo := repository.NewSyncTaskRepository(mysqlDB)
	ctx := t.Context()

	var ids []uint
	for _, payload := range []string{`{"n":1}`, `{"n":2}`, `{"n":3}`} {
		task := &entities.SyncTask{UUID: uuid.NewString(), Tag: "sync-data", Payload: payload}
		require.NoError(t, repo.Create(ctx, task))
		ids = append(ids, task.ID)
	}

	tasks, err := repo.ListPending(ctx, "sync-data")
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.JSONEq(t, `{"n":1}`, tasks[0].Payload)
	assert.JSONEq(t, `{"n":3}`, tasks[2].Payload)

	deleted, err := repo.DeleteByIDs(ctx, ids[:2])
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	count, err := repo.Count(ctx, "sync-data")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
