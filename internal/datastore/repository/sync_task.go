package repository

import (
	"context"

	"github.com/estoca-ai/estoca-worker/internal/datastore/entities"
)

// SyncTaskRepository persists the background sync queue.
type SyncTaskRepository interface {
	Create(ctx context.Context, task *entities.SyncTask) error
	Get(ctx context.Context, uuid string) (*entities.SyncTask, error)
	// ListPending returns tasks for tag in enqueue order.
	ListPending(ctx context.Context, tag string) ([]entities.SyncTask, error)
	Count(ctx context.Context, tag string) (int64, error)
	RecordAttempt(ctx context.Context, id uint, lastError string) error
	DeleteByIDs(ctx context.Context, ids []uint) (int64, error)
}
