package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/estoca-ai/estoca-worker/internal/datastore/entities"
	"github.com/estoca-ai/estoca-worker/internal/errors"
)

// syncTaskRepository implements SyncTaskRepository.
type syncTaskRepository struct {
	db *gorm.DB
}

// NewSyncTaskRepository creates a new SyncTaskRepository.
func NewSyncTaskRepository(db *gorm.DB) SyncTaskRepository {
	return &syncTaskRepository{db: db}
}

// Create enqueues a task.
func (r *syncTaskRepository) Create(ctx context.Context, task *entities.SyncTask) error {
	if task.UUID == "" || task.Tag == "" {
		return fmt.Errorf("failed to create sync task: uuid and tag are required")
	}
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("failed to create sync task: %w", err)
	}
	return nil
}

// Get returns a task by UUID.
// Returns ErrSyncTaskNotFound if it does not exist.
func (r *syncTaskRepository) Get(ctx context.Context, uuid string) (*entities.SyncTask, error) {
	var task entities.SyncTask
	if err := r.db.WithContext(ctx).Where("uuid = ?", uuid).First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSyncTaskNotFound
		}
		return nil, fmt.Errorf("failed to get sync task %s: %w", uuid, err)
	}
	return &task, nil
}

// ListPending returns every queued task for tag, oldest first.
func (r *syncTaskRepository) ListPending(ctx context.Context, tag string) ([]entities.SyncTask, error) {
	var tasks []entities.SyncTask
	if err := r.db.WithContext(ctx).Where("tag = ?", tag).Order("id ASC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("failed to list sync tasks: %w", err)
	}
	return tasks, nil
}

// Count returns the number of queued tasks for tag.
func (r *syncTaskRepository) Count(ctx context.Context, tag string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&entities.SyncTask{}).Where("tag = ?", tag).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count sync tasks: %w", err)
	}
	return count, nil
}

// RecordAttempt increments the attempt counter and stores the last error.
func (r *syncTaskRepository) RecordAttempt(ctx context.Context, id uint, lastError string) error {
	if len(lastError) > 1000 {
		lastError = lastError[:1000]
	}
	result := r.db.WithContext(ctx).Model(&entities.SyncTask{}).Where("id = ?", id).Updates(map[string]any{
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": lastError,
	})
	if result.Error != nil {
		return fmt.Errorf("failed to record sync attempt %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrSyncTaskNotFound
	}
	return nil
}

// DeleteByIDs removes exactly the given tasks.
func (r *syncTaskRepository) DeleteByIDs(ctx context.Context, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&entities.SyncTask{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete sync tasks: %w", result.Error)
	}
	return result.RowsAffected, nil
}
