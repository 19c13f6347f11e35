package repository

import "github.com/estoca-ai/estoca-worker/internal/errors"

var (
	// ErrPartitionNotFound is returned when a cache partition does not exist.
	ErrPartitionNotFound = errors.NewStd("cache partition not found")
	// ErrEntryNotFound is returned when no entry matches a request key.
	ErrEntryNotFound = errors.NewStd("cache entry not found")
	// ErrSyncTaskNotFound is returned when a sync task does not exist.
	ErrSyncTaskNotFound = errors.NewStd("sync task not found")
)
