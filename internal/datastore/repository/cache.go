package repository

import (
	"context"

	"github.com/estoca-ai/estoca-worker/internal/datastore/entities"
)

// CacheRepository persists cache partitions and their entries.
type CacheRepository interface {
	// Partitions
	EnsurePartition(ctx context.Context, name, generation string) (*entities.CachePartition, error)
	GetPartition(ctx context.Context, name string) (*entities.CachePartition, error)
	ListPartitions(ctx context.Context) ([]entities.CachePartition, error)
	DeletePartition(ctx context.Context, name string) (bool, error)

	// Entries
	GetEntry(ctx context.Context, partitionID uint, keyHash string) (*entities.CacheEntry, error)
	PutEntry(ctx context.Context, entry *entities.CacheEntry) error
	PutEntries(ctx context.Context, partitionID uint, entries []entities.CacheEntry) error
	DeleteEntry(ctx context.Context, partitionID uint, keyHash string) (bool, error)
	ListEntries(ctx context.Context, partitionID uint) ([]entities.CacheEntry, error)
	CountEntries(ctx context.Context, partitionID uint) (int64, error)
}
