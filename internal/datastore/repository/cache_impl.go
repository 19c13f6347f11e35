package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/estoca-ai/estoca-worker/internal/datastore/entities"
	"github.com/estoca-ai/estoca-worker/internal/errors"
)

// cacheRepository implements CacheRepository.
type cacheRepository struct {
	db *gorm.DB
}

// NewCacheRepository creates a new CacheRepository.
func NewCacheRepository(db *gorm.DB) CacheRepository {
	return &cacheRepository{db: db}
}

// entryConflict upserts on the (partition, key) unique index. Last writer wins.
var entryConflict = clause.OnConflict{
	Columns:   []clause.Column{{Name: "partition_id"}, {Name: "key_hash"}},
	DoUpdates: clause.AssignmentColumns([]string{"method", "url", "status", "header", "body", "digest", "size", "stored_at"}),
}

// EnsurePartition returns the named partition, creating it under generation
// when it does not exist. An existing partition keeps its generation.
func (r *cacheRepository) EnsurePartition(ctx context.Context, name, generation string) (*entities.CachePartition, error) {
	partition := entities.CachePartition{Name: name, Generation: generation}
	if err := r.db.WithContext(ctx).Where("name = ?", name).FirstOrCreate(&partition).Error; err != nil {
		return nil, fmt.Errorf("failed to ensure cache partition %s: %w", name, err)
	}
	return &partition, nil
}

// GetPartition returns a partition by name.
// Returns ErrPartitionNotFound if it does not exist.
func (r *cacheRepository) GetPartition(ctx context.Context, name string) (*entities.CachePartition, error) {
	var partition entities.CachePartition
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&partition).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPartitionNotFound
		}
		return nil, fmt.Errorf("failed to get cache partition %s: %w", name, err)
	}
	return &partition, nil
}

// ListPartitions returns all partitions in creation order.
func (r *cacheRepository) ListPartitions(ctx context.Context) ([]entities.CachePartition, error) {
	var partitions []entities.CachePartition
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&partitions).Error; err != nil {
		return nil, fmt.Errorf("failed to list cache partitions: %w", err)
	}
	return partitions, nil
}

// DeletePartition removes a partition and all of its entries.
// Returns false when no partition had that name.
func (r *cacheRepository) DeletePartition(ctx context.Context, name string) (bool, error) {
	deleted := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var partition entities.CachePartition
		if err := tx.Where("name = ?", name).First(&partition).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return fmt.Errorf("failed to look up cache partition %s: %w", name, err)
		}
		// Entries are removed explicitly; sqlite only cascades with foreign_keys on.
		if err := tx.Where("partition_id = ?", partition.ID).Delete(&entities.CacheEntry{}).Error; err != nil {
			return fmt.Errorf("failed to delete entries of cache partition %s: %w", name, err)
		}
		if err := tx.Delete(&partition).Error; err != nil {
			return fmt.Errorf("failed to delete cache partition %s: %w", name, err)
		}
		deleted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

// GetEntry returns the entry stored under keyHash.
// Returns ErrEntryNotFound if there is none.
func (r *cacheRepository) GetEntry(ctx context.Context, partitionID uint, keyHash string) (*entities.CacheEntry, error) {
	var entry entities.CacheEntry
	err := r.db.WithContext(ctx).
		Where("partition_id = ? AND key_hash = ?", partitionID, keyHash).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}
	return &entry, nil
}

// PutEntry inserts or replaces a single entry.
func (r *cacheRepository) PutEntry(ctx context.Context, entry *entities.CacheEntry) error {
	if entry.PartitionID == 0 {
		return fmt.Errorf("failed to put cache entry: missing partition ID")
	}
	if err := r.db.WithContext(ctx).Clauses(entryConflict).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to put cache entry %s: %w", entry.URL, err)
	}
	return nil
}

// PutEntries writes all entries in one transaction: either every entry is
// stored or none is.
func (r *cacheRepository) PutEntries(ctx context.Context, partitionID uint, entries []entities.CacheEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range entries {
			entries[i].PartitionID = partitionID
			entries[i].ID = 0
			if err := tx.Clauses(entryConflict).Create(&entries[i]).Error; err != nil {
				return fmt.Errorf("failed to put cache entry %s: %w", entries[i].URL, err)
			}
		}
		return nil
	})
}

// DeleteEntry removes one entry. Returns false when nothing matched.
func (r *cacheRepository) DeleteEntry(ctx context.Context, partitionID uint, keyHash string) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("partition_id = ? AND key_hash = ?", partitionID, keyHash).
		Delete(&entities.CacheEntry{})
	if result.Error != nil {
		return false, fmt.Errorf("failed to delete cache entry: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// ListEntries returns entry metadata without bodies, oldest first.
func (r *cacheRepository) ListEntries(ctx context.Context, partitionID uint) ([]entities.CacheEntry, error) {
	var entries []entities.CacheEntry
	err := r.db.WithContext(ctx).
		Select("id", "partition_id", "key_hash", "method", "url", "status", "digest", "size", "stored_at").
		Where("partition_id = ?", partitionID).
		Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list cache entries: %w", err)
	}
	return entries, nil
}

// CountEntries returns the number of entries in a partition.
func (r *cacheRepository) CountEntries(ctx context.Context, partitionID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&entities.CacheEntry{}).Where("partition_id = ?", partitionID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return count, nil
}
