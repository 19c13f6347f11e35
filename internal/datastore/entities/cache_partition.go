package entities

import "time"

// CachePartition is a named, versioned cache namespace such as
// "estoca-ai-static-v1.2". Generation records the worker version token the
// partition was created under and drives eviction on activation.
type CachePartition struct {
	ID         uint         `gorm:"primaryKey" json:"id"`
	Name       string       `gorm:"size:255;not null;uniqueIndex" json:"name"`
	Generation string       `gorm:"size:100;not null;index" json:"generation"`
	CreatedAt  time.Time    `gorm:"autoCreateTime" json:"created_at"`
	Entries    []CacheEntry `gorm:"foreignKey:PartitionID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName returns the table name for GORM.
func (CachePartition) TableName() string {
	return "cache_partitions"
}
