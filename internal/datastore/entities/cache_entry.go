package entities

import "time"

// CacheEntry is one stored response keyed by request identity within a partition.
type CacheEntry struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	PartitionID uint      `gorm:"not null;uniqueIndex:idx_cache_entry_partition_key,priority:1" json:"partition_id"`
	KeyHash     string    `gorm:"size:64;not null;uniqueIndex:idx_cache_entry_partition_key,priority:2" json:"key_hash"`
	Method      string    `gorm:"size:10;not null" json:"method"`
	URL         string    `gorm:"type:text;not null" json:"url"`
	Status      int       `gorm:"not null" json:"status"`
	Header      string    `gorm:"type:text" json:"header"` // JSON-encoded http.Header
	Body        []byte    `json:"-"`
	Digest      string    `gorm:"size:64;default:''" json:"digest"` // blake2b-256 of Body, hex
	Size        int64     `gorm:"not null;default:0" json:"size"`
	StoredAt    time.Time `gorm:"not null;index" json:"stored_at"`
}

// TableName returns the table name for GORM.
func (CacheEntry) TableName() string {
	return "cache_entries"
}
