package entities

// All returns every entity for AutoMigrate, parents before children.
func All() []any {
	return []any{
		&CachePartition{},
		&CacheEntry{},
		&SyncTask{},
	}
}
