package cachestore

import (
	"gorm.io/gorm"

	"github.com/estoca-ai/estoca-worker/internal/conf"
	"github.com/estoca-ai/estoca-worker/internal/datastore/repository"
	"github.com/estoca-ai/estoca-worker/internal/logger"
)

// New builds the store selected by settings.Cache.Backend. db may be nil for
// the memory backend.
func New(settings *conf.Settings, db *gorm.DB, log logger.Logger) Store {
	if settings.Cache.Backend == conf.BackendMemory || db == nil {
		log.Info("using in-memory cache store")
		return NewMemoryStore()
	}
	log.Info("using persistent cache store",
		logger.String("db_type", settings.Database.Type),
		logger.Any("quota_percent", settings.Cache.QuotaPercent))
	quota := NewDiskQuota(settings.DataDir(), settings.Cache.QuotaPercent)
	return NewPersistentStore(repository.NewCacheRepository(db), quota)
}
