package conf

import (
	"time"

	"github.com/spf13/viper"
)

const (
	MatchModeExact     = "exact"
	MatchModeSubstring = "substring"

	BackendMemory     = "memory"
	BackendPersistent = "persistent"

	DatabaseSQLite = "sqlite"
	DatabaseMySQL  = "mysql"
)

// DefaultStaticManifest is the shell the worker precaches on install.
var DefaultStaticManifest = []string{
	"/",
	"/index.html",
	"/styles.css",
	"/css/enhanced-styles.css",
	"/script.js",
	"/js/chat-ai.js",
	"/js/dashboard.js",
	"/js/advanced-features.js",
	"/ce871213-1168-48f7-b65f-4681ac5f7386.jpg",
	"https://fonts.googleapis.com/css2?family=Inter:wght@300;400;500;600;700&display=swap",
	"https://cdnjs.cloudflare.com/ajax/libs/font-awesome/6.0.0/css/all.min.css",
	"https://cdn.jsdelivr.net/npm/chart.js",
}

// setDefaults registers every default with viper.
func setDefaults(v *viper.Viper) {
	v.SetDefault("main.name", "estoca-worker")
	v.SetDefault("main.loglevel", "info")
	v.SetDefault("main.logjson", false)

	v.SetDefault("worker.cachename", "estoca-ai")
	v.SetDefault("worker.version", "1.2")
	v.SetDefault("worker.apiprefix", "/api/")
	v.SetDefault("worker.sentinelkey", "/api/offline-data")
	v.SetDefault("worker.matchmode", MatchModeExact)
	v.SetDefault("worker.staticmanifest", DefaultStaticManifest)
	v.SetDefault("worker.skipwaiting", true)

	v.SetDefault("upstream.origin", "http://localhost:3000")
	v.SetDefault("upstream.timeout", "0s")

	v.SetDefault("webserver.listen", ":8080")
	v.SetDefault("webserver.debug", false)
	v.SetDefault("webserver.controlrate", 10)
	v.SetDefault("webserver.controlburst", 20)

	v.SetDefault("database.type", DatabaseSQLite)
	v.SetDefault("database.path", "estoca-worker.db")

	v.SetDefault("cache.backend", BackendPersistent)
	v.SetDefault("cache.quotapercent", 95)

	v.SetDefault("sync.tag", "sync-data")
	v.SetDefault("sync.endpoint", "/api/sync")
	v.SetDefault("sync.ratepersecond", 5)
	v.SetDefault("sync.probeinterval", (30 * time.Second).String())
	v.SetDefault("sync.probepath", "/")

	v.SetDefault("push.title", "Estoca.AI")
	v.SetDefault("push.defaultbody", "Nova notificação do Estoca.AI")
	v.SetDefault("push.icon", "/ce871213-1168-48f7-b65f-4681ac5f7386.jpg")
	v.SetDefault("push.defaulturl", "/")
	v.SetDefault("push.historylimit", 100)
	v.SetDefault("push.mqtt.enabled", false)
	v.SetDefault("push.mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("push.mqtt.clientid", "estoca-worker")
	v.SetDefault("push.mqtt.pushtopic", "estoca/push")
	v.SetDefault("push.mqtt.synctopic", "estoca/sync")

	v.SetDefault("sentry.environment", "production")
}
