// Package conf holds the worker configuration: the cache identity, the static
// manifest, upstream and storage settings, and the push/sync transports.
package conf

import (
	"fmt"
	"path/filepath"
)

// Settings is the root configuration.
type Settings struct {
	Main      MainSettings      `mapstructure:"main" yaml:"main" json:"main"`
	Worker    WorkerSettings    `mapstructure:"worker" yaml:"worker" json:"worker"`
	Upstream  UpstreamSettings  `mapstructure:"upstream" yaml:"upstream" json:"upstream"`
	WebServer WebServerSettings `mapstructure:"webserver" yaml:"webserver" json:"webserver"`
	Database  DatabaseSettings  `mapstructure:"database" yaml:"database" json:"database"`
	Cache     CacheSettings     `mapstructure:"cache" yaml:"cache" json:"cache"`
	Sync      SyncSettings      `mapstructure:"sync" yaml:"sync" json:"sync"`
	Push      PushSettings      `mapstructure:"push" yaml:"push" json:"push"`
	Sentry    SentrySettings    `mapstructure:"sentry" yaml:"sentry" json:"sentry"`
}

// MainSettings holds process-level options.
type MainSettings struct {
	Name     string `mapstructure:"name" yaml:"name" json:"name"`
	LogLevel string `mapstructure:"loglevel" yaml:"loglevel" json:"logLevel"`
	LogJSON  bool   `mapstructure:"logjson" yaml:"logjson" json:"logJson"`
}

// WorkerSettings identifies the worker version and its routing inputs.
type WorkerSettings struct {
	CacheName      string   `mapstructure:"cachename" yaml:"cachename" json:"cacheName"`
	Version        string   `mapstructure:"version" yaml:"version" json:"version"`
	APIPrefix      string   `mapstructure:"apiprefix" yaml:"apiprefix" json:"apiPrefix"`
	SentinelKey    string   `mapstructure:"sentinelkey" yaml:"sentinelkey" json:"sentinelKey"`
	MatchMode      string   `mapstructure:"matchmode" yaml:"matchmode" json:"matchMode"`
	StaticManifest []string `mapstructure:"staticmanifest" yaml:"staticmanifest" json:"staticManifest"`
	SkipWaiting    bool     `mapstructure:"skipwaiting" yaml:"skipwaiting" json:"skipWaiting"` // activate right after install
}

// VersionToken is the reply to GET_VERSION, e.g. "estoca-ai-v1.2".
func (w WorkerSettings) VersionToken() string {
	return fmt.Sprintf("%s-v%s", w.CacheName, w.Version)
}

// StaticPartition is the name of the static partition for this version.
func (w WorkerSettings) StaticPartition() string {
	return fmt.Sprintf("%s-static-v%s", w.CacheName, w.Version)
}

// DynamicPartition is the name of the dynamic partition for this version.
func (w WorkerSettings) DynamicPartition() string {
	return fmt.Sprintf("%s-dynamic-v%s", w.CacheName, w.Version)
}

// UpstreamSettings configures the network side of every fetch.
type UpstreamSettings struct {
	Origin  string   `mapstructure:"origin" yaml:"origin" json:"origin"`
	Timeout Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"` // 0 disables
}

// WebServerSettings configures the interception listener.
type WebServerSettings struct {
	Listen       string  `mapstructure:"listen" yaml:"listen" json:"listen"`
	Debug        bool    `mapstructure:"debug" yaml:"debug" json:"debug"`
	ControlRate  float64 `mapstructure:"controlrate" yaml:"controlrate" json:"controlRate"`   // requests per second per client
	ControlBurst int     `mapstructure:"controlburst" yaml:"controlburst" json:"controlBurst"` // burst size
}

// DatabaseSettings selects the persistence backend for cache entries and sync tasks.
type DatabaseSettings struct {
	Type string `mapstructure:"type" yaml:"type" json:"type"` // sqlite or mysql
	Path string `mapstructure:"path" yaml:"path" json:"path"` // sqlite file path
	DSN  string `mapstructure:"dsn" yaml:"dsn" json:"-"`      // mysql DSN
}

// CacheSettings selects the cache backend.
type CacheSettings struct {
	Backend      string  `mapstructure:"backend" yaml:"backend" json:"backend"` // memory or persistent
	QuotaPercent float64 `mapstructure:"quotapercent" yaml:"quotapercent" json:"quotaPercent"`
}

// DataDir returns the directory the quota guard measures.
func (s *Settings) DataDir() string {
	if s.Database.Type == "sqlite" && s.Database.Path != "" {
		return filepath.Dir(s.Database.Path)
	}
	return "."
}

// SyncSettings configures background sync replay.
type SyncSettings struct {
	Tag           string   `mapstructure:"tag" yaml:"tag" json:"tag"`
	Endpoint      string   `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint"`
	RatePerSecond float64  `mapstructure:"ratepersecond" yaml:"ratepersecond" json:"ratePerSecond"`
	ProbeInterval Duration `mapstructure:"probeinterval" yaml:"probeinterval" json:"probeInterval"` // 0 disables the monitor
	ProbePath     string   `mapstructure:"probepath" yaml:"probepath" json:"probePath"`
}

// PushSettings configures the notification descriptor and push transports.
type PushSettings struct {
	Title        string       `mapstructure:"title" yaml:"title" json:"title"`
	DefaultBody  string       `mapstructure:"defaultbody" yaml:"defaultbody" json:"defaultBody"`
	Icon         string       `mapstructure:"icon" yaml:"icon" json:"icon"`
	DefaultURL   string       `mapstructure:"defaulturl" yaml:"defaulturl" json:"defaultUrl"`
	Providers    []string     `mapstructure:"providers" yaml:"providers" json:"-"` // shoutrrr URLs
	HistoryLimit int          `mapstructure:"historylimit" yaml:"historylimit" json:"historyLimit"`
	MQTT         MQTTSettings `mapstructure:"mqtt" yaml:"mqtt" json:"mqtt"`
}

// MQTTSettings configures the MQTT push and sync subscriber.
type MQTTSettings struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Broker    string `mapstructure:"broker" yaml:"broker" json:"broker"`
	ClientID  string `mapstructure:"clientid" yaml:"clientid" json:"clientId"`
	Username  string `mapstructure:"username" yaml:"username" json:"username"`
	Password  string `mapstructure:"password" yaml:"password" json:"-"`
	PushTopic string `mapstructure:"pushtopic" yaml:"pushtopic" json:"pushTopic"`
	SyncTopic string `mapstructure:"synctopic" yaml:"synctopic" json:"syncTopic"`
}

// SentrySettings enables error reporting when DSN is set.
type SentrySettings struct {
	DSN         string `mapstructure:"dsn" yaml:"dsn" json:"-"`
	Environment string `mapstructure:"environment" yaml:"environment" json:"environment"`
}
