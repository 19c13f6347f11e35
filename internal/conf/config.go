package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/estoca-ai/estoca-worker/internal/errors"
)

const (
	configName = "estoca-worker"
	envPrefix  = "ESTOCA_WORKER"
)

// configPaths are searched in order when no explicit file is given.
func configPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", configName))
	}
	return append(paths, filepath.Join("/etc", configName))
}

// Load reads settings from file (when non-empty), the default search paths
// and ESTOCA_WORKER_* environment variables, then validates the result.
func Load(file string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		for _, p := range configPaths() {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, errors.New(err).
				Component("conf").
				Category(errors.CategoryConfiguration).
				Context("operation", "read_config").
				Context("file", file).
				Build()
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings, viper.DecodeHook(DurationDecodeHook()), func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "decode_config").
			Build()
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// Defaults returns validated settings built from defaults only.
func Defaults() *Settings {
	v := viper.New()
	setDefaults(v)
	settings := &Settings{}
	// Defaults are static and always decode.
	_ = v.Unmarshal(settings, viper.DecodeHook(DurationDecodeHook()))
	return settings
}

// Validate rejects settings the worker cannot run with.
func (s *Settings) Validate() error {
	var problems []string

	if strings.TrimSpace(s.Worker.CacheName) == "" {
		problems = append(problems, "worker.cachename must not be empty")
	}
	if strings.TrimSpace(s.Worker.Version) == "" {
		problems = append(problems, "worker.version must not be empty")
	}
	if !strings.HasPrefix(s.Worker.APIPrefix, "/") {
		problems = append(problems, "worker.apiprefix must start with /")
	}
	if !slices.Contains([]string{MatchModeExact, MatchModeSubstring}, s.Worker.MatchMode) {
		problems = append(problems, fmt.Sprintf("worker.matchmode %q is not one of exact, substring", s.Worker.MatchMode))
	}
	if !slices.Contains([]string{BackendMemory, BackendPersistent}, s.Cache.Backend) {
		problems = append(problems, fmt.Sprintf("cache.backend %q is not one of memory, persistent", s.Cache.Backend))
	}
	if s.Cache.QuotaPercent < 0 || s.Cache.QuotaPercent > 100 {
		problems = append(problems, "cache.quotapercent must be between 0 and 100")
	}
	if !slices.Contains([]string{DatabaseSQLite, DatabaseMySQL}, s.Database.Type) {
		problems = append(problems, fmt.Sprintf("database.type %q is not one of sqlite, mysql", s.Database.Type))
	}
	if s.Database.Type == DatabaseMySQL && s.Database.DSN == "" {
		problems = append(problems, "database.dsn is required for mysql")
	}
	if s.Upstream.Origin == "" {
		problems = append(problems, "upstream.origin must not be empty")
	}
	if s.Upstream.Timeout < 0 {
		problems = append(problems, "upstream.timeout must not be negative")
	}
	if s.Sync.RatePerSecond <= 0 {
		problems = append(problems, "sync.ratepersecond must be positive")
	}

	if len(problems) > 0 {
		return errors.Newf("invalid configuration: %s", strings.Join(problems, "; ")).
			Component("conf").
			Category(errors.CategoryValidation).
			Context("problems", len(problems)).
			Build()
	}
	return nil
}

// Dump renders settings as YAML with secrets masked.
func (s *Settings) Dump() ([]byte, error) {
	masked := *s
	if masked.Database.DSN != "" {
		masked.Database.DSN = "********"
	}
	if masked.Sentry.DSN != "" {
		masked.Sentry.DSN = "********"
	}
	masked.Push.MQTT.Password = ""
	masked.Push.Providers = nil
	return yaml.Marshal(&masked)
}
