// Package config loads the elasticcache server configuration from a YAML file, ELASTICCACHE_*
// environment variables and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/CreativeUnicorns/elasticcache"
	"github.com/CreativeUnicorns/elasticcache/store"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "ELASTICCACHE"

// Config is the complete server configuration.
type Config struct {
	LogLevel      string              `mapstructure:"log_level"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Server        ServerConfig        `mapstructure:"server"`
}

// ElasticsearchConfig holds the cluster connection parameters.
type ElasticsearchConfig struct {
	Hostname        string        `mapstructure:"hostname"`
	Port            int           `mapstructure:"port"`
	Path            string        `mapstructure:"path"`
	Transport       string        `mapstructure:"transport"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	Refresh         bool          `mapstructure:"refresh"`
	ScrollKeepAlive time.Duration `mapstructure:"scroll_keep_alive"`
}

// CacheConfig holds the backend settings.
type CacheConfig struct {
	Index              string        `mapstructure:"index"`
	IndexConfiguration string        `mapstructure:"index_configuration"`
	DefaultLifetime    time.Duration `mapstructure:"default_lifetime"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	ReadyTimeout       time.Duration `mapstructure:"ready_timeout"`
	ReadyPollInterval  time.Duration `mapstructure:"ready_poll_interval"`
	PageSize           int           `mapstructure:"page_size"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	ListenAddress   string        `mapstructure:"listen_address"`
	GCInterval      time.Duration `mapstructure:"gc_interval"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"host":        "elasticsearch.hostname",
	"port":        "elasticsearch.port",
	"index":       "cache.index",
	"log-level":   "log_level",
	"listen":      "server.listen_address",
	"gc-interval": "server.gc_interval",
}

func setDefaults(v *viper.Viper) {
	es := store.DefaultElasticConfig()

	v.SetDefault("log_level", "info")

	v.SetDefault("elasticsearch.hostname", es.Hostname)
	v.SetDefault("elasticsearch.port", es.Port)
	v.SetDefault("elasticsearch.path", es.Path)
	v.SetDefault("elasticsearch.transport", es.Transport)
	v.SetDefault("elasticsearch.username", "")
	v.SetDefault("elasticsearch.password", "")
	v.SetDefault("elasticsearch.refresh", false)
	v.SetDefault("elasticsearch.scroll_keep_alive", es.ScrollKeepAlive)

	v.SetDefault("cache.index", elasticcache.DefaultIndexName)
	v.SetDefault("cache.index_configuration", "")
	v.SetDefault("cache.default_lifetime", elasticcache.DefaultLifetime)
	v.SetDefault("cache.request_timeout", elasticcache.DefaultRequestTimeout)
	v.SetDefault("cache.ready_timeout", elasticcache.DefaultReadyTimeout)
	v.SetDefault("cache.ready_poll_interval", elasticcache.DefaultReadyPollInterval)
	v.SetDefault("cache.page_size", elasticcache.DefaultPageSize)

	v.SetDefault("server.listen_address", ":8080")
	v.SetDefault("server.gc_interval", time.Duration(0))
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
}

// Load builds the configuration. path names an optional YAML file; flags, when non-nil, are
// bound so that explicitly set flags override the file and the environment.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: failed to read config file %q: %w", elasticcache.ErrConfiguration, path, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("%w: failed to bind flag %q: %w", elasticcache.ErrConfiguration, name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to decode configuration: %w", elasticcache.ErrConfiguration, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the values the backend and the store do not validate themselves.
func (c *Config) Validate() error {
	var errs []error
	if _, err := elasticcache.ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.Elasticsearch.Transport {
	case "http", "https":
	default:
		errs = append(errs, fmt.Errorf("%w: unsupported transport %q", elasticcache.ErrConfiguration, c.Elasticsearch.Transport))
	}
	if c.Elasticsearch.Port <= 0 || c.Elasticsearch.Port > 65535 {
		errs = append(errs, fmt.Errorf("%w: invalid port %d", elasticcache.ErrConfiguration, c.Elasticsearch.Port))
	}
	if c.Server.GCInterval < 0 {
		errs = append(errs, fmt.Errorf("%w: gc interval must not be negative", elasticcache.ErrConfiguration))
	}
	return errors.Join(errs...)
}

// Logger returns a DefaultLogger at the configured level.
func (c *Config) Logger() *elasticcache.DefaultLogger {
	logger := elasticcache.NewDefaultLogger()
	if level, err := elasticcache.ParseLogLevel(c.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	return logger
}

// ElasticConfig returns the store connection parameters.
func (c *Config) ElasticConfig() store.ElasticConfig {
	es := c.Elasticsearch
	return store.ElasticConfig{
		Hostname:        es.Hostname,
		Port:            es.Port,
		Path:            es.Path,
		Transport:       es.Transport,
		Username:        es.Username,
		Password:        es.Password,
		Refresh:         es.Refresh,
		ScrollKeepAlive: es.ScrollKeepAlive,
	}
}

// BackendOptions returns the backend options for this configuration.
func (c *Config) BackendOptions(logger elasticcache.Logger) []elasticcache.Option {
	opts := []elasticcache.Option{
		elasticcache.WithIndexName(c.Cache.Index),
		elasticcache.WithDefaultLifetime(c.Cache.DefaultLifetime),
		elasticcache.WithRequestTimeout(c.Cache.RequestTimeout),
		elasticcache.WithReadiness(c.Cache.ReadyTimeout, c.Cache.ReadyPollInterval),
		elasticcache.WithPageSize(c.Cache.PageSize),
		elasticcache.WithLogger(logger),
	}
	if c.Cache.IndexConfiguration != "" {
		opts = append(opts, elasticcache.WithIndexConfiguration(c.Cache.IndexConfiguration))
	}
	return opts
}
