// Package config provides Viper-based configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. ZOEFINAN_SERVER_PORT.
const EnvPrefix = "ZOEFINAN"

type Config struct {
	Server struct {
		Port               string        `mapstructure:"port" yaml:"port"`
		ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
		RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	} `mapstructure:"server" yaml:"server"`

	Log struct {
		Level  string `mapstructure:"level" yaml:"level"`
		Format string `mapstructure:"format" yaml:"format"`
	} `mapstructure:"log" yaml:"log"`

	// Document store selection
	Storage struct {
		Backend      string `mapstructure:"backend" yaml:"backend"`
		SQLitePath   string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
		PostgresDSN  string `mapstructure:"postgres_dsn" yaml:"-"`
		FirebaseProj string `mapstructure:"firebase_project" yaml:"firebase_project"`
		FirebaseCred string `mapstructure:"firebase_credentials_file" yaml:"firebase_credentials_file"`
	} `mapstructure:"storage" yaml:"storage"`

	Cache struct {
		Backend       string        `mapstructure:"backend" yaml:"backend"`
		TTL           time.Duration `mapstructure:"ttl" yaml:"ttl"`
		MaxEntries    int           `mapstructure:"max_entries" yaml:"max_entries"`
		RedisAddr     string        `mapstructure:"redis_addr" yaml:"redis_addr"`
		RedisPassword string        `mapstructure:"redis_password" yaml:"-"`
		RedisDB       int           `mapstructure:"redis_db" yaml:"redis_db"`
	} `mapstructure:"cache" yaml:"cache"`

	Auth struct {
		Provider  string        `mapstructure:"provider" yaml:"provider"`
		JWTSecret string        `mapstructure:"jwt_secret" yaml:"-"`
		TokenTTL  time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
	} `mapstructure:"auth" yaml:"auth"`

	AMQP struct {
		URL      string `mapstructure:"url" yaml:"-"`
		Exchange string `mapstructure:"exchange" yaml:"exchange"`
		Queue    string `mapstructure:"queue" yaml:"queue"`
	} `mapstructure:"amqp" yaml:"amqp"`

	// Critical-health alert mail
	SMTP struct {
		Host     string `mapstructure:"host" yaml:"host"`
		Port     int    `mapstructure:"port" yaml:"port"`
		Username string `mapstructure:"username" yaml:"username"`
		Password string `mapstructure:"password" yaml:"-"`
		From     string `mapstructure:"from" yaml:"from"`
	} `mapstructure:"smtp" yaml:"smtp"`

	Sheets struct {
		SpreadsheetID string `mapstructure:"spreadsheet_id" yaml:"spreadsheet_id"`
		SheetName     string `mapstructure:"sheet_name" yaml:"sheet_name"`
		CredsFile     string `mapstructure:"credentials_file" yaml:"credentials_file"`
	} `mapstructure:"sheets" yaml:"sheets"`

	Rollover struct {
		Schedule    string `mapstructure:"schedule" yaml:"schedule"`
		Concurrency int    `mapstructure:"concurrency" yaml:"concurrency"`
	} `mapstructure:"rollover" yaml:"rollover"`
}

// Load reads defaults, an optional YAML file and ZOEFINAN_* environment
// variables, in increasing order of precedence. An explicit configFile must
// exist; without one, zoefinan.yaml is looked up in . and $HOME/.zoefinan.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("zoefinan")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.zoefinan")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8081")
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.rate_limit_per_minute", 60)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.sqlite_path", "./data/zoefinan.db")
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.firebase_project", "")
	v.SetDefault("storage.firebase_credentials_file", "")

	v.SetDefault("cache.backend", "lru")
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.max_entries", 500)
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)

	v.SetDefault("auth.provider", "local")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)

	v.SetDefault("amqp.url", "")
	v.SetDefault("amqp.exchange", "zoefinan")
	v.SetDefault("amqp.queue", "ledger_changed")

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "alertas@zoefinan.app")

	v.SetDefault("sheets.spreadsheet_id", "")
	v.SetDefault("sheets.sheet_name", "Resumo")
	v.SetDefault("sheets.credentials_file", "")

	v.SetDefault("rollover.schedule", "0 5 1 * *")
	v.SetDefault("rollover.concurrency", 4)
}

var (
	validStorageBackends = []string{"memory", "sqlite", "postgres", "firestore"}
	validCacheBackends   = []string{"none", "lru", "redis"}
	validAuthProviders   = []string{"local", "firebase"}
)

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var problems []string

	// Validate port
	if port, err := strconv.Atoi(c.Server.Port); err != nil {
		problems = append(problems, fmt.Sprintf("invalid port '%s': must be a number", c.Server.Port))
	} else if port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.Server.RateLimitPerMinute < 1 {
		problems = append(problems, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.Server.RateLimitPerMinute))
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		problems = append(problems, fmt.Sprintf("invalid log level '%s'", c.Log.Level))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		problems = append(problems, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.Log.Format))
	}

	// Validate storage backend
	if !contains(validStorageBackends, c.Storage.Backend) {
		problems = append(problems, fmt.Sprintf("invalid storage backend '%s': must be one of %v", c.Storage.Backend, validStorageBackends))
	}

	switch c.Storage.Backend {
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			problems = append(problems, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.Storage.SQLitePath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						problems = append(problems, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			problems = append(problems, "Postgres DSN is required when using postgres backend")
		} else if u, err := url.Parse(c.Storage.PostgresDSN); err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
			problems = append(problems, "invalid Postgres DSN: must be a postgres:// URL")
		}
	case "firestore":
		if c.Storage.FirebaseProj == "" {
			problems = append(problems, "Firebase project ID is required when using firestore backend")
		}
		if c.Storage.FirebaseCred != "" {
			if _, err := os.Stat(c.Storage.FirebaseCred); os.IsNotExist(err) {
				problems = append(problems, fmt.Sprintf("Firebase credentials file does not exist: %s", c.Storage.FirebaseCred))
			}
		}
	}

	// Validate cache
	if !contains(validCacheBackends, c.Cache.Backend) {
		problems = append(problems, fmt.Sprintf("invalid cache backend '%s': must be one of %v", c.Cache.Backend, validCacheBackends))
	}
	if c.Cache.Backend != "none" && c.Cache.TTL < time.Second {
		problems = append(problems, fmt.Sprintf("invalid cache TTL %v: must be at least 1 second", c.Cache.TTL))
	}
	if c.Cache.Backend == "lru" && c.Cache.MaxEntries < 1 {
		problems = append(problems, fmt.Sprintf("invalid cache size %d: must be at least 1", c.Cache.MaxEntries))
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisAddr == "" {
		problems = append(problems, "Redis address is required when using redis cache")
	}

	// Validate auth
	if !contains(validAuthProviders, c.Auth.Provider) {
		problems = append(problems, fmt.Sprintf("invalid auth provider '%s': must be one of %v", c.Auth.Provider, validAuthProviders))
	}
	if c.Auth.Provider == "local" && len(c.Auth.JWTSecret) < 32 {
		problems = append(problems, "JWT secret must be at least 32 characters when using local auth")
	}
	if c.Auth.Provider == "firebase" && c.Storage.FirebaseProj == "" {
		problems = append(problems, "Firebase project ID is required when using firebase auth")
	}
	if c.Auth.TokenTTL < time.Minute {
		problems = append(problems, fmt.Sprintf("invalid token TTL %v: must be at least 1 minute", c.Auth.TokenTTL))
	}

	// Validate AMQP URL if provided
	if c.AMQP.URL != "" {
		if parsedURL, err := url.Parse(c.AMQP.URL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQP.URL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQP.Exchange == "" {
			problems = append(problems, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQP.Queue == "" {
			problems = append(problems, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Validate SMTP only when alerts are enabled
	if c.SMTP.Host != "" {
		if c.SMTP.Port < 1 || c.SMTP.Port > 65535 {
			problems = append(problems, fmt.Sprintf("invalid SMTP port %d: must be between 1 and 65535", c.SMTP.Port))
		}
		if !strings.Contains(c.SMTP.From, "@") {
			problems = append(problems, fmt.Sprintf("invalid SMTP sender '%s'", c.SMTP.From))
		}
	}

	if c.Sheets.SpreadsheetID != "" && c.Sheets.SheetName == "" {
		problems = append(problems, "sheet name is required when a spreadsheet ID is set")
	}

	// Validate rollover schedule
	if _, err := cron.ParseStandard(c.Rollover.Schedule); err != nil {
		problems = append(problems, fmt.Sprintf("invalid rollover schedule '%s': %v", c.Rollover.Schedule, err))
	}
	if c.Rollover.Concurrency < 1 || c.Rollover.Concurrency > 64 {
		problems = append(problems, fmt.Sprintf("invalid rollover concurrency %d: must be between 1 and 64", c.Rollover.Concurrency))
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(problems, "\n- "))
	}

	return nil
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
