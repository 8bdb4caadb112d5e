package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the vibeops service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Payouts   PayoutConfig    `mapstructure:"payouts"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Realtime  RealtimeConfig  `mapstructure:"realtime"`
	Search    SearchConfig    `mapstructure:"search"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
	Env      string `mapstructure:"env"` // dev, prod
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address        string        `mapstructure:"address"`
	JWTSecret      string        `mapstructure:"jwt_secret"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	MigrationsDir  string        `mapstructure:"migrations_dir"`
	AutoMigrate    bool          `mapstructure:"auto_migrate"`
}

// Validate checks the server section.
func (s ServerConfig) Validate() error {
	if strings.TrimSpace(s.JWTSecret) == "" {
		return fmt.Errorf("server.jwt_secret required")
	}
	if s.TokenTTL < 0 {
		return fmt.Errorf("server.token_ttl cannot be negative")
	}
	return nil
}

// TelemetryConfig contains metrics settings
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
}

func (t TelemetryConfig) Validate() error {
	if t.Enabled && !strings.HasPrefix(t.MetricsPath, "/") {
		return fmt.Errorf("telemetry.metrics_path must start with / when telemetry is enabled")
	}
	return nil
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.Port) == "" {
		return fmt.Errorf("storage.postgres.port required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN builds a postgres connection string from the discrete fields unless URL is set.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres configuration incomplete: host/dbname required")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

// RealtimeConfig controls the ops broadcast channels.
type RealtimeConfig struct {
	ChannelPrefix string `mapstructure:"channel_prefix"`
	Stream        string `mapstructure:"stream"`
	StreamMaxLen  int64  `mapstructure:"stream_max_len"`
	Group         string `mapstructure:"group"`
	Dispatch      bool   `mapstructure:"dispatch"` // run the stream dispatcher inside serve
}

// Normalize applies defaults for unset realtime values.
func (c RealtimeConfig) Normalize() RealtimeConfig {
	if strings.TrimSpace(c.ChannelPrefix) == "" {
		c.ChannelPrefix = "ops:user:"
	}
	if strings.TrimSpace(c.Stream) == "" {
		c.Stream = "ops.events"
	}
	if c.StreamMaxLen <= 0 {
		c.StreamMaxLen = 100000
	}
	if strings.TrimSpace(c.Group) == "" {
		c.Group = "ops-dispatcher"
	}
	return c
}

// SearchConfig controls the moderation search index.
type SearchConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	IndexPath string `mapstructure:"index_path"` // empty keeps the index in memory
	MaxHits   int    `mapstructure:"max_hits"`
}

// Normalize applies defaults for unset search values.
func (c SearchConfig) Normalize() SearchConfig {
	if c.MaxHits <= 0 {
		c.MaxHits = 50
	}
	c.IndexPath = strings.TrimSpace(c.IndexPath)
	return c
}

// LoadConfig loads config from file and VIBEOPS_* environment variables.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("json")   // REQUIRED if the config file does not have the extension in the name
	setDefaults(v)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		v.AddConfigPath(exeDir)
		v.AddConfigPath(filepath.Join(exeDir, ".."))
		v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("VIBEOPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv() // read in environment variables that match (VIBEOPS_*)

	if err := v.ReadInConfig(); err != nil {
		// env-only deployments are fine; an explicit path that cannot be read is not
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.env", "dev")
	v.SetDefault("server.address", ":10001")
	v.SetDefault("server.token_ttl", 24*time.Hour)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.migrations_dir", "file://migrations")
	v.SetDefault("server.auto_migrate", true)
	// empty defaults register the keys so AutomaticEnv can fill them on Unmarshal
	for _, key := range []string{
		"server.jwt_secret",
		"storage.redis.host", "storage.redis.password",
		"storage.postgres.url", "storage.postgres.host", "storage.postgres.user",
		"storage.postgres.password", "storage.postgres.dbname",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("storage.redis.port", "6379")
	v.SetDefault("storage.redis.timeout", 5*time.Second)
	v.SetDefault("storage.postgres.port", "5432")
	v.SetDefault("storage.postgres.sslmode", "disable")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.metrics_path", "/metrics")
	v.SetDefault("feed.page_size", DefaultPageSize)
	v.SetDefault("feed.candidate_limit", 500)
	v.SetDefault("feed.freshness_half_life", 48*time.Hour)
	v.SetDefault("feed.mutual_saturation", 5)
	v.SetDefault("feed.config_cache_ttl", 30*time.Second)
	v.SetDefault("payouts.min_coin_amount", 100)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.tick", time.Minute)
	v.SetDefault("scheduler.lock_ttl", 2*time.Minute)
	v.SetDefault("scheduler.jobs.activate_scheduled_configs", "* * * * *")
	v.SetDefault("scheduler.jobs.reconcile_balances", "0 * * * *")
	v.SetDefault("scheduler.jobs.reindex_search", "*/15 * * * *")
	v.SetDefault("scheduler.jobs.prune_idempotency", "30 3 * * *")
	v.SetDefault("realtime.dispatch", true)
	v.SetDefault("search.enabled", true)
}

func (c *Config) normalize() {
	c.Feed = c.Feed.Normalize()
	c.Payouts = c.Payouts.Normalize()
	c.Scheduler = c.Scheduler.Normalize()
	c.Realtime = c.Realtime.Normalize()
	c.Search = c.Search.Normalize()
	if c.Server.TokenTTL == 0 {
		c.Server.TokenTTL = 24 * time.Hour
	}
	if c.Server.MigrationsDir == "" {
		c.Server.MigrationsDir = "file://migrations"
	}
}

// Validate runs every section validator.
func (c *Config) Validate() error {
	validators := []func() error{
		c.Server.Validate,
		c.Telemetry.Validate,
		c.Storage.Redis.Validate,
		c.Storage.Postgres.Validate,
		c.Feed.Validate,
		c.Payouts.Validate,
		c.Scheduler.Validate,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}
