// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const envPrefix = "EXPORT_"

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port           int           `yaml:"port" env:"PORT"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	JWTSecret      string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	CronSecret     string        `yaml:"cron_secret" env:"CRON_SECRET"`
}

type LogConfig struct {
	Level    string `yaml:"level" env:"LEVEL"`       // trace|debug|info|warn|error
	Format   string `yaml:"format" env:"FORMAT"`     // json|console
	Sampling bool   `yaml:"sampling" env:"SAMPLING"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url" env:"URL"`
	MaxConns int32  `yaml:"max_conns" env:"MAX_CONNS"`
}

type RedisConfig struct {
	URL         string        `yaml:"url" env:"URL"`
	Password    string        `yaml:"password" env:"PASSWORD"`
	DB          int           `yaml:"db" env:"DB"`
	ArtifactTTL time.Duration `yaml:"artifact_ttl" env:"ARTIFACT_TTL"` // 0 keeps artifacts forever
	LockTTL     time.Duration `yaml:"lock_ttl" env:"LOCK_TTL"`
}

type InstanceConfig struct {
	Domain        string `yaml:"domain" env:"DOMAIN"`
	PublicBaseURL string `yaml:"public_base_url" env:"PUBLIC_BASE_URL"`
}

type ExportConfig struct {
	BatchSize          int           `yaml:"batch_size" env:"BATCH_SIZE"`
	DefaultMaxAttempts int           `yaml:"default_max_attempts" env:"DEFAULT_MAX_ATTEMPTS"`
	BaseDelay          time.Duration `yaml:"base_delay" env:"BASE_DELAY"`
	MaxDelay           time.Duration `yaml:"max_delay" env:"MAX_DELAY"`
	Concurrency        int           `yaml:"concurrency" env:"CONCURRENCY"`
	StaleAfter         time.Duration `yaml:"stale_after" env:"STALE_AFTER"`
	Formats            []string      `yaml:"formats" env:"FORMATS"`
	EnqueueLimit       int           `yaml:"enqueue_limit" env:"ENQUEUE_LIMIT"`
	EnqueueWindow      time.Duration `yaml:"enqueue_window" env:"ENQUEUE_WINDOW"`
}

type SchedulerConfig struct {
	Enabled  bool          `yaml:"enabled" env:"ENABLED"`
	Interval time.Duration `yaml:"interval" env:"INTERVAL"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers" env:"BROKERS"`
	Topic   string   `yaml:"topic" env:"TOPIC"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Log       LogConfig       `yaml:"log" envPrefix:"LOG_"`
	Database  DatabaseConfig  `yaml:"database" envPrefix:"DATABASE_"`
	Redis     RedisConfig     `yaml:"redis" envPrefix:"REDIS_"`
	Instance  InstanceConfig  `yaml:"instance" envPrefix:"INSTANCE_"`
	Export    ExportConfig    `yaml:"export" envPrefix:"EXPORT_"`
	Scheduler SchedulerConfig `yaml:"scheduler" envPrefix:"SCHEDULER_"`
	Kafka     KafkaConfig     `yaml:"kafka" envPrefix:"KAFKA_"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig parses --config and --dev from args and loads the file they point at.
func LoadConfig(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("config", pflag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "path to config yaml")
	dev := fs.Bool("dev", false, "development mode")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}
	return Load(*configPath, *dev)
}

// Load reads the YAML file at path, applies EXPORT_* environment overrides,
// fills defaults and validates the result. A missing file is allowed when the
// environment carries every required key.
func Load(path string, dev bool) (*Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeout <= 0 {
		cfg.Server.RequestTimeout = 30 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Redis.LockTTL <= 0 {
		cfg.Redis.LockTTL = 5 * time.Minute
	}
	cfg.Instance.Domain = strings.ToLower(strings.TrimSpace(cfg.Instance.Domain))
	if cfg.Instance.PublicBaseURL == "" && cfg.Instance.Domain != "" {
		cfg.Instance.PublicBaseURL = "https://" + cfg.Instance.Domain
	}
	if cfg.Export.BatchSize <= 0 {
		cfg.Export.BatchSize = 5
	}
	if cfg.Export.DefaultMaxAttempts <= 0 {
		cfg.Export.DefaultMaxAttempts = 3
	}
	if cfg.Export.BaseDelay <= 0 {
		cfg.Export.BaseDelay = time.Minute
	}
	if cfg.Export.MaxDelay <= 0 {
		cfg.Export.MaxDelay = 30 * time.Minute
	}
	if cfg.Export.Concurrency <= 0 {
		cfg.Export.Concurrency = 1
	}
	if cfg.Export.StaleAfter <= 0 {
		cfg.Export.StaleAfter = 15 * time.Minute
	}
	if len(cfg.Export.Formats) == 0 {
		cfg.Export.Formats = []string{"json", "activitypub"}
	}
	if cfg.Export.EnqueueWindow <= 0 {
		cfg.Export.EnqueueWindow = time.Hour
	}
	if cfg.Scheduler.Interval <= 0 {
		cfg.Scheduler.Interval = time.Minute
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "export.lifecycle"
	}
}

// Validate checks required keys and value ranges.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if c.Instance.Domain == "" {
		return errors.New("instance.domain is required")
	}
	if c.Server.JWTSecret == "" {
		return errors.New("server.jwt_secret is required")
	}
	if c.Export.DefaultMaxAttempts > 10 {
		return fmt.Errorf("export.default_max_attempts must be between 1 and 10, got %d", c.Export.DefaultMaxAttempts)
	}
	for _, f := range c.Export.Formats {
		if f != "json" && f != "activitypub" {
			return fmt.Errorf("export.formats: unknown format %q", f)
		}
	}
	return nil
}
