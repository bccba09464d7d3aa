// Package config loads service configuration from an optional TOML file with
// QUOTECACHE_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rl1809/quote-cache/internal/logger"
)

const envPrefix = "QUOTECACHE"

type Config struct {
	Service   ServiceConfig   `mapstructure:"service"`
	HTTP      ListenConfig    `mapstructure:"http"`
	GRPC      ListenConfig    `mapstructure:"grpc"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	MySQL     MySQLConfig     `mapstructure:"mysql"`
	Events    EventsConfig    `mapstructure:"events"`
	Aggregate AggregateConfig `mapstructure:"aggregate"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Logger    logger.Config   `mapstructure:"logger"`
}

type ServiceConfig struct {
	Name string `mapstructure:"name"`
}

type ListenConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type CacheConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	KeyPrefix      string        `mapstructure:"key_prefix"`
	QuoteTTL       time.Duration `mapstructure:"quote_ttl"`
	SnapshotTTL    time.Duration `mapstructure:"snapshot_ttl"`
	OpTimeout      time.Duration `mapstructure:"op_timeout"`
	DedupeInflight bool          `mapstructure:"dedupe_inflight"`
}

type UpstreamConfig struct {
	Kind        string        `mapstructure:"kind"`
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	FixturePath string        `mapstructure:"fixture_path"`
	// breaker opens after this many consecutive failures
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown"`
}

type KafkaConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Brokers        []string      `mapstructure:"brokers"`
	Topic          string        `mapstructure:"topic"`
	GroupID        string        `mapstructure:"group_id"`
	SessionTimeout time.Duration `mapstructure:"session_timeout"`
	MaxRetries     uint          `mapstructure:"max_retries"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff"`
}

type MySQLConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	EnsureSchema    bool          `mapstructure:"ensure_schema"`
}

type EventsConfig struct {
	EnforceOrdering bool `mapstructure:"enforce_ordering"`
}

type AggregateConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

type AdminConfig struct {
	Token string `mapstructure:"token"`
}

// Load reads path (if non-empty) on top of the defaults, then applies
// environment overrides such as QUOTECACHE_REDIS_ADDR.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Service.Name == "" {
		return errors.New("service.name is required")
	}
	if c.Cache.QuoteTTL <= 0 || c.Cache.SnapshotTTL <= 0 {
		return errors.New("cache ttls must be positive")
	}
	if c.Cache.OpTimeout <= 0 {
		return errors.New("cache.op_timeout must be positive")
	}
	switch c.Upstream.Kind {
	case "http":
		if c.Upstream.BaseURL == "" {
			return errors.New("upstream.base_url is required for http upstream")
		}
	case "fixture":
		if c.Upstream.FixturePath == "" {
			return errors.New("upstream.fixture_path is required for fixture upstream")
		}
	default:
		return fmt.Errorf("unknown upstream.kind %q", c.Upstream.Kind)
	}
	if c.Upstream.Timeout <= 0 {
		return errors.New("upstream.timeout must be positive")
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "" || c.Kafka.GroupID == "") {
		return errors.New("kafka.brokers, kafka.topic and kafka.group_id are required when kafka is enabled")
	}
	if c.MySQL.DSN == "" {
		return errors.New("mysql.dsn is required")
	}
	if c.Aggregate.Concurrency <= 0 {
		return errors.New("aggregate.concurrency must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "quote-cache")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.shutdown_timeout", 5*time.Second)
	v.SetDefault("grpc.addr", ":50051")
	v.SetDefault("grpc.shutdown_timeout", 5*time.Second)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 100)
	v.SetDefault("redis.dial_timeout", 2*time.Second)
	v.SetDefault("redis.read_timeout", time.Second)
	v.SetDefault("redis.write_timeout", time.Second)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.key_prefix", "stock_")
	v.SetDefault("cache.quote_ttl", time.Minute)
	v.SetDefault("cache.snapshot_ttl", 15*time.Minute)
	v.SetDefault("cache.op_timeout", 2*time.Second)
	v.SetDefault("cache.dedupe_inflight", false)

	v.SetDefault("upstream.kind", "http")
	v.SetDefault("upstream.base_url", "http://localhost:5001")
	v.SetDefault("upstream.timeout", 5*time.Second)
	v.SetDefault("upstream.fixture_path", "")
	v.SetDefault("upstream.breaker_failures", 5)
	v.SetDefault("upstream.breaker_cooldown", 30*time.Second)

	v.SetDefault("kafka.enabled", true)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "stock.price.updated")
	v.SetDefault("kafka.group_id", "quote-cache")
	v.SetDefault("kafka.session_timeout", 10*time.Second)
	v.SetDefault("kafka.max_retries", 5)
	v.SetDefault("kafka.retry_backoff", 200*time.Millisecond)

	v.SetDefault("mysql.dsn", "root:root@tcp(localhost:3306)/quotecache?parseTime=true&clientFoundRows=true")
	v.SetDefault("mysql.max_open_conns", 50)
	v.SetDefault("mysql.max_idle_conns", 25)
	v.SetDefault("mysql.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("mysql.ensure_schema", false)

	v.SetDefault("events.enforce_ordering", true)
	v.SetDefault("aggregate.concurrency", 8)
	v.SetDefault("admin.token", "")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.file_path", "logs/quote-cache.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 10)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.with_caller", false)
}
