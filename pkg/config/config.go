package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// PollerSettings drives one source's poll loop.
type PollerSettings struct {
	Enabled     bool          `yaml:"enabled"`
	Interval    time.Duration `yaml:"interval"`
	Jitter      float64       `yaml:"jitter"`
	DetailDelay time.Duration `yaml:"detail_delay"`
	PostDelay   time.Duration `yaml:"post_delay"`
	QueryDelay  time.Duration `yaml:"query_delay"`
}

type Config struct {
	Environment string `yaml:"environment"`
	Logger      struct {
		Level      string `yaml:"level"`
		Format     string `yaml:"format"`
		Output     string `yaml:"output"`
		TimeFormat string `yaml:"time_format"`
	} `yaml:"logger"`
	Server struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		RateLimit       struct {
			Capacity     float64 `yaml:"capacity"`
			RefillPerSec float64 `yaml:"refill_per_sec"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"metrics"`
	Poller struct {
		Big   PollerSettings `yaml:"big"`
		Small PollerSettings `yaml:"small"`
	} `yaml:"poller"`
	Scheduler struct {
		BidTimeout  time.Duration `yaml:"bid_timeout"`
		DefaultLead time.Duration `yaml:"default_lead"`
		Overbid     struct {
			Enabled   bool    `yaml:"enabled"`
			Increment float64 `yaml:"increment"`
			MaxOver   float64 `yaml:"max_over"`
		} `yaml:"overbid"`
	} `yaml:"scheduler"`
	Marketplaces struct {
		Big struct {
			BaseURL       string        `yaml:"base_url"`
			ItemURL       string        `yaml:"item_url"`
			UserURL       string        `yaml:"user_url"`
			AuthToken     string        `yaml:"auth_token"`
			AppID         string        `yaml:"app_id"`
			MarketplaceID string        `yaml:"marketplace_id"`
			Currency      string        `yaml:"currency"`
			Timeout       time.Duration `yaml:"timeout"`
		} `yaml:"big"`
		Small struct {
			BaseURL  string        `yaml:"base_url"`
			AppKey   string        `yaml:"app_key"`
			BasicKey string        `yaml:"basic_key"`
			Currency string        `yaml:"currency"`
			Timeout  time.Duration `yaml:"timeout"`
		} `yaml:"small"`
	} `yaml:"marketplaces"`
	Storage struct {
		Type string `yaml:"type"`
		Path string `yaml:"path"`
	} `yaml:"storage"`
	Redis struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
	Notifier struct {
		WriteTimeout time.Duration `yaml:"write_timeout"`
		PingInterval time.Duration `yaml:"ping_interval"`
		BufferSize   int           `yaml:"buffer_size"`
	} `yaml:"notifier"`
	Kafka struct {
		Enabled       bool     `yaml:"enabled"`
		Brokers       []string `yaml:"brokers"`
		EventsTopic   string   `yaml:"events_topic"`
		CommandsTopic string   `yaml:"commands_topic"`
		RequiredAcks  int      `yaml:"required_acks"`
		Compression   string   `yaml:"compression"`
		Producer      struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID     string        `yaml:"group_id"`
			Workers     int           `yaml:"workers"`
			BufferSize  int           `yaml:"buffer_size"`
			RetryMax    int           `yaml:"retry_max"`
			BackoffMin  time.Duration `yaml:"backoff_min"`
			BackoffMax  time.Duration `yaml:"backoff_max"`
			DLQTopic    string        `yaml:"dlq_topic"`
			MinBytes    int           `yaml:"min_bytes"`
			MaxBytes    int           `yaml:"max_bytes"`
			StartOffset string        `yaml:"start_offset"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Archive struct {
		Type string `yaml:"type"`
	} `yaml:"archive"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Postgres struct {
		DSN        string `yaml:"dsn"`
		MaxConns   int    `yaml:"max_conns"`
		Schema     string `yaml:"schema"`
		ViaBouncer bool   `yaml:"via_bouncer"`
	} `yaml:"postgres"`
}

// envOverrides lists what may come from the environment (or a .env file).
type envOverrides struct {
	Environment    string   `envconfig:"ENVIRONMENT"`
	LogLevel       string   `envconfig:"LOG_LEVEL"`
	ServerPort     int      `envconfig:"SERVER_PORT"`
	BigAuthToken   string   `envconfig:"BIG_AUTH_TOKEN"`
	BigAppID       string   `envconfig:"BIG_APP_ID"`
	SmallAppKey    string   `envconfig:"SMALL_APP_KEY"`
	SmallBasicKey  string   `envconfig:"SMALL_BASIC_KEY"`
	StorageType    string   `envconfig:"STORAGE_TYPE"`
	StoragePath    string   `envconfig:"STORAGE_PATH"`
	RedisPassword  string   `envconfig:"REDIS_PASSWORD"`
	KafkaBrokers   []string `envconfig:"KAFKA_BROKERS"`
	ArchiveType    string   `envconfig:"ARCHIVE_TYPE"`
	PostgresDSN    string   `envconfig:"POSTGRES_DSN"`
	ClickHousePass string   `envconfig:"CLICKHOUSE_PASSWORD"`
}

// EnvPrefix namespaces environment overrides, e.g. MARKETPULL_BIG_AUTH_TOKEN.
const EnvPrefix = "MARKETPULL"

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

// LoadWithEnv loads config from YAML and overrides it with environment
// variables. A .env file in the working directory is read first if present.
func LoadWithEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	c.applyEnv(&env)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(env *envOverrides) {
	setString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setString(&c.Environment, env.Environment)
	setString(&c.Logger.Level, env.LogLevel)
	setString(&c.Marketplaces.Big.AuthToken, env.BigAuthToken)
	setString(&c.Marketplaces.Big.AppID, env.BigAppID)
	setString(&c.Marketplaces.Small.AppKey, env.SmallAppKey)
	setString(&c.Marketplaces.Small.BasicKey, env.SmallBasicKey)
	setString(&c.Storage.Type, env.StorageType)
	setString(&c.Storage.Path, env.StoragePath)
	setString(&c.Redis.Password, env.RedisPassword)
	setString(&c.Archive.Type, env.ArchiveType)
	setString(&c.Postgres.DSN, env.PostgresDSN)
	setString(&c.ClickHouse.Password, env.ClickHousePass)
	if env.ServerPort > 0 {
		c.Server.Port = env.ServerPort
	}
	if len(env.KafkaBrokers) > 0 {
		c.Kafka.Brokers = env.KafkaBrokers
	}
}

// Default returns the baseline configuration that YAML values override.
func Default() *Config {
	c := &Config{Environment: "development"}
	c.Logger.Level = "info"
	c.Logger.Format = "console"
	c.Logger.Output = "stdout"
	c.Server.Port = 8080
	c.Server.ReadTimeout = 10 * time.Second
	c.Server.WriteTimeout = 10 * time.Second
	c.Server.ShutdownTimeout = 10 * time.Second
	c.Server.RateLimit.Capacity = 10
	c.Server.RateLimit.RefillPerSec = 1
	c.Metrics.Enabled = true

	c.Poller.Big = PollerSettings{
		Enabled:     true,
		Interval:    120 * time.Second,
		Jitter:      0.5,
		DetailDelay: 5 * time.Second,
		PostDelay:   500 * time.Millisecond,
		QueryDelay:  2 * time.Second,
	}
	c.Poller.Small = c.Poller.Big
	c.Poller.Small.Interval = 60 * time.Second

	c.Scheduler.BidTimeout = 15 * time.Second
	c.Scheduler.DefaultLead = 2 * time.Second
	c.Scheduler.Overbid.Increment = 2

	c.Marketplaces.Big.Currency = "EUR"
	c.Marketplaces.Big.Timeout = 20 * time.Second
	c.Marketplaces.Small.Currency = "EUR"
	c.Marketplaces.Small.Timeout = 20 * time.Second

	c.Storage.Type = "file"
	c.Storage.Path = "data/state.json"
	c.Redis.Host = "localhost"
	c.Redis.Port = 6379
	c.Redis.Prefix = "marketpull"
	c.Notifier.WriteTimeout = 10 * time.Second
	c.Notifier.PingInterval = 30 * time.Second
	c.Notifier.BufferSize = 256
	c.Kafka.Consumer.StartOffset = "latest"
	c.Archive.Type = "none"
	c.Postgres.MaxConns = 4
	c.Postgres.Schema = "public"
	return c
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	switch c.Storage.Type {
	case "file", "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for storage.type '%s'", c.Storage.Type)
		}
	case "redis":
		if c.Redis.Host == "" {
			return fmt.Errorf("redis.host is required for storage.type 'redis'")
		}
	default:
		return fmt.Errorf("storage.type must be 'file', 'sqlite' or 'redis', got '%s'", c.Storage.Type)
	}
	switch c.Archive.Type {
	case "", "none":
	case "clickhouse":
		if c.ClickHouse.Host == "" {
			return fmt.Errorf("clickhouse.host is required for archive.type 'clickhouse'")
		}
	case "postgres":
		if c.Postgres.DSN == "" {
			return fmt.Errorf("postgres.dsn is required for archive.type 'postgres'")
		}
	default:
		return fmt.Errorf("archive.type must be 'none', 'clickhouse' or 'postgres', got '%s'", c.Archive.Type)
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
		}
		if c.Kafka.EventsTopic == "" && c.Kafka.CommandsTopic == "" {
			return fmt.Errorf("kafka needs events_topic or commands_topic")
		}
	}
	for name, p := range map[string]PollerSettings{"big": c.Poller.Big, "small": c.Poller.Small} {
		if !p.Enabled {
			continue
		}
		if p.Interval <= 0 {
			return fmt.Errorf("poller.%s.interval must be positive", name)
		}
		if p.Jitter < 0 || p.Jitter >= 1 {
			return fmt.Errorf("poller.%s.jitter must be in [0, 1), got %v", name, p.Jitter)
		}
	}
	if c.Poller.Big.Enabled && strings.TrimSpace(c.Marketplaces.Big.BaseURL) == "" {
		return fmt.Errorf("marketplaces.big.base_url is required")
	}
	if c.Poller.Small.Enabled && strings.TrimSpace(c.Marketplaces.Small.BaseURL) == "" {
		return fmt.Errorf("marketplaces.small.base_url is required")
	}
	if c.Scheduler.BidTimeout <= 0 {
		return fmt.Errorf("scheduler.bid_timeout must be positive")
	}
	if c.Scheduler.Overbid.Enabled && c.Scheduler.Overbid.Increment <= 0 {
		return fmt.Errorf("scheduler.overbid.increment must be positive when overbid is enabled")
	}
	return nil
}
