package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	Log         LogConfig         `mapstructure:"log"`
	Mint        MintConfig        `mapstructure:"mint"`
	Generator   GeneratorConfig   `mapstructure:"generator"`
	Signing     SigningConfig     `mapstructure:"signing"`
	Supply      SupplyConfig      `mapstructure:"supply"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // debug, release, test
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// JWTConfig configures owner bearer tokens. An empty secret disables owner auth.
type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // trace, debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// MintConfig tunes the credit mint flow.
type MintConfig struct {
	DefaultBalance    int64         `mapstructure:"default_balance"`
	DefaultPrice      int64         `mapstructure:"default_price"`
	GenerationTimeout time.Duration `mapstructure:"generation_timeout"`
	CollectionID      string        `mapstructure:"collection_id"`
	Chain             string        `mapstructure:"chain"`
}

// GeneratorConfig selects and configures the artifact generator.
type GeneratorConfig struct {
	Provider string `mapstructure:"provider"` // gemini, static
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
	BaseURL  string `mapstructure:"base_url"`
}

// SigningConfig configures signed service-to-service requests.
type SigningConfig struct {
	Secret         string        `mapstructure:"secret"`
	MaxSkew        time.Duration `mapstructure:"max_skew"`
	AllowedCallers []string      `mapstructure:"allowed_callers"`
}

// SupplyConfig configures the supply-capped mint.
type SupplyConfig struct {
	CounterID string `mapstructure:"counter_id"`
	Cap       int64  `mapstructure:"cap"`
}

type IdempotencyConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: CME_.
// Nested keys use underscore: CME_DATABASE_HOST, CME_SIGNING_SECRET, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "credit_mint")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "credit-mint-engine")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("mint.default_balance", 0)
	v.SetDefault("mint.default_price", 0)
	v.SetDefault("mint.generation_timeout", "60s")
	v.SetDefault("mint.collection_id", "GENESIS_01")
	v.SetDefault("mint.chain", "INTERNAL")
	v.SetDefault("generator.provider", "gemini")
	v.SetDefault("generator.api_key", "")
	v.SetDefault("generator.model", "gemini-3-pro-image-preview")
	v.SetDefault("generator.base_url", "https://generativelanguage.googleapis.com/")
	v.SetDefault("signing.secret", "")
	v.SetDefault("signing.max_skew", "120s")
	v.SetDefault("signing.allowed_callers", []string{})
	v.SetDefault("supply.counter_id", "UTILITY_COIN_PHASE_I")
	v.SetDefault("supply.cap", 0)
	v.SetDefault("idempotency.cache_ttl", "24h")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("CME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Env vars alone are enough; a missing file is not an error.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects values the mint flow cannot run with. Missing secrets are
// not rejected here; the operations that need them report CONFIG_MISSING.
func (c *Config) Validate() error {
	if c.Mint.DefaultBalance < 0 {
		return fmt.Errorf("mint.default_balance must be >= 0, got %d", c.Mint.DefaultBalance)
	}
	if c.Mint.DefaultPrice < 0 {
		return fmt.Errorf("mint.default_price must be >= 0, got %d", c.Mint.DefaultPrice)
	}
	if c.Mint.GenerationTimeout <= 0 {
		return fmt.Errorf("mint.generation_timeout must be positive")
	}
	if c.Signing.MaxSkew <= 0 {
		return fmt.Errorf("signing.max_skew must be positive")
	}
	if c.Supply.Cap < 0 {
		return fmt.Errorf("supply.cap must be >= 0, got %d", c.Supply.Cap)
	}
	switch c.Generator.Provider {
	case "gemini", "static":
	default:
		return fmt.Errorf("generator.provider must be gemini or static, got %q", c.Generator.Provider)
	}
	return nil
}
