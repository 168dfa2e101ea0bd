package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all configuration
type Config struct {
	Server         ServerConfig   `mapstructure:"server"`
	Redis          RedisConfig    `mapstructure:"redis"`
	Database       DatabaseConfig `mapstructure:"database"`
	Upstream       UpstreamConfig `mapstructure:"upstream"`
	Cache          CacheConfig    `mapstructure:"cache"`
	Render         RenderConfig   `mapstructure:"render"`
	Links          LinksConfig    `mapstructure:"links"`
	ExclusionsFile string         `mapstructure:"exclusions_file"`
	LogLevel       string         `mapstructure:"log_level" validate:"omitempty,oneof=trace debug info warn warning error"`
	Metrics        MetricsConfig  `mapstructure:"metrics"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port          int           `mapstructure:"port" validate:"required,min=1,max=65535"`
	AdminPort     int           `mapstructure:"admin_port" validate:"omitempty,min=1,max=65535,nefield=Port"`
	OriginURL     string        `mapstructure:"origin_url" validate:"required,url"`
	OriginTimeout time.Duration `mapstructure:"origin_timeout" validate:"gt=0"`
	SiteURL       string        `mapstructure:"site_url" validate:"required,url"`
	LoopbackURL   string        `mapstructure:"loopback_url" validate:"omitempty,url"`
}

// RedisConfig holds the shared cache store. An empty host keeps the cache in process.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DatabaseConfig holds the postgres connection used for page overrides
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host" validate:"required_if=Enabled true"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname" validate:"required_if=Enabled true"`
	SSLMode  string `mapstructure:"sslmode"`
}

// UpstreamConfig describes the suggestion API
type UpstreamConfig struct {
	URL     string        `mapstructure:"url" validate:"required,url"`
	SiteID  string        `mapstructure:"site_id" validate:"required"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

type CacheConfig struct {
	PositiveTTL        time.Duration `mapstructure:"positive_ttl" validate:"gt=0"`
	NegativeTTL        time.Duration `mapstructure:"negative_ttl" validate:"gt=0"`
	StaleTTL           time.Duration `mapstructure:"stale_ttl" validate:"gtfield=PositiveTTL"`
	LockTTL            time.Duration `mapstructure:"lock_ttl" validate:"gt=0"`
	LockWait           time.Duration `mapstructure:"lock_wait" validate:"gte=0"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute" validate:"gt=0"`
}

type RenderConfig struct {
	// Method is "auto" or "http"; "http" forces the loopback strategy.
	Method              string        `mapstructure:"method" validate:"oneof=auto http"`
	MaxBufferDepth      int           `mapstructure:"max_buffer_depth" validate:"gt=0"`
	MinMemoryHeadroomMB int           `mapstructure:"min_memory_headroom_mb" validate:"gte=0"`
	LoopbackTimeout     time.Duration `mapstructure:"loopback_timeout" validate:"gt=0"`
	MinDocumentBytes    int           `mapstructure:"min_document_bytes" validate:"gte=0"`
	AdminPaths          []string      `mapstructure:"admin_paths"`
	APIPaths            []string      `mapstructure:"api_paths"`
	HTTPOnlyPaths       []string      `mapstructure:"http_only_paths"`
	MultiViewAttribute  string        `mapstructure:"multi_view_attribute"`
}

type LinksConfig struct {
	NoFollowExternal bool `mapstructure:"nofollow_external"`
	NewTabExternal   bool `mapstructure:"new_tab_external"`
}

type MetricsConfig struct {
	EnableRuntime bool `mapstructure:"enable_runtime"`
}

var validate = validator.New()

// Load reads config.yaml from the given directories (plus ".", "./config"
// and $CONFIG_PATH), applies SEOGW_* environment overrides and validates the result.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		v.AddConfigPath(p)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("SEOGW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// LoopbackBase returns where internal fetches are sent.
func (c *Config) LoopbackBase() string {
	if c.Server.LoopbackURL != "" {
		return c.Server.LoopbackURL
	}
	return fmt.Sprintf("http://127.0.0.1:%d", c.Server.Port)
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.admin_port", 8081)
	v.SetDefault("server.origin_url", "http://127.0.0.1:3000")
	v.SetDefault("server.origin_timeout", 30*time.Second)
	v.SetDefault("server.site_url", "http://localhost:8080")
	v.SetDefault("server.loopback_url", "")

	v.SetDefault("redis.host", "")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "seo_gateway")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("upstream.url", "")
	v.SetDefault("upstream.site_id", "")
	v.SetDefault("upstream.api_key", "")
	v.SetDefault("upstream.timeout", 3*time.Second)

	v.SetDefault("cache.positive_ttl", 24*time.Hour)
	v.SetDefault("cache.negative_ttl", 10*time.Minute)
	v.SetDefault("cache.stale_ttl", 7*24*time.Hour)
	v.SetDefault("cache.lock_ttl", 10*time.Second)
	v.SetDefault("cache.lock_wait", 300*time.Millisecond)
	v.SetDefault("cache.rate_limit_per_minute", 60)

	v.SetDefault("render.method", "auto")
	v.SetDefault("render.max_buffer_depth", 5)
	v.SetDefault("render.min_memory_headroom_mb", 16)
	v.SetDefault("render.loopback_timeout", 15*time.Second)
	v.SetDefault("render.min_document_bytes", 255)
	v.SetDefault("render.admin_paths", []string{"/admin", "/wp-admin", "/wp-login.php"})
	v.SetDefault("render.api_paths", []string{"/api/", "/wp-json/", "/graphql"})
	v.SetDefault("render.http_only_paths", []string{})
	v.SetDefault("render.multi_view_attribute", "data-views")

	v.SetDefault("exclusions_file", "")

	v.SetDefault("links.nofollow_external", false)
	v.SetDefault("links.new_tab_external", false)

	v.SetDefault("log_level", "info")
	v.SetDefault("metrics.enable_runtime", true)
}
