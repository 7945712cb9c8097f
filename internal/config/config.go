package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	App        AppConfig        `yaml:"app"`
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	JWT        JWTConfig        `yaml:"jwt"`
	Oracle     OracleConfig     `yaml:"oracle"`
	Paper      PaperConfig      `yaml:"paper"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	CORS       CORSConfig       `yaml:"cors"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// AppConfig represents application configuration
type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Env     string `yaml:"env"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port           int           `yaml:"port"`
	Host           string        `yaml:"host"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	User           string        `yaml:"user"`
	Password       string        `yaml:"password"`
	DBName         string        `yaml:"dbname"`
	SSLMode        string        `yaml:"sslmode"`
	MaxOpen        int           `yaml:"max_open"`
	MaxIdle        int           `yaml:"max_idle"`
	Timeout        time.Duration `yaml:"timeout"`
	MigrationsPath string        `yaml:"migrations_path"`
}

// RedisConfig represents Redis configuration
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// JWTConfig represents JWT configuration
type JWTConfig struct {
	SecretKey       string        `yaml:"secret_key"`
	Duration        time.Duration `yaml:"duration"`
	RefreshDuration time.Duration `yaml:"refresh_duration"`
}

// OracleConfig selects the price source for the simulation engine.
type OracleConfig struct {
	// Source is one of "static", "live".
	Source string `yaml:"source"`
	// DefaultPrice is returned by the static oracle for unknown symbols.
	DefaultPrice float64            `yaml:"default_price"`
	Prices       map[string]float64 `yaml:"prices"`
	// CacheTTL enables a Redis-backed price cache when > 0.
	CacheTTL time.Duration  `yaml:"cache_ttl"`
	Exchange ExchangeConfig `yaml:"exchange"`
}

// ExchangeConfig represents live exchange connection configuration
type ExchangeConfig struct {
	Name      string `yaml:"name"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	TestNet   bool   `yaml:"testnet"`
}

// PaperConfig represents paper-trading engine configuration
type PaperConfig struct {
	DefaultInitialCash    float64       `yaml:"default_initial_cash"`
	DefaultCommissionRate float64       `yaml:"default_commission_rate"`
	DefaultSlippageRate   float64       `yaml:"default_slippage_rate"`
	RevalueInterval       time.Duration `yaml:"revalue_interval"`
}

// MonitoringConfig represents monitoring configuration
type MonitoringConfig struct {
	PrometheusEnabled bool   `yaml:"prometheus_enabled"`
	PrometheusPath    string `yaml:"prometheus_path"`
}

// CORSConfig represents CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowedMethods   []string `yaml:"allowed_methods"`
	AllowedHeaders   []string `yaml:"allowed_headers"`
	AllowCredentials bool     `yaml:"allow_credentials"`
}

// RateLimitConfig represents rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	LogDir     string `yaml:"log_dir"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Load loads configuration from a YAML file, applying environment overrides.
func Load(filename string) (*Config, error) {
	// .env is optional; real environments set variables directly
	_ = godotenv.Load()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()
	config.applyEnvOverrides()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "papertrade"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8082
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Database.MigrationsPath == "" {
		c.Database.MigrationsPath = "migrations"
	}
	if c.Oracle.Source == "" {
		c.Oracle.Source = "static"
	}
	if c.Oracle.DefaultPrice == 0 {
		c.Oracle.DefaultPrice = 100.0
	}
	if c.Paper.DefaultInitialCash == 0 {
		c.Paper.DefaultInitialCash = 1000000
	}
	if c.Paper.RevalueInterval == 0 {
		c.Paper.RevalueInterval = 5 * time.Second
	}
	if c.JWT.Duration == 0 {
		c.JWT.Duration = 24 * time.Hour
	}
	if c.JWT.RefreshDuration == 0 {
		c.JWT.RefreshDuration = 7 * 24 * time.Hour
	}
	if c.Monitoring.PrometheusPath == "" {
		c.Monitoring.PrometheusPath = "/metrics"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
}

// Validate checks the configuration for obvious misconfiguration.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port out of range: %d", c.Server.Port)
	}
	if c.JWT.SecretKey == "" {
		return fmt.Errorf("jwt secret key is required")
	}
	if c.Paper.DefaultCommissionRate < 0 || c.Paper.DefaultSlippageRate < 0 {
		return fmt.Errorf("commission and slippage rates must be non-negative")
	}
	switch c.Oracle.Source {
	case "static", "live":
	default:
		return fmt.Errorf("unknown oracle source: %s", c.Oracle.Source)
	}
	return nil
}
