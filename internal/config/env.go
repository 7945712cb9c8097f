package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const envPrefix = "PAPERTRADE_"

// envString gets a string environment variable with the application prefix.
func envString(key, defaultValue string) string {
	value := os.Getenv(envPrefix + strings.ToUpper(key))
	if value == "" {
		return defaultValue
	}
	return value
}

// envInt gets an integer environment variable
func envInt(key string, defaultValue int) int {
	value := envString(key, "")
	if value == "" {
		return defaultValue
	}
	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}
	return defaultValue
}

// envFloat gets a float environment variable
func envFloat(key string, defaultValue float64) float64 {
	value := envString(key, "")
	if value == "" {
		return defaultValue
	}
	if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
		return floatValue
	}
	return defaultValue
}

// envBool gets a boolean environment variable
func envBool(key string, defaultValue bool) bool {
	value := envString(key, "")
	if value == "" {
		return defaultValue
	}
	if boolValue, err := strconv.ParseBool(value); err == nil {
		return boolValue
	}
	return defaultValue
}

// envDuration gets a duration environment variable
func envDuration(key string, defaultValue time.Duration) time.Duration {
	value := envString(key, "")
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	return defaultValue
}

// applyEnvOverrides lets deploy environments override file configuration
// without editing the YAML. Secrets in particular come from the environment.
func (c *Config) applyEnvOverrides() {
	c.App.Env = envString("ENV", c.App.Env)

	c.Server.Host = envString("SERVER_HOST", c.Server.Host)
	c.Server.Port = envInt("SERVER_PORT", c.Server.Port)

	c.Database.Host = envString("DB_HOST", c.Database.Host)
	c.Database.Port = envInt("DB_PORT", c.Database.Port)
	c.Database.User = envString("DB_USER", c.Database.User)
	c.Database.Password = envString("DB_PASSWORD", c.Database.Password)
	c.Database.DBName = envString("DB_NAME", c.Database.DBName)
	c.Database.SSLMode = envString("DB_SSLMODE", c.Database.SSLMode)

	c.Redis.Enabled = envBool("REDIS_ENABLED", c.Redis.Enabled)
	c.Redis.Addr = envString("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = envString("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = envInt("REDIS_DB", c.Redis.DB)

	c.JWT.SecretKey = envString("JWT_SECRET", c.JWT.SecretKey)
	c.JWT.Duration = envDuration("JWT_DURATION", c.JWT.Duration)

	c.Oracle.Source = envString("ORACLE_SOURCE", c.Oracle.Source)
	c.Oracle.Exchange.APIKey = envString("EXCHANGE_API_KEY", c.Oracle.Exchange.APIKey)
	c.Oracle.Exchange.APISecret = envString("EXCHANGE_API_SECRET", c.Oracle.Exchange.APISecret)
	c.Oracle.Exchange.TestNet = envBool("EXCHANGE_TESTNET", c.Oracle.Exchange.TestNet)

	c.Paper.DefaultCommissionRate = envFloat("DEFAULT_COMMISSION_RATE", c.Paper.DefaultCommissionRate)
	c.Paper.DefaultSlippageRate = envFloat("DEFAULT_SLIPPAGE_RATE", c.Paper.DefaultSlippageRate)

	c.Logging.Level = envString("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = envString("LOG_FORMAT", c.Logging.Format)
}
