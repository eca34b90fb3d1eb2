package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

// Config holds all configuration
type Config struct {
	MySQL        MySQLConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Migrate      bool
	HTTPAddr     string
	Mendix       MendixConfig
	ActionWorker ActionWorkerConfig
	Notifier     NotifierConfig
}

// MySQLConfig holds MySQL configuration
type MySQLConfig struct {
	DSN string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret        string
	ExpireMinutes int
	Issuer        string
}

// MendixConfig holds Mendix Deploy API configuration
type MendixConfig struct {
	BaseURL    string
	TimeoutSec int
}

// ActionWorkerConfig holds cloud-action worker configuration
type ActionWorkerConfig struct {
	Enabled     bool
	IntervalSec int
	BatchSize   int
	BudgetSec   int
	LeaseTTLSec int
	EnvLockSec  int
}

// NotifierConfig holds terminal-state notification configuration
type NotifierConfig struct {
	Enabled    bool
	WebhookURL string
	TimeoutSec int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		MySQL: MySQLConfig{
			DSN: getEnv("MYSQL_DSN", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASS", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:        os.Getenv("JWT_SECRET"),
			ExpireMinutes: getEnvInt("JWT_EXPIRE_MINUTES", 1440),
			Issuer:        getEnv("JWT_ISSUER", "mxops"),
		},
		Migrate:  getEnv("MIGRATE", "0") == "1",
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		Mendix: MendixConfig{
			BaseURL:    getEnv("MENDIX_API_BASE_URL", ""),
			TimeoutSec: getEnvInt("MENDIX_API_TIMEOUT_SEC", 60),
		},
		ActionWorker: ActionWorkerConfig{
			Enabled:     getEnv("ACTION_WORKER_ENABLED", "1") == "1",
			IntervalSec: getEnvInt("ACTION_WORKER_INTERVAL_SEC", 15),
			BatchSize:   getEnvInt("ACTION_WORKER_BATCH_SIZE", 10),
			BudgetSec:   getEnvInt("ACTION_WORKER_BUDGET_SEC", 90),
			LeaseTTLSec: getEnvInt("ACTION_WORKER_LEASE_TTL_SEC", 120),
			EnvLockSec:  getEnvInt("ACTION_WORKER_ENV_LOCK_SEC", 120),
		},
		Notifier: NotifierConfig{
			Enabled:    getEnv("NOTIFIER_ENABLED", "0") == "1",
			WebhookURL: getEnv("NOTIFIER_WEBHOOK_URL", ""),
			TimeoutSec: getEnvInt("NOTIFIER_TIMEOUT_SEC", 10),
		},
	}

	// Validate required fields
	if cfg.MySQL.DSN == "" {
		return nil, fmt.Errorf("MYSQL_DSN is required")
	}
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.Notifier.Enabled && cfg.Notifier.WebhookURL == "" {
		return nil, fmt.Errorf("NOTIFIER_WEBHOOK_URL is required when notifier is enabled")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// LoadFromINI loads configuration from INI file with environment variable override
func LoadFromINI(iniPath string) (*Config, error) {
	cfgFile, err := ini.Load(iniPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load INI file: %w", err)
	}

	// Priority: ENV > INI > default
	getValue := func(envKey, iniSection, iniKey, defaultValue string) string {
		if value := os.Getenv(envKey); value != "" {
			return value
		}
		if value := cfgFile.Section(iniSection).Key(iniKey).String(); value != "" {
			return value
		}
		return defaultValue
	}

	getValueInt := func(envKey, iniSection, iniKey string, defaultValue int) int {
		if value := os.Getenv(envKey); value != "" {
			if intValue, err := strconv.Atoi(value); err == nil {
				return intValue
			}
		}
		if cfgFile.Section(iniSection).HasKey(iniKey) {
			if value, err := cfgFile.Section(iniSection).Key(iniKey).Int(); err == nil {
				return value
			}
		}
		return defaultValue
	}

	getValueBool := func(envKey, iniSection, iniKey string, defaultValue bool) bool {
		if value := os.Getenv(envKey); value != "" {
			return value == "1" || value == "true"
		}
		if value, err := cfgFile.Section(iniSection).Key(iniKey).Bool(); err == nil {
			return value
		}
		return defaultValue
	}

	cfg := &Config{
		MySQL: MySQLConfig{
			DSN: getValue("MYSQL_DSN", "mysql", "dsn", ""),
		},
		Redis: RedisConfig{
			Addr:     getValue("REDIS_ADDR", "redis", "addr", "localhost:6379"),
			Password: getValue("REDIS_PASS", "redis", "pass", ""),
			DB:       getValueInt("REDIS_DB", "redis", "db", 0),
		},
		JWT: JWTConfig{
			Secret:        getValue("JWT_SECRET", "jwt", "secret", ""),
			ExpireMinutes: getValueInt("JWT_EXPIRE_MINUTES", "jwt", "expire_minutes", 1440),
			Issuer:        getValue("JWT_ISSUER", "jwt", "issuer", "mxops"),
		},
		Migrate:  getValueBool("MIGRATE", "app", "migrate", false),
		HTTPAddr: getValue("HTTP_ADDR", "http", "addr", ":8080"),
		Mendix: MendixConfig{
			BaseURL:    getValue("MENDIX_API_BASE_URL", "mendix", "base_url", ""),
			TimeoutSec: getValueInt("MENDIX_API_TIMEOUT_SEC", "mendix", "timeout_sec", 60),
		},
		ActionWorker: ActionWorkerConfig{
			Enabled:     getValueBool("ACTION_WORKER_ENABLED", "action_worker", "enabled", true),
			IntervalSec: getValueInt("ACTION_WORKER_INTERVAL_SEC", "action_worker", "interval_sec", 15),
			BatchSize:   getValueInt("ACTION_WORKER_BATCH_SIZE", "action_worker", "batch_size", 10),
			BudgetSec:   getValueInt("ACTION_WORKER_BUDGET_SEC", "action_worker", "budget_sec", 90),
			LeaseTTLSec: getValueInt("ACTION_WORKER_LEASE_TTL_SEC", "action_worker", "lease_ttl_sec", 120),
			EnvLockSec:  getValueInt("ACTION_WORKER_ENV_LOCK_SEC", "action_worker", "env_lock_sec", 120),
		},
		Notifier: NotifierConfig{
			Enabled:    getValueBool("NOTIFIER_ENABLED", "notifier", "enabled", false),
			WebhookURL: getValue("NOTIFIER_WEBHOOK_URL", "notifier", "webhook_url", ""),
			TimeoutSec: getValueInt("NOTIFIER_TIMEOUT_SEC", "notifier", "timeout_sec", 10),
		},
	}

	if cfg.MySQL.DSN == "" {
		return nil, fmt.Errorf("MYSQL_DSN is required")
	}
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.Notifier.Enabled && cfg.Notifier.WebhookURL == "" {
		return nil, fmt.Errorf("NOTIFIER_WEBHOOK_URL is required when notifier is enabled")
	}

	return cfg, nil
}
