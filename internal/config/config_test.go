package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	// Set required environment variables
	os.Setenv("MYSQL_DSN", "user:pass@tcp(localhost:3306)/test")
	os.Setenv("JWT_SECRET", "test-secret")
	defer func() {
		os.Unsetenv("MYSQL_DSN")
		os.Unsetenv("JWT_SECRET")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.MySQL.DSN == "" {
		t.Error("MySQL DSN should not be empty")
	}

	if cfg.HTTPAddr != ":8080" {
		t.Errorf("Expected HTTPAddr :8080, got %s", cfg.HTTPAddr)
	}

	if cfg.ActionWorker.IntervalSec != 15 {
		t.Errorf("Expected worker interval 15, got %d", cfg.ActionWorker.IntervalSec)
	}

	if cfg.Mendix.TimeoutSec != 60 {
		t.Errorf("Expected Mendix timeout 60, got %d", cfg.Mendix.TimeoutSec)
	}
}

func TestLoad_MissingMySQLDSN(t *testing.T) {
	// Ensure MYSQL_DSN is not set
	os.Unsetenv("MYSQL_DSN")
	os.Setenv("JWT_SECRET", "test-secret")
	defer os.Unsetenv("JWT_SECRET")

	_, err := Load()
	if err == nil {
		t.Error("Expected error when MYSQL_DSN is missing")
	}
}

func TestLoad_MissingJWTSecret(t *testing.T) {
	os.Setenv("MYSQL_DSN", "user:pass@tcp(localhost:3306)/test")
	os.Unsetenv("JWT_SECRET")
	defer os.Unsetenv("MYSQL_DSN")

	_, err := Load()
	if err == nil {
		t.Error("Expected error when JWT_SECRET is missing")
	}
}

func TestLoad_NotifierRequiresWebhookURL(t *testing.T) {
	os.Setenv("MYSQL_DSN", "user:pass@tcp(localhost:3306)/test")
	os.Setenv("JWT_SECRET", "test-secret")
	os.Setenv("NOTIFIER_ENABLED", "1")
	os.Unsetenv("NOTIFIER_WEBHOOK_URL")
	defer func() {
		os.Unsetenv("MYSQL_DSN")
		os.Unsetenv("JWT_SECRET")
		os.Unsetenv("NOTIFIER_ENABLED")
	}()

	_, err := Load()
	if err == nil {
		t.Error("Expected error when notifier is enabled without webhook URL")
	}
}

func TestLoad_CustomValues(t *testing.T) {
	os.Setenv("MYSQL_DSN", "custom:dsn@tcp(localhost:3306)/custom")
	os.Setenv("JWT_SECRET", "test-secret")
	os.Setenv("REDIS_ADDR", "redis.example.com:6379")
	os.Setenv("REDIS_PASS", "secret")
	os.Setenv("REDIS_DB", "5")
	os.Setenv("HTTP_ADDR", ":9090")
	os.Setenv("MENDIX_API_BASE_URL", "https://deploy.example.com/api/1")
	os.Setenv("ACTION_WORKER_BATCH_SIZE", "25")

	defer func() {
		os.Unsetenv("MYSQL_DSN")
		os.Unsetenv("JWT_SECRET")
		os.Unsetenv("REDIS_ADDR")
		os.Unsetenv("REDIS_PASS")
		os.Unsetenv("REDIS_DB")
		os.Unsetenv("HTTP_ADDR")
		os.Unsetenv("MENDIX_API_BASE_URL")
		os.Unsetenv("ACTION_WORKER_BATCH_SIZE")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.MySQL.DSN != "custom:dsn@tcp(localhost:3306)/custom" {
		t.Errorf("Expected custom MySQL DSN, got %s", cfg.MySQL.DSN)
	}

	if cfg.Redis.Addr != "redis.example.com:6379" {
		t.Errorf("Expected custom Redis addr, got %s", cfg.Redis.Addr)
	}

	if cfg.Redis.Password != "secret" {
		t.Errorf("Expected Redis password 'secret', got %s", cfg.Redis.Password)
	}

	if cfg.Redis.DB != 5 {
		t.Errorf("Expected Redis DB 5, got %d", cfg.Redis.DB)
	}

	if cfg.HTTPAddr != ":9090" {
		t.Errorf("Expected HTTPAddr :9090, got %s", cfg.HTTPAddr)
	}

	if cfg.Mendix.BaseURL != "https://deploy.example.com/api/1" {
		t.Errorf("Expected custom Mendix base URL, got %s", cfg.Mendix.BaseURL)
	}

	if cfg.ActionWorker.BatchSize != 25 {
		t.Errorf("Expected worker batch size 25, got %d", cfg.ActionWorker.BatchSize)
	}
}

func TestLoadFromINI(t *testing.T) {
	os.Unsetenv("MYSQL_DSN")
	os.Unsetenv("JWT_SECRET")
	os.Unsetenv("HTTP_ADDR")

	iniPath := filepath.Join(t.TempDir(), "mxops.ini")
	content := `[mysql]
dsn = ini:dsn@tcp(localhost:3306)/ini

[jwt]
secret = ini-secret

[http]
addr = :7070

[action_worker]
batch_size = 3
`
	if err := os.WriteFile(iniPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write ini: %v", err)
	}

	cfg, err := LoadFromINI(iniPath)
	if err != nil {
		t.Fatalf("LoadFromINI() failed: %v", err)
	}

	if cfg.MySQL.DSN != "ini:dsn@tcp(localhost:3306)/ini" {
		t.Errorf("Expected INI MySQL DSN, got %s", cfg.MySQL.DSN)
	}
	if cfg.JWT.Secret != "ini-secret" {
		t.Errorf("Expected INI JWT secret, got %s", cfg.JWT.Secret)
	}
	if cfg.HTTPAddr != ":7070" {
		t.Errorf("Expected HTTPAddr :7070, got %s", cfg.HTTPAddr)
	}
	if cfg.ActionWorker.BatchSize != 3 {
		t.Errorf("Expected worker batch size 3, got %d", cfg.ActionWorker.BatchSize)
	}
}

func TestLoadFromINI_EnvOverridesFile(t *testing.T) {
	iniPath := filepath.Join(t.TempDir(), "mxops.ini")
	content := `[mysql]
dsn = ini:dsn@tcp(localhost:3306)/ini

[jwt]
secret = ini-secret
`
	if err := os.WriteFile(iniPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write ini: %v", err)
	}

	os.Setenv("MYSQL_DSN", "env:dsn@tcp(localhost:3306)/env")
	defer os.Unsetenv("MYSQL_DSN")

	cfg, err := LoadFromINI(iniPath)
	if err != nil {
		t.Fatalf("LoadFromINI() failed: %v", err)
	}

	if cfg.MySQL.DSN != "env:dsn@tcp(localhost:3306)/env" {
		t.Errorf("Expected env DSN to win, got %s", cfg.MySQL.DSN)
	}
}
