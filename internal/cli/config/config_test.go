package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/transaction"
)

func TestLoad(t *testing.T) {
	// Test loading with no config file (should use defaults)
	tmpDir := t.TempDir()
	oldWd, _ := os.Getwd()
	os.Chdir(tmpDir)
	defer os.Chdir(oldWd)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected no error loading defaults, got %v", err)
	}

	if cfg.Database.Driver != transaction.DriverSQLite3 {
		t.Errorf("expected default driver sqlite3, got %s", cfg.Database.Driver)
	}
	if cfg.Generator.Store != StoreTable {
		t.Errorf("expected default store 'table', got %s", cfg.Generator.Store)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected default log level 'info', got %s", cfg.Log.Level)
	}

	// file_path has no default
	if _, err := cfg.ConnectionOptions(); !errors.Is(err, transaction.ErrMissingProperty) {
		t.Errorf("expected ErrMissingProperty, got %v", err)
	}
}

func TestLoadWithConfigFile(t *testing.T) {
	// Create temporary directory with config file
	tmpDir := t.TempDir()
	oldWd, _ := os.Getwd()
	os.Chdir(tmpDir)
	defer os.Chdir(oldWd)

	configContent := `database:
  file_path: app.db
  isolation_level: immediate
  driver: sqlite
schema:
  files:
    - entities.yaml
generator:
  store: redis
  redis:
    addr: cache:6379
log:
  level: debug
  development: true
`
	if err := os.WriteFile(filepath.Join(tmpDir, "entitymanager.yaml"), []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	options, err := cfg.ConnectionOptions()
	if err != nil {
		t.Fatalf("expected valid connection options, got %v", err)
	}
	if options.FilePath != "app.db" || options.IsolationLevel != transaction.Immediate || options.DriverName() != transaction.DriverSQLite {
		t.Errorf("unexpected connection options %+v", options)
	}

	if len(cfg.Schema.Files) != 1 || cfg.Schema.Files[0] != "entities.yaml" {
		t.Errorf("expected schema files [entities.yaml], got %v", cfg.Schema.Files)
	}

	redis := cfg.RedisConfig()
	if redis.Addr != "cache:6379" {
		t.Errorf("expected redis addr cache:6379, got %s", redis.Addr)
	}
	if redis.Prefix == "" {
		t.Error("expected default redis prefix")
	}

	logger, err := cfg.Logger()
	if err != nil {
		t.Fatalf("expected logger, got %v", err)
	}
	if !logger.Core().Enabled(-1) {
		t.Error("expected debug level to be enabled")
	}
}

func TestLoadExplicitPath(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "custom.yaml")
	if err := os.WriteFile(path, []byte("database:\n  file_path: custom.db\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Database.FilePath != "custom.db" {
		t.Errorf("expected custom.db, got %s", cfg.Database.FilePath)
	}

	if _, err := Load(filepath.Join(tmpDir, "missing.yaml")); err == nil {
		t.Error("expected error for a missing explicit config file")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	tmpDir := t.TempDir()
	oldWd, _ := os.Getwd()
	os.Chdir(tmpDir)
	defer os.Chdir(oldWd)

	t.Setenv("ENTITYMANAGER_DATABASE_FILE_PATH", "env.db")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Database.FilePath != "env.db" {
		t.Errorf("expected env.db from the environment, got %s", cfg.Database.FilePath)
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"isolation level", func(c *Config) { c.Database.IsolationLevel = "serializable" }},
		{"driver", func(c *Config) { c.Database.Driver = "postgres" }},
		{"store", func(c *Config) { c.Generator.Store = "memcached" }},
		{"log level", func(c *Config) { c.Log.Level = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Database:  DatabaseConfig{IsolationLevel: "deferred", Driver: transaction.DriverSQLite3},
				Generator: GeneratorConfig{Store: StoreTable},
				Log:       LogConfig{Level: "info"},
			}
			if err := validateConfig(cfg); err != nil {
				t.Fatalf("expected valid base config, got %v", err)
			}
			tt.modify(cfg)
			if err := validateConfig(cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}
