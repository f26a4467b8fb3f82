package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/idgen"
	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/transaction"
)

// ConfigName is the base name of the configuration file
const ConfigName = "entitymanager"

// EnvPrefix prefixes the environment variables overriding the file, as in
// ENTITYMANAGER_DATABASE_FILE_PATH
const EnvPrefix = "ENTITYMANAGER"

const (
	// StoreTable keeps id counters in the generator table of the database
	StoreTable = "table"
	// StoreRedis keeps id counters in Redis
	StoreRedis = "redis"
)

// ErrInvalidConfig is returned for configuration values that cannot be used
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents the entity manager configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Schema    SchemaConfig    `mapstructure:"schema"`
	Generator GeneratorConfig `mapstructure:"generator"`
	Log       LogConfig       `mapstructure:"log"`
}

// DatabaseConfig holds the connection parameters
type DatabaseConfig struct {
	FilePath       string `mapstructure:"file_path"`
	Autocommit     bool   `mapstructure:"autocommit"`
	IsolationLevel string `mapstructure:"isolation_level"`
	Driver         string `mapstructure:"driver"`
}

// SchemaConfig lists the entity declaration files
type SchemaConfig struct {
	Files []string `mapstructure:"files"`
}

// GeneratorConfig selects where table strategy ids are counted
type GeneratorConfig struct {
	Store string      `mapstructure:"store"`
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds the Redis counter store settings
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// LogConfig configures the logger
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load loads the configuration from path, or from entitymanager.yaml in the
// working directory when path is empty. A missing default file leaves the
// defaults in place.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Set defaults, every key needs one for AutomaticEnv to reach it on Unmarshal
	v.SetDefault("database.file_path", "")
	v.SetDefault("database.autocommit", false)
	v.SetDefault("database.isolation_level", "deferred")
	v.SetDefault("database.driver", transaction.DriverSQLite3)
	v.SetDefault("schema.files", []string{})
	v.SetDefault("generator.store", StoreTable)
	v.SetDefault("generator.redis.addr", "localhost:6379")
	v.SetDefault("generator.redis.password", "")
	v.SetDefault("generator.redis.db", 0)
	v.SetDefault("generator.redis.prefix", idgen.DefaultPrefix)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(ConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Enable environment variable support
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// ConnectionOptions returns the connection options of the database section
func (c *Config) ConnectionOptions() (transaction.Options, error) {
	return transaction.OptionsFromMap(map[string]interface{}{
		"file_path":       c.Database.FilePath,
		"autocommit":      c.Database.Autocommit,
		"isolation_level": c.Database.IsolationLevel,
		"driver":          c.Database.Driver,
	})
}

// RedisConfig returns the settings of the Redis counter store
func (c *Config) RedisConfig() idgen.RedisConfig {
	return idgen.RedisConfig{
		Addr:     c.Generator.Redis.Addr,
		Password: c.Generator.Redis.Password,
		DB:       c.Generator.Redis.DB,
		Prefix:   c.Generator.Redis.Prefix,
	}
}

// Logger builds the logger described by the log section
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	if c.Log.Development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if _, err := transaction.ParseIsolationLevel(cfg.Database.IsolationLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	switch cfg.Database.Driver {
	case "", transaction.DriverSQLite3, transaction.DriverSQLite:
	default:
		return fmt.Errorf("%w: database.driver must be %s or %s, got: %s",
			ErrInvalidConfig, transaction.DriverSQLite3, transaction.DriverSQLite, cfg.Database.Driver)
	}

	switch cfg.Generator.Store {
	case StoreTable, StoreRedis:
	default:
		return fmt.Errorf("%w: generator.store must be %s or %s, got: %s",
			ErrInvalidConfig, StoreTable, StoreRedis, cfg.Generator.Store)
	}

	_, err := parseLevel(cfg.Log.Level)
	return err
}

func parseLevel(s string) (zapcore.Level, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("%w: log.level: %v", ErrInvalidConfig, err)
	}
	return level, nil
}
