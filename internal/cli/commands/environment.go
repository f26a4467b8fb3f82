package commands

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hivesolutions/colony-plugins-sub002/internal/cli/config"
	"github.com/hivesolutions/colony-plugins-sub002/internal/cli/ui"
	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/crud"
	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/idgen"
	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/loader"
	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/schema"
	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/transaction"
)

// ErrNoSchema is returned when no declaration file is configured
var ErrNoSchema = errors.New("no schema files configured (schema.files)")

// environment is everything a command needs to work on the database
type environment struct {
	config   *config.Config
	logger   *zap.Logger
	registry *schema.Registry
	conn     *transaction.Connection
	redis    *idgen.RedisStore
	engine   *crud.Engine
}

// openEnvironment loads the configuration and the declarations, then opens
// the connection and builds the engine
func openEnvironment(cmd *cobra.Command) (*environment, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprint(cmd.ErrOrStderr(), ui.ConfigError(err.Error(), noColor))
		return nil, err
	}
	if databasePath != "" {
		cfg.Database.FilePath = databasePath
	}

	options, err := cfg.ConnectionOptions()
	if err != nil {
		fmt.Fprint(cmd.ErrOrStderr(), ui.ConfigError(err.Error(), noColor))
		return nil, err
	}

	logger, err := cfg.Logger()
	if err != nil {
		return nil, err
	}
	env := &environment{config: cfg, logger: logger}

	if len(cfg.Schema.Files) == 0 {
		env.close()
		return nil, ErrNoSchema
	}
	env.registry, err = loader.Load(schemaPaths(cfg.Schema.Files)...)
	if err != nil {
		env.close()
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}

	env.conn, err = transaction.Open(ctx, options, transaction.WithLogger(logger))
	if err != nil {
		env.close()
		return nil, err
	}

	engineOpts := []crud.Option{crud.WithLogger(logger)}
	if cfg.Generator.Store == config.StoreRedis {
		env.redis, err = idgen.NewRedisStore(ctx, cfg.RedisConfig())
		if err != nil {
			env.close()
			return nil, err
		}
		engineOpts = append(engineOpts, crud.WithCounterStore(env.redis))
	}
	env.engine = crud.NewEngine(env.registry, env.conn, engineOpts...)

	logger.Debug("environment ready",
		zap.String("database", options.FilePath),
		zap.String("driver", options.DriverName()),
		zap.Int("entities", env.registry.Count()),
		zap.String("generator", cfg.Generator.Store))
	return env, nil
}

// schemaPaths resolves relative declaration paths against the directory of
// the configuration file
func schemaPaths(files []string) []string {
	if configPath == "" {
		return files
	}
	base := filepath.Dir(configPath)
	paths := make([]string, len(files))
	for i, f := range files {
		if filepath.IsAbs(f) {
			paths[i] = f
		} else {
			paths[i] = filepath.Join(base, f)
		}
	}
	return paths
}

// types returns the entity types named on the command line, every concrete
// type in dependency order when none is named
func (env *environment) types(cmd *cobra.Command, names []string) ([]*schema.EntityType, error) {
	if len(names) == 0 {
		var types []*schema.EntityType
		for _, t := range env.registry.DependencyOrder() {
			if !t.Abstract {
				types = append(types, t)
			}
		}
		return types, nil
	}

	known := make([]string, 0, env.registry.Count())
	for _, t := range env.registry.All() {
		known = append(known, t.Name)
	}

	types := make([]*schema.EntityType, 0, len(names))
	for _, name := range names {
		t, ok := env.registry.Get(name)
		if !ok {
			fmt.Fprint(cmd.ErrOrStderr(), ui.EntityNotFoundError(name, known, noColor))
			return nil, fmt.Errorf("%w: %s", schema.ErrUnknownEntity, name)
		}
		if t.Abstract {
			return nil, fmt.Errorf("%s is abstract and has no table", name)
		}
		types = append(types, t)
	}
	return types, nil
}

func (env *environment) close() {
	if env.conn != nil {
		env.conn.Close()
	}
	if env.redis != nil {
		env.redis.Close()
	}
	if env.logger != nil {
		_ = env.logger.Sync()
	}
}
