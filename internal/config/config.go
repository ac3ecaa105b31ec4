// Package config loads datastore settings from a YAML file, an optional
// .env file and DATASTORE_* environment variables, in increasing order of
// precedence.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v3"

	"github.com/koustreak/datastore/internal/command"
	"github.com/koustreak/datastore/internal/database"
	"github.com/koustreak/datastore/internal/errs"
	"github.com/koustreak/datastore/internal/logger"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DATASTORE_"

// Config is the complete runtime configuration.
type Config struct {
	Database database.Config `yaml:"database"`

	// Dialect names the SQL dialect used to render commands. When empty it
	// follows Database.Driver.
	Dialect string `yaml:"dialect"`

	Log    logger.Config `yaml:"log"`
	Server Server        `yaml:"server"`
}

// Server configures the admin HTTP surface.
type Server struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Default returns the configuration used before any file or override is
// applied.
func Default() *Config {
	db := database.DefaultConfig("")
	log := logger.DefaultConfig()
	return &Config{
		Database: *db,
		Log:      *log,
		Server: Server{
			Addr:         ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
	}
}

// Load reads path (skipped when empty), then the .env file in the working
// directory if there is one, then environment overrides, and validates the
// result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to read config file", err).WithOp("config.Load")
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to parse config file", err).WithOp("config.Load")
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to load .env", err).WithOp("config.Load")
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DialectName returns Dialect, or the driver name when Dialect is empty.
func (c *Config) DialectName() string {
	if c.Dialect != "" {
		return c.Dialect
	}
	return string(c.Database.Driver)
}

// Validate checks the database settings and the dialect name.
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return err
	}
	if _, err := command.DialectFor(c.DialectName()); err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, "invalid dialect", err).WithOp("config.Validate")
	}
	if err := c.Log.Validate(); err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, "invalid log settings", err).WithOp("config.Validate")
	}
	if c.Server.Addr == "" {
		return errs.New(errs.ErrKindInvalidInput, "server.addr is required").WithOp("config.Validate")
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	strs := map[string]*string{
		"DSN":         &c.Database.DSN,
		"HOST":        &c.Database.Host,
		"USER":        &c.Database.User,
		"PASSWORD":    &c.Database.Password,
		"DATABASE":    &c.Database.Database,
		"SSLMODE":     &c.Database.SSLMode,
		"ISOLATION":   &c.Database.Isolation,
		"DIALECT":     &c.Dialect,
		"LOG_LEVEL":   &c.Log.Level,
		"LOG_FORMAT":  &c.Log.Format,
		"SERVER_ADDR": &c.Server.Addr,
	}
	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}

	if v, ok := lookup(EnvPrefix + "DRIVER"); ok {
		c.Database.Driver = database.Driver(v)
	}
	if v, ok := lookup(EnvPrefix + "PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return errs.Wrap(errs.ErrKindInvalidInput, EnvPrefix+"PORT is not a number", err).WithOp("config.Load")
		}
		c.Database.Port = port
	}
	if v, ok := lookup(EnvPrefix + "QUERY_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errs.Wrap(errs.ErrKindInvalidInput, EnvPrefix+"QUERY_TIMEOUT is not a duration", err).WithOp("config.Load")
		}
		c.Database.QueryTimeout = d
	}
	return nil
}
