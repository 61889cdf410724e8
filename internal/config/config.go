// Package config defines the data structures related to configuration and
// includes functions for loading, normalizing and validating it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/iwvelando/pricing-optimizer/pkg/constants"
	"github.com/iwvelando/pricing-optimizer/pkg/pricing"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Configuration holds all configuration for pricing-optimizer.
type Configuration struct {
	Optimizer OptimizerConfig `mapstructure:"optimizer" yaml:"optimizer"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Warehouse WarehouseConfig `mapstructure:"warehouse" yaml:"warehouse"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline" yaml:"pipeline"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging,omitempty"`
	Output    OutputConfig    `mapstructure:"output" yaml:"output,omitempty"`
}

// LoggingConfig holds logging configuration options
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level,omitempty"`           // debug, info, warn, error
	Format     string `mapstructure:"format" yaml:"format,omitempty"`         // json, console
	OutputFile string `mapstructure:"outputFile" yaml:"outputFile,omitempty"` // optional file output
}

// OutputConfig holds output format configuration options
type OutputConfig struct {
	Format string `mapstructure:"format" yaml:"format,omitempty"` // pretty, csv, yaml, none
}

// DatabaseConfig selects the relational store holding inputs and recommendations.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"` // sqlite, postgres
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

// WarehouseConfig points at an optional ClickHouse warehouse used as the
// elasticity and panel source instead of the relational store.
type WarehouseConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Database string `mapstructure:"database" yaml:"database"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	Debug    bool   `mapstructure:"debug" yaml:"debug"`
}

// ServerConfig defines runtime parameters for the read-only HTTP API.
type ServerConfig struct {
	Address     string   `mapstructure:"address" yaml:"address"`
	CORSOrigins []string `mapstructure:"corsOrigins" yaml:"corsOrigins"`
	RateLimit   float64  `mapstructure:"rateLimit" yaml:"rateLimit"`
	Burst       int      `mapstructure:"burst" yaml:"burst"`
	// MaxRequestSize caps request bodies, e.g. "64K" or "1M".
	MaxRequestSize string `mapstructure:"maxRequestSize" yaml:"maxRequestSize"`
}

// PipelineConfig controls how several categories are processed in one invocation.
type PipelineConfig struct {
	Parallelism int `mapstructure:"parallelism" yaml:"parallelism"`
}

// LoadConfiguration takes a file path as input and loads the YAML-formatted
// configuration there. Values can be overridden with PRICING_* environment
// variables, which are also read from a .env file when one exists. An empty
// path yields the defaults plus environment overrides.
func LoadConfiguration(configPath string) (*Configuration, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file, %s", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file, %s", err)
		}
	}

	var configuration Configuration
	if err := v.Unmarshal(&configuration); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %s", err)
	}

	configuration.Normalize()
	return &configuration, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("optimizer.category", "")
	v.SetDefault("optimizer.categories", []string{})
	v.SetDefault("optimizer.minChangePct", constants.DefaultMinChangePct)
	v.SetDefault("optimizer.maxChangePct", constants.DefaultMaxChangePct)
	v.SetDefault("optimizer.steps", constants.DefaultSteps)
	v.SetDefault("optimizer.minRevenuePct", constants.DefaultMinRevenuePct)
	v.SetDefault("optimizer.marginFraction", constants.DefaultMarginFraction)
	v.SetDefault("optimizer.includeCurrent", false)
	v.SetDefault("optimizer.bound", constants.BoundHull)
	v.SetDefault("optimizer.timeLimit", constants.DefaultTimeLimit.String())
	v.SetDefault("optimizer.nodeLimit", constants.DefaultNodeLimit)
	v.SetDefault("optimizer.acceptSuboptimal", false)

	v.SetDefault("database.driver", constants.DriverSQLite)
	v.SetDefault("database.dsn", constants.DefaultDSN)

	v.SetDefault("warehouse.enabled", false)
	v.SetDefault("warehouse.host", "localhost")
	v.SetDefault("warehouse.port", constants.DefaultWarehousePort)
	v.SetDefault("warehouse.database", "pricing")
	v.SetDefault("warehouse.username", "default")
	v.SetDefault("warehouse.password", "")
	v.SetDefault("warehouse.debug", false)

	v.SetDefault("server.address", constants.DefaultServerAddress)
	v.SetDefault("server.corsOrigins", []string{"*"})
	v.SetDefault("server.rateLimit", constants.DefaultRateLimit)
	v.SetDefault("server.burst", constants.DefaultBurst)
	v.SetDefault("server.maxRequestSize", constants.DefaultMaxRequestSize)

	v.SetDefault("pipeline.parallelism", 1)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputFile", "")

	v.SetDefault("output.format", constants.OutputFormatPretty)
}

// Normalize applies defaults to unset values and canonicalizes identifiers.
func (c *Configuration) Normalize() {
	c.Optimizer.Normalize()

	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	if c.Database.Driver == "" {
		c.Database.Driver = constants.DriverSQLite
	}
	if c.Database.Driver == "postgresql" {
		c.Database.Driver = constants.DriverPostgres
	}
	if c.Database.DSN == "" && c.Database.Driver == constants.DriverSQLite {
		c.Database.DSN = constants.DefaultDSN
	}

	if c.Warehouse.Port <= 0 {
		c.Warehouse.Port = constants.DefaultWarehousePort
	}

	if c.Server.Address == "" {
		c.Server.Address = constants.DefaultServerAddress
	}
	if c.Server.RateLimit <= 0 {
		c.Server.RateLimit = constants.DefaultRateLimit
	}
	if c.Server.Burst <= 0 {
		c.Server.Burst = constants.DefaultBurst
	}
	if strings.TrimSpace(c.Server.MaxRequestSize) == "" {
		c.Server.MaxRequestSize = constants.DefaultMaxRequestSize
	}

	if c.Pipeline.Parallelism <= 0 {
		c.Pipeline.Parallelism = 1
	}

	c.Output.Format = strings.ToLower(strings.TrimSpace(c.Output.Format))
	if c.Output.Format == "" {
		c.Output.Format = constants.OutputFormatPretty
	}
}

// Validate rejects unusable settings before any data is read. Every returned
// error wraps pricing.ErrInvalidConfiguration.
func (c *Configuration) Validate() error {
	if err := c.Optimizer.Validate(); err != nil {
		return err
	}

	switch c.Database.Driver {
	case constants.DriverSQLite, constants.DriverPostgres:
	default:
		return pricing.InvalidConfigurationf("database driver %q is not supported", c.Database.Driver)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return pricing.InvalidConfigurationf("database dsn is required")
	}

	if c.Warehouse.Enabled && strings.TrimSpace(c.Warehouse.Host) == "" {
		return pricing.InvalidConfigurationf("warehouse host is required when the warehouse is enabled")
	}

	return nil
}
