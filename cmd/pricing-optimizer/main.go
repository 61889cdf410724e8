package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/iwvelando/pricing-optimizer/internal/config"
	"github.com/iwvelando/pricing-optimizer/internal/storage"
	"github.com/iwvelando/pricing-optimizer/internal/storage/warehouse"
	"github.com/iwvelando/pricing-optimizer/pkg/constants"
	"github.com/iwvelando/pricing-optimizer/pkg/validation"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// initializeLogger creates a zap logger based on configuration and CLI override
func initializeLogger(loggingConfig config.LoggingConfig, logLevelOverride string) (*zap.Logger, error) {
	// Determine log level (CLI override takes precedence)
	level := loggingConfig.Level
	if logLevelOverride != "" {
		level = logLevelOverride
	}
	if level == "" {
		level = "info"
	}

	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn", "warning":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		return nil, fmt.Errorf("invalid log level: %s", level)
	}

	format := loggingConfig.Format
	if format == "" {
		format = "json"
	}

	var config zap.Config
	switch format {
	case "console":
		config = zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zapLevel)
	case "json":
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zapLevel)
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}

	if loggingConfig.OutputFile != "" {
		if dir := filepath.Dir(loggingConfig.OutputFile); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create log directory %s: %v", dir, err)
			}
		}

		// Test if we can create/write to the file
		if file, err := os.OpenFile(loggingConfig.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %v", loggingConfig.OutputFile, err)
		} else {
			_ = file.Close()
		}

		config.OutputPaths = []string{loggingConfig.OutputFile}
		config.ErrorOutputPaths = []string{loggingConfig.OutputFile}
	}

	return config.Build()
}

// environment is the state shared by every subcommand once the global flags
// have been processed.
type environment struct {
	conf    *config.Configuration
	logger  *zap.Logger
	closers []io.Closer
}

func (e *environment) load(configPath, logLevel string) error {
	conf, err := config.LoadConfiguration(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration at %s: %w", configPath, err)
	}
	if err := conf.Validate(); err != nil {
		return err
	}
	logger, err := initializeLogger(conf.Logging, logLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	e.conf = conf
	e.logger = logger
	return nil
}

func (e *environment) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil && e.logger != nil {
			e.logger.Warn("failed to close resource", zap.String("op", "main"), zap.Error(err))
		}
	}
	e.closers = nil
	if e.logger != nil {
		_ = e.logger.Sync()
	}
}

// openStore opens the relational store holding recommendations and the run log.
func (e *environment) openStore(ctx context.Context) (*storage.SQLStore, error) {
	store, err := storage.Open(ctx, e.conf.Database.Driver, e.conf.Database.DSN, e.logger)
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, store)
	return store, nil
}

// catalog picks the input source: a fixture file when given, the warehouse
// when enabled, the relational store otherwise.
func (e *environment) catalog(ctx context.Context, store *storage.SQLStore, fixturePath string) (storage.Catalog, error) {
	if fixturePath != "" {
		fixture, err := e.loadFixture(fixturePath)
		if err != nil {
			return nil, err
		}
		return fixture, nil
	}
	if e.conf.Warehouse.Enabled {
		wh := e.conf.Warehouse
		source, err := warehouse.Open(warehouse.Config{
			Host:     wh.Host,
			Port:     wh.Port,
			Database: wh.Database,
			Username: wh.Username,
			Password: wh.Password,
			Debug:    wh.Debug,
		}, e.logger)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, source)
		if err := source.Ping(ctx); err != nil {
			return nil, fmt.Errorf("warehouse unreachable: %w", err)
		}
		return source, nil
	}
	if store == nil {
		return nil, errors.New("no input source: pass --fixture or configure a database")
	}
	return store, nil
}

func (e *environment) loadFixture(path string) (*storage.Fixture, error) {
	fixture, err := storage.LoadFixture(path)
	if err != nil {
		return nil, err
	}
	v := validation.InputValidator{Elasticities: fixture.ElasticityRows, Panel: fixture.PanelRows}
	for _, warning := range v.ValidateAll() {
		e.logger.Warn("Input warning: "+warning,
			zap.String("op", "main"),
			zap.String("fixture", path),
		)
	}
	return fixture, nil
}

// outputFormat resolves the output format (CLI override takes precedence over config).
func (e *environment) outputFormat(override string) (string, error) {
	format := e.conf.Output.Format
	if override != "" {
		format = override
	}
	if format == "" {
		format = constants.OutputFormatPretty
	}
	return format, validation.ValidateOutputFormat(format)
}

// categories resolves the categories to process (CLI flags take precedence over config).
func (e *environment) categories(flags []string) ([]string, error) {
	opt := e.conf.Optimizer
	if len(flags) > 0 {
		opt.Category = ""
		opt.Categories = flags
	}
	list := opt.CategoryList()
	if len(list) == 0 {
		return nil, errors.New("no category given: pass --category or set optimizer.categories")
	}
	for _, category := range list {
		if err := config.ValidateCategory(category); err != nil {
			return nil, err
		}
	}
	return list, nil
}

func newApp(stdout io.Writer) *cli.App {
	env := &environment{}
	return &cli.App{
		Name:    "pricing-optimizer",
		Usage:   "recommend category prices that maximize profit under a revenue floor",
		Version: version,
		Writer:  stdout,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Value: constants.DefaultConfigFile,
				Usage: "path to configuration file (empty for defaults and environment only)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level override (debug, info, warn, error)",
			},
		},
		Before: func(c *cli.Context) error {
			return env.load(c.String("config"), c.String("log-level"))
		},
		After: func(c *cli.Context) error {
			env.close()
			return nil
		},
		Commands: []*cli.Command{
			optimizeCommand(env),
			simulateCommand(env),
			serveCommand(env),
			seedCommand(env),
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "{\"op\": \"main\", \"level\": \"fatal\", \"error\": %q}\n", err.Error())
		stop()
		os.Exit(1)
	}
}
