package main

import (
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/iwvelando/pricing-optimizer/internal/pipeline"
	"github.com/iwvelando/pricing-optimizer/internal/server"
	"github.com/iwvelando/pricing-optimizer/internal/storage"
	"github.com/iwvelando/pricing-optimizer/pkg/output"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func inputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "category",
			Aliases: []string{"c"},
			Usage:   "category to process, repeatable (overrides optimizer.categories)",
		},
		&cli.StringFlag{
			Name:  "output-format",
			Usage: "type of output override: pretty, csv, yaml, none",
		},
		&cli.StringFlag{
			Name:  "fixture",
			Usage: "read elasticities and panel from a YAML fixture instead of the configured source",
		},
	}
}

func optimizeCommand(env *environment) *cli.Command {
	return &cli.Command{
		Name:  "optimize",
		Usage: "solve the configured categories and persist the recommendations",
		Flags: append(inputFlags(), &cli.BoolFlag{
			Name:  "dry-run",
			Usage: "print recommendations without persisting them",
		}),
		Action: func(c *cli.Context) error {
			format, err := env.outputFormat(c.String("output-format"))
			if err != nil {
				return err
			}
			categories, err := env.categories(c.StringSlice("category"))
			if err != nil {
				return err
			}

			store, err := env.openStore(c.Context)
			if err != nil {
				return err
			}
			source, err := env.catalog(c.Context, store, c.String("fixture"))
			if err != nil {
				return err
			}

			deps := pipeline.Dependencies{Source: source, Runs: store, Logger: env.logger}
			if !c.Bool("dry-run") {
				deps.Store = store
			}
			runner, err := pipeline.NewRunner(env.conf.Optimizer, deps)
			if err != nil {
				return err
			}

			reports, runErr := runner.RunAll(c.Context, categories, env.conf.Pipeline.Parallelism)
			if err := output.Write(c.App.Writer, format, reports); err != nil {
				return errors.Join(runErr, err)
			}
			return runErr
		},
	}
}

func simulateCommand(env *environment) *cli.Command {
	return &cli.Command{
		Name:  "simulate",
		Usage: "print the simulated price grid of every product without solving",
		Flags: inputFlags(),
		Action: func(c *cli.Context) error {
			format, err := env.outputFormat(c.String("output-format"))
			if err != nil {
				return err
			}
			categories, err := env.categories(c.StringSlice("category"))
			if err != nil {
				return err
			}

			var store *storage.SQLStore
			if c.String("fixture") == "" && !env.conf.Warehouse.Enabled {
				if store, err = env.openStore(c.Context); err != nil {
					return err
				}
			}
			source, err := env.catalog(c.Context, store, c.String("fixture"))
			if err != nil {
				return err
			}
			runner, err := pipeline.NewRunner(env.conf.Optimizer, pipeline.Dependencies{Source: source, Logger: env.logger})
			if err != nil {
				return err
			}

			reports := make([]*pipeline.Report, 0, len(categories))
			for _, category := range categories {
				report, err := runner.Simulate(c.Context, category)
				if err != nil {
					return fmt.Errorf("simulating category %s: %w", category, err)
				}
				reports = append(reports, report)
			}
			return output.WriteScenarios(c.App.Writer, format, reports)
		},
	}
}

func serveCommand(env *environment) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "serve persisted recommendations, the run log and elasticity lookups over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "address",
				Usage: "listen address override",
			},
		},
		Action: func(c *cli.Context) error {
			section := env.conf.Server
			if addr := c.String("address"); addr != "" {
				section.Address = addr
			}
			cfg, err := server.NewConfig(section, c.App.Version)
			if err != nil {
				return err
			}

			store, err := env.openStore(c.Context)
			if err != nil {
				return err
			}
			lookup, err := env.catalog(c.Context, store, "")
			if err != nil {
				return err
			}

			gin.SetMode(gin.ReleaseMode)
			handler := server.NewHandler(cfg, server.Dependencies{
				Recommendations: store,
				Elasticities:    lookup,
				Runs:            store,
				Logger:          env.logger,
			})
			return server.Run(c.Context, cfg.Address, handler, env.logger)
		},
	}
}

func seedCommand(env *environment) *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "load a YAML fixture into the configured database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "fixture",
				Required: true,
				Usage:    "YAML fixture with elasticities, panel rows or products",
			},
		},
		Action: func(c *cli.Context) error {
			fixture, err := env.loadFixture(c.String("fixture"))
			if err != nil {
				return err
			}
			store, err := env.openStore(c.Context)
			if err != nil {
				return err
			}
			if err := fixture.Seed(c.Context, store); err != nil {
				return err
			}
			env.logger.Info("seeded database",
				zap.String("op", "main.seed"),
				zap.Int("elasticities", len(fixture.ElasticityRows)),
				zap.Int("panelRows", len(fixture.PanelRows)),
				zap.Strings("categories", fixture.Categories()),
			)
			fmt.Fprintf(c.App.Writer, "seeded %d elasticities and %d panel rows\n", len(fixture.ElasticityRows), len(fixture.PanelRows))
			return nil
		},
	}
}
