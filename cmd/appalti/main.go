package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"appalti/internal/api"
	"appalti/internal/config"
	"appalti/internal/pg"
	"appalti/internal/pipeline"
	"appalti/internal/registry"
)

func main() {
	app := &cli.App{
		Name:  "appalti",
		Usage: "ETL orchestrator for procurement JSON dumps (convert, stage, upsert, audit)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config/appalti.yml",
				Usage:   "path to YAML config",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: "info",
				Usage: "debug | info | warn | error",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "discover",
				Usage: "Scan the JSON root for dated dataset folders and compare against the catalog",
				Action: func(c *cli.Context) error {
					env, err := setup(c, false)
					if err != nil {
						return err
					}
					d, err := pipeline.Discover(env.cfg.JSONRoot, env.reg)
					if err != nil {
						return err
					}
					return printJSON(d)
				},
			},
			{
				Name:  "convert",
				Usage: "Convert source JSON files to NDJSON",
				Flags: datasetFlags(),
				Action: func(c *cli.Context) error {
					env, err := setup(c, true)
					if err != nil {
						return err
					}
					defer env.close()
					stats, err := env.pipe.Convert(c.Context, c.StringSlice("dataset"), c.String("since"))
					if err != nil {
						return err
					}
					fmt.Printf("converted files=%d errors=%d\n", stats.Files, stats.Errors)
					return nil
				},
			},
			{
				Name:  "load",
				Usage: "Load NDJSON files into raw staging (idempotent per file name)",
				Flags: datasetFlags(),
				Action: func(c *cli.Context) error {
					env, err := setup(c, true)
					if err != nil {
						return err
					}
					defer env.close()
					return env.pipe.LoadStaging(c.Context, c.StringSlice("dataset"), c.String("since"))
				},
			},
			{
				Name:  "upsert",
				Usage: "Project and merge staging into core tables in dependency order",
				Flags: datasetFlags(),
				Action: func(c *cli.Context) error {
					env, err := setup(c, true)
					if err != nil {
						return err
					}
					defer env.close()
					return env.pipe.UpsertCore(c.Context, c.StringSlice("dataset"))
				},
			},
			{
				Name:  "run",
				Usage: "Full pipeline: convert, load, upsert",
				Flags: datasetFlags(),
				Action: func(c *cli.Context) error {
					env, err := setup(c, true)
					if err != nil {
						return err
					}
					defer env.close()
					return env.pipe.RunAll(c.Context, c.StringSlice("dataset"), c.String("since"))
				},
			},
			{
				Name:  "status",
				Usage: "Show the last run summary and pending children (read-only)",
				Action: func(c *cli.Context) error {
					env, err := setup(c, true)
					if err != nil {
						return err
					}
					defer env.close()
					run, err := env.pipe.Tracker().LastRun(c.Context)
					if err != nil {
						return err
					}
					pending, err := pipeline.PendingChildren(c.Context, env.db, env.reg)
					if err != nil {
						return err
					}
					return printJSON(map[string]any{"lastRun": run, "pending": pending})
				},
			},
			{
				Name:  "plan",
				Usage: "Dry run: planned datasets, dependency order, file counts (no side effects)",
				Flags: datasetFlags(),
				Action: func(c *cli.Context) error {
					env, err := setup(c, false)
					if err != nil {
						return err
					}
					plan, err := pipeline.DryRun(env.cfg.JSONRoot, env.reg, c.StringSlice("dataset"))
					if err != nil {
						return err
					}
					return printJSON(plan)
				},
			},
			{
				Name:  "init-db",
				Usage: "Apply idempotent DDL for audit, staging and core tables",
				Action: func(c *cli.Context) error {
					env, err := setup(c, true)
					if err != nil {
						return err
					}
					defer env.close()
					return pg.ApplyDDL(c.Context, env.db, pg.BootstrapDDL(env.reg))
				},
			},
			{
				Name:  "serve",
				Usage: "Serve the read-only operator API (status, pending, plan)",
				Action: func(c *cli.Context) error {
					env, err := setup(c, true)
					if err != nil {
						return err
					}
					defer env.close()
					return api.RunServer(":"+env.cfg.Port, env.db, env.reg, env.cfg.JSONRoot)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func datasetFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "dataset",
			Usage: "restrict to specific dataset(s); default is the whole catalog",
		},
		&cli.StringFlag{
			Name:  "since",
			Usage: "only folders with names >= this prefix (YYYYMMDD...)",
		},
	}
}

type env struct {
	cfg  config.Config
	reg  *registry.Registry
	db   *sql.DB
	pipe *pipeline.Pipeline
}

func (e *env) close() {
	if e.db != nil {
		_ = e.db.Close()
	}
}

func setup(c *cli.Context, needDB bool) (*env, error) {
	setupLogging(c.String("log-level"))

	cfg := config.LoadWithPath(c.String("config"))
	reg, err := registry.Load(cfg.RegistryPath)
	if err != nil {
		return nil, err
	}

	e := &env{cfg: cfg, reg: reg}
	if needDB {
		if cfg.DBURL == "" {
			return nil, fmt.Errorf("database URL is not configured (APPALTI_DB_URL)")
		}
		db, err := pg.Open(c.Context, cfg.DBURL)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		e.db = db
		e.pipe = pipeline.New(cfg, reg, db, slog.Default())
	}
	return e, nil
}

func setupLogging(level string) {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
