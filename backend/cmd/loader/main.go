package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"spoke-graph/backend/internal/graph"
	"spoke-graph/backend/internal/loader"
	"spoke-graph/backend/pkg/config"
	apperrors "spoke-graph/backend/pkg/errors"
	"spoke-graph/backend/pkg/logger"
)

const (
	storeNeo4j  = "neo4j"
	storeBadger = "badger"
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:   "loader",
		Usage:  "Import a newline-delimited JSON graph export into the graph store",
		Writer: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Path to the newline-delimited JSON export",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "database",
				Aliases: []string{"d"},
				Usage:   "Neo4j database to create and load into (empty uses NEO4J_DATABASE or the server default)",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Stop after this many nodes and edges were added (-1 loads everything)",
				Value: loader.NoLimit,
			},
			&cli.StringFlag{
				Name:  "store",
				Usage: "Target store (neo4j, badger)",
				Value: storeNeo4j,
			},
			&cli.StringFlag{
				Name:  "badger-dir",
				Usage: "BadgerDB directory when --store=badger (defaults to BADGER_DIR)",
			},
			&cli.BoolFlag{
				Name:  "count-lines",
				Usage: "Count lines first so progress is reported as a percentage",
			},
			&cli.IntFlag{
				Name:  "progress-every",
				Usage: "Log progress every N lines (0 disables)",
				Value: loader.DefaultOptions().ProgressEvery,
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Logging environment (development, production)",
				EnvVars: []string{"ENV"},
				Value:   "development",
			},
		},
		Before: func(c *cli.Context) error {
			return logger.Init(c.String("log-level"))
		},
		After: func(c *cli.Context) error {
			logger.Sync()
			return nil
		},
		Action: loadCommand,
	}
}

// importTarget is a store plus the cleanup that releases it
type importTarget struct {
	store graph.Store
	close func() error
}

func loadCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logger.Named("loader")

	target, err := openTarget(ctx, c, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := target.close(); err != nil {
			log.Warn("Failed to close store", zap.Error(err))
		}
	}()

	if err := loader.EnsureSchema(ctx, target.store); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	res, err := loader.LoadFromSource(ctx, c.String("file"), target.store, loader.Options{
		Limit:         c.Int("limit"),
		CountLines:    c.Bool("count-lines"),
		ProgressEvery: c.Int("progress-every"),
		Logger:        log,
	})
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}

	fmt.Fprintf(c.App.Writer, "Total nodes added: %d\n", res.NodesAdded)
	fmt.Fprintf(c.App.Writer, "Total edges added: %d\n", res.EdgesAdded)
	return nil
}

// openTarget connects to the store selected by --store
func openTarget(ctx context.Context, c *cli.Context, log *zap.Logger) (*importTarget, error) {
	switch c.String("store") {
	case storeBadger:
		dir := c.String("badger-dir")
		if dir == "" {
			dir = os.Getenv("BADGER_DIR")
		}
		if dir == "" {
			return nil, apperrors.NewConfigMissingRequired("badger-dir")
		}
		store, err := graph.OpenBadgerStore(dir, false)
		if err != nil {
			return nil, err
		}
		log.Info("Opened badger store", zap.String("dir", dir))
		return &importTarget{store: store, close: store.Close}, nil

	case storeNeo4j:
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		repo, err := graph.Connect(ctx, graph.ConnectOptions{
			URI:      cfg.Neo4jURI,
			User:     cfg.Neo4jUser,
			Password: cfg.Neo4jPassword,
			Timeout:  cfg.Neo4jTimeout,
		})
		if err != nil {
			return nil, err
		}

		database := c.String("database")
		if database == "" {
			database = cfg.Neo4jDatabase
		}
		if err := repo.EnsureDatabase(ctx, database); err != nil {
			_ = repo.Close()
			return nil, err
		}
		log.Info("Connected to Neo4j",
			zap.String("uri", cfg.Neo4jURI),
			zap.String("database", repo.Database()),
		)
		return &importTarget{store: repo, close: repo.Close}, nil

	default:
		return nil, apperrors.NewConfigValidationFailed("store", fmt.Sprintf("unknown store %q, want neo4j or badger", c.String("store")))
	}
}
