// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/poiesic/kbindex"
	"github.com/poiesic/kbindex/config"
	"github.com/urfave/cli/v2"
)

// opener opens the database described by cfg.
type opener func(cfg *config.Config) (*kbindex.Database, error)

func openDatabase(cfg *config.Config) (*kbindex.Database, error) {
	return kbindex.NewDatabaseFromConfig(cfg)
}

// session is what every command works with: the loaded configuration and
// the database opened from it.
type session struct {
	cfg *config.Config
	db  *kbindex.Database
}

func newApp(open opener) *cli.App {
	withSession := func(action func(c *cli.Context, s *session) error) cli.ActionFunc {
		return func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			db, err := open(cfg)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer db.Close()
			return action(c, &session{cfg: cfg, db: db})
		}
	}

	ownerFlag := func() cli.Flag {
		return &cli.StringFlag{
			Name:     "owner",
			Aliases:  []string{"o"},
			Usage:    "Owner of the documents",
			Required: true,
			EnvVars:  []string{"KBINDEX_OWNER"},
		}
	}
	idFlag := func() cli.Flag {
		return &cli.Uint64Flag{
			Name:     "id",
			Usage:    "Document ID",
			Required: true,
		}
	}

	return &cli.App{
		Name:  "kbindex",
		Usage: "Knowledge base ingestion and semantic search",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file",
				Value:   "kbindex.yaml",
				EnvVars: []string{"KBINDEX_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Path to a .env file with provider API keys",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Aliases: []string{"d"},
				Usage:   "Override the database directory from the config",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Store a document without indexing it",
				ArgsUsage: "[text...]",
				Action:    withSession(addCommand),
				Flags: []cli.Flag{
					ownerFlag(),
					&cli.StringFlag{Name: "workspace", Aliases: []string{"w"}, Usage: "Workspace of the document"},
					&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "Document title"},
					&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Read content from a file instead of arguments"},
					&cli.BoolFlag{Name: "ingest", Usage: "Index the document right away"},
				},
			},
			{
				Name:      "update",
				Usage:     "Replace a document's content or metadata and re-index it",
				ArgsUsage: "[text...]",
				Action:    withSession(updateCommand),
				Flags: []cli.Flag{
					ownerFlag(),
					idFlag(),
					&cli.StringFlag{Name: "workspace", Aliases: []string{"w"}, Usage: "Move the document to a workspace"},
					&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "New document title"},
					&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Read new content from a file instead of arguments"},
					&cli.StringFlag{Name: "provider", Usage: "Preferred embedding provider"},
					&cli.StringFlag{Name: "model", Usage: "Embedding model (provider default when empty)"},
				},
			},
			{
				Name:   "ingest",
				Usage:  "Chunk, embed and index a document",
				Action: withSession(ingestCommand),
				Flags: []cli.Flag{
					ownerFlag(),
					idFlag(),
					&cli.StringFlag{Name: "provider", Usage: "Preferred embedding provider"},
					&cli.StringFlag{Name: "model", Usage: "Embedding model (provider default when empty)"},
					&cli.BoolFlag{Name: "overwrite", Usage: "Replace an existing chunk set"},
					&cli.BoolFlag{Name: "background", Aliases: []string{"b"}, Usage: "Run on the worker pool and follow progress events"},
					&cli.IntFlag{Name: "max-chars", Usage: "Override the chunk size"},
					&cli.IntFlag{Name: "overlap", Usage: "Override the chunk overlap (0 disables it)"},
				},
			},
			{
				Name:      "search",
				Usage:     "Find the chunks most similar to a query",
				ArgsUsage: "<query...>",
				Action:    withSession(searchCommand),
				Flags: []cli.Flag{
					ownerFlag(),
					&cli.StringFlag{Name: "workspace", Aliases: []string{"w"}, Usage: "Restrict to one workspace"},
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Maximum number of hits (1-20)", Value: 5},
				},
			},
			{
				Name:   "list",
				Usage:  "List the documents of an owner",
				Action: withSession(listCommand),
				Flags: []cli.Flag{
					ownerFlag(),
					&cli.BoolFlag{Name: "deleted", Usage: "Include soft-deleted documents"},
				},
			},
			{
				Name:   "delete",
				Usage:  "Delete a document and its chunks",
				Action: withSession(deleteCommand),
				Flags: []cli.Flag{
					ownerFlag(),
					idFlag(),
					&cli.BoolFlag{Name: "soft", Usage: "Hide the document but keep it in storage"},
				},
			},
			{
				Name:   "reindex",
				Usage:  "Re-embed every document of an owner",
				Action: withSession(reindexCommand),
				Flags: []cli.Flag{
					ownerFlag(),
					&cli.StringFlag{Name: "provider", Usage: "Preferred embedding provider"},
					&cli.StringFlag{Name: "model", Usage: "Embedding model (provider default when empty)"},
					&cli.IntFlag{Name: "batch-size", Usage: "Number of documents per batch", Value: 50},
				},
			},
		},
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	if err := config.LoadEnv(c.String("env-file")); err != nil {
		return nil, err
	}
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dir := c.String("data-dir"); dir != "" {
		cfg.DataDir = dir
	}
	return cfg, nil
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	// Map string to slog.Level
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	// Configure slog with the specified level
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
