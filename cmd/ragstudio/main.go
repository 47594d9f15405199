package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/ragstudio/config"
	"github.com/poiesic/ragstudio/core"
	"github.com/poiesic/ragstudio/ingestion"
	"github.com/poiesic/ragstudio/reembed"
	"github.com/urfave/cli/v2"
)

func main() {
	// A missing .env file is fine; real environment variables still apply.
	_ = godotenv.Load()

	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "ragstudio",
		Usage: "Index documents and answer questions with cited evidence",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file",
				Value:   "ragstudio.yaml",
				EnvVars: []string{"RAG_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
				EnvVars: []string{"RAG_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Set logging format (text, json)",
				Value:   "text",
				EnvVars: []string{"RAG_LOG_FORMAT"},
			},
			&cli.StringFlag{
				Name:    "embedding-host",
				Usage:   "Embedding service host URL",
				EnvVars: []string{"RAG_EMBEDDING_HOST"},
			},
			&cli.StringFlag{
				Name:    "embedding-model",
				Usage:   "Embedding model name",
				EnvVars: []string{"RAG_EMBEDDING_MODEL"},
			},
			&cli.StringFlag{
				Name:    "api-key",
				Usage:   "API key for the embedding and LLM services",
				EnvVars: []string{"RAG_API_KEY", "OPENAI_API_KEY"},
			},
			&cli.StringFlag{
				Name:    "rerank-provider",
				Usage:   "Pairwise scorer for rerank mode (crossencoder, llm)",
				EnvVars: []string{"RAG_RERANK_PROVIDER"},
			},
			&cli.StringFlag{
				Name:    "rerank-host",
				Usage:   "Scoring service host URL",
				EnvVars: []string{"RAG_RERANK_HOST"},
			},
			&cli.StringFlag{
				Name:    "rerank-model",
				Usage:   "Scoring model name",
				EnvVars: []string{"RAG_RERANK_MODEL"},
			},
			&cli.StringFlag{
				Name:    "index-backend",
				Usage:   "Vector index backend (badger, qdrant)",
				EnvVars: []string{"RAG_INDEX_BACKEND"},
			},
			&cli.StringFlag{
				Name:    "index-path",
				Usage:   "Directory of the embedded badger index",
				EnvVars: []string{"RAG_INDEX_PATH"},
			},
			&cli.StringFlag{
				Name:    "collection",
				Usage:   "Collection to read and write",
				EnvVars: []string{"RAG_COLLECTION"},
			},
			&cli.StringFlag{
				Name:    "qdrant-url",
				Usage:   "Qdrant REST endpoint",
				EnvVars: []string{"QDRANT_URL"},
			},
			&cli.StringFlag{
				Name:    "qdrant-api-key",
				Usage:   "Qdrant API key",
				EnvVars: []string{"QDRANT_API_KEY"},
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Load, chunk, embed and index files",
				ArgsUsage: "[path...]",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:    "glob",
						Aliases: []string{"g"},
						Usage:   "Ingest every file matching a doublestar pattern (repeatable)",
					},
				},
			},
			{
				Name:      "query",
				Usage:     "Answer a question from the indexed documents",
				ArgsUsage: "<question>",
				Action:    queryCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "mode",
						Aliases: []string{"m"},
						Usage:   "Retrieval mode (vector, hybrid, rerank)",
						Value:   core.ModeVector.String(),
					},
					&cli.IntFlag{
						Name:    "k",
						Aliases: []string{"top-k"},
						Usage:   "Number of evidence chunks (0 uses the configured default)",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print the answer as JSON",
					},
				},
			},
			{
				Name:   "serve",
				Usage:  "Serve /upload, /chat, /healthz and /metrics over HTTP",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "addr",
						Usage:   "Listen address (overrides server.addr)",
						EnvVars: []string{"RAG_SERVER_ADDR"},
					},
					&cli.StringFlag{
						Name:  "upload-dir",
						Usage: "Directory uploaded files are stored in (overrides server.upload_dir)",
					},
				},
			},
			{
				Name:      "watch",
				Usage:     "Ingest files as they are created or modified under a directory",
				ArgsUsage: "<dir>",
				Action:    watchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "pattern",
						Aliases: []string{"p"},
						Usage:   "Doublestar pattern, relative to the directory, of files to ingest",
						Value:   "**",
					},
					&cli.DurationFlag{
						Name:  "debounce",
						Usage: "Quiet period after the last change before a file is ingested",
						Value: ingestion.DefaultDebounce,
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of files ingested concurrently",
						Value: 1,
					},
					&cli.BoolFlag{
						Name:  "initial",
						Usage: "Ingest files already matching the pattern before watching",
					},
				},
			},
			{
				Name:   "reindex",
				Usage:  "Re-embed every chunk of a collection into another collection",
				Action: reindexCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "source",
						Usage: "Collection to read (defaults to the configured collection)",
					},
					&cli.StringFlag{
						Name:     "target",
						Usage:    "Collection to write",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "drop-target",
						Usage: "Delete the target collection before copying",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of chunks to process in each batch",
						Value: reembed.DefaultBatchSize,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N chunks",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
					&cli.DurationFlag{
						Name:  "max-retry-delay",
						Usage: "Upper bound on a single backoff delay",
						Value: 30 * time.Second,
					},
				},
			},
			{
				Name:   "collections",
				Usage:  "List collections with their chunk count and dimension",
				Action: collectionsCommand,
			},
			{
				Name:   "init",
				Usage:  "Write the effective configuration to the config path",
				Action: initCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Overwrite an existing file",
					},
				},
			},
		},
	}
}

// loadConfig reads the config file and applies flag and environment
// overrides on top of it.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	overrides := []struct {
		flag string
		dst  *string
	}{
		{"embedding-host", &cfg.Embedding.Host},
		{"embedding-model", &cfg.Embedding.Model},
		{"api-key", &cfg.Embedding.APIKey},
		{"rerank-provider", &cfg.Rerank.Provider},
		{"rerank-host", &cfg.Rerank.Host},
		{"rerank-model", &cfg.Rerank.Model},
		{"index-backend", &cfg.Index.Backend},
		{"index-path", &cfg.Index.Path},
		{"collection", &cfg.Index.Collection},
		{"qdrant-url", &cfg.Index.Qdrant.URL},
		{"qdrant-api-key", &cfg.Index.Qdrant.APIKey},
	}
	for _, o := range overrides {
		if c.IsSet(o.flag) {
			*o.dst = c.String(o.flag)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
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

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch format := strings.ToLower(c.String("log-format")); format {
	case "text", "":
		handler = slog.NewTextHandler(c.App.ErrWriter, opts)
	case "json":
		handler = slog.NewJSONHandler(c.App.ErrWriter, opts)
	default:
		return fmt.Errorf("invalid log format %q: must be one of text, json", format)
	}
	slog.SetDefault(slog.New(handler))

	return nil
}
