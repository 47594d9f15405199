package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/poiesic/ragstudio"
	"github.com/poiesic/ragstudio/config"
	"github.com/poiesic/ragstudio/core"
	"github.com/poiesic/ragstudio/ingestion"
	"github.com/poiesic/ragstudio/metrics"
	"github.com/poiesic/ragstudio/reembed"
	"github.com/poiesic/ragstudio/server"
	"github.com/urfave/cli/v2"
)

var errNothingToIngest = errors.New("no paths or --glob patterns given")

// openStudio loads the configuration and builds a Studio from it.
func openStudio(c *cli.Context, opts ...ragstudio.Option) (*ragstudio.Studio, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	studio, err := ragstudio.New(cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open studio: %w", err)
	}
	return studio, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func ingestCommand(c *cli.Context) error {
	paths := c.Args().Slice()
	patterns := c.StringSlice("glob")
	if len(paths) == 0 && len(patterns) == 0 {
		return errNothingToIngest
	}

	studio, err := openStudio(c)
	if err != nil {
		return err
	}
	defer studio.Close()

	ctx, cancel := signalContext()
	defer cancel()

	out := c.App.Writer
	total := 0
	for _, path := range paths {
		result, err := studio.Ingest(ctx, path)
		if err != nil {
			return fmt.Errorf("failed to ingest %s: %w", path, err)
		}
		fmt.Fprintf(out, "%s: %d chunks\n", result.Source, result.ChunksIndexed)
		total += result.ChunksIndexed
	}
	for _, pattern := range patterns {
		results, err := studio.IngestGlob(ctx, pattern)
		for _, result := range results {
			fmt.Fprintf(out, "%s: %d chunks\n", result.Source, result.ChunksIndexed)
			total += result.ChunksIndexed
		}
		if err != nil {
			return fmt.Errorf("failed to ingest %s: %w", pattern, err)
		}
	}
	fmt.Fprintf(out, "Indexed %d chunks into %q\n", total, studio.Config().Index.Collection)
	return nil
}

func queryCommand(c *cli.Context) error {
	question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if question == "" {
		return errors.New("a question is required")
	}

	studio, err := openStudio(c)
	if err != nil {
		return err
	}
	defer studio.Close()

	result, err := studio.Query(c.Context, question, c.String("mode"), c.Int("k"))
	if err != nil {
		return err
	}
	return printAnswer(c, result)
}

func printAnswer(c *cli.Context, result core.AnswerResult) error {
	out := c.App.Writer
	if c.Bool("json") {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Fprintln(out, result.Answer)
	if len(result.Citations) == 0 {
		return nil
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Citations:")
	for i, cite := range result.Citations {
		if cite.Page != nil {
			fmt.Fprintf(out, "  [%d] %s (page %d) %s\n", i+1, cite.Source, *cite.Page, cite.ChunkID)
		} else {
			fmt.Fprintf(out, "  [%d] %s %s\n", i+1, cite.Source, cite.ChunkID)
		}
	}
	return nil
}

func serveCommand(c *cli.Context) error {
	m, err := metrics.New()
	if err != nil {
		return err
	}

	studio, err := openStudio(c, ragstudio.WithMonitor(m))
	if err != nil {
		return err
	}
	defer studio.Close()

	cfg := studio.Config()
	addr := cfg.Server.Addr
	if c.IsSet("addr") {
		addr = c.String("addr")
	}
	uploadDir := cfg.Server.UploadDir
	if c.IsSet("upload-dir") {
		uploadDir = c.String("upload-dir")
	}

	srv, err := server.New(studio, uploadDir,
		server.WithMaxUploadBytes(int64(cfg.Server.MaxUploadMB)<<20),
		server.WithMetricsHandler(m.Handler()),
	)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	return srv.ListenAndServe(ctx, addr)
}

func watchCommand(c *cli.Context) error {
	root := c.Args().First()
	if root == "" {
		return errors.New("a directory to watch is required")
	}

	studio, err := openStudio(c)
	if err != nil {
		return err
	}
	defer studio.Close()

	ctx, cancel := signalContext()
	defer cancel()

	out := c.App.Writer
	watcher, err := studio.NewWatcher(root,
		ingestion.WithPattern(c.String("pattern")),
		ingestion.WithDebounce(c.Duration("debounce")),
		ingestion.WithWatchWorkers(c.Int("workers")),
		ingestion.WithResultHandler(func(result core.IngestResult, err error) {
			if err != nil {
				fmt.Fprintf(out, "%s: error: %v\n", result.Source, err)
				return
			}
			fmt.Fprintf(out, "%s: %d chunks\n", result.Source, result.ChunksIndexed)
		}),
	)
	if err != nil {
		return err
	}

	if c.Bool("initial") {
		results, err := studio.IngestGlob(ctx, joinPattern(root, c.String("pattern")))
		for _, result := range results {
			fmt.Fprintf(out, "%s: %d chunks\n", result.Source, result.ChunksIndexed)
		}
		if err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "Watching %s (press Ctrl+C to stop)\n", root)
	return watcher.Run(ctx)
}

func joinPattern(root, pattern string) string {
	return strings.TrimSuffix(root, string(os.PathSeparator)) + string(os.PathSeparator) + pattern
}

func reindexCommand(c *cli.Context) error {
	reindexConfig := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
		MaxRetryDelay:  c.Duration("max-retry-delay"),
		DropTarget:     c.Bool("drop-target"),
	}

	// Validate config
	if reindexConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reindexConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if reindexConfig.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	studio, err := openStudio(c)
	if err != nil {
		return err
	}
	defer studio.Close()

	cfg := studio.Config()
	source := c.String("source")
	if source == "" {
		source = cfg.Index.Collection
	}

	reindexer, err := studio.NewReindexer(source, c.String("target"), reindexConfig, c.App.ErrWriter)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.ErrWriter, "Index: %s\n", indexLocation(cfg))
	fmt.Fprintf(c.App.ErrWriter, "Embedding host: %s\n", cfg.Embedding.Host)
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", cfg.Embedding.Model)
	fmt.Fprintln(c.App.ErrWriter)

	ctx, cancel := signalContext()
	defer cancel()
	if _, err := reindexer.Run(ctx); err != nil {
		return fmt.Errorf("reindex failed: %w", err)
	}
	return nil
}

func indexLocation(cfg *config.Config) string {
	if cfg.Index.Backend == config.BackendQdrant {
		return "qdrant " + cfg.Index.Qdrant.URL
	}
	return "badger " + cfg.Index.Path
}

func collectionsCommand(c *cli.Context) error {
	studio, err := openStudio(c)
	if err != nil {
		return err
	}
	defer studio.Close()

	infos, err := studio.Collections(c.Context)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCHUNKS\tDIMENSION\tDISTANCE")
	for _, info := range infos {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", info.Name, info.Count, info.Dimension, info.Distance)
	}
	return tw.Flush()
}

func initCommand(c *cli.Context) error {
	path := c.String("config")
	if _, err := os.Stat(path); err == nil && !c.Bool("force") {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := config.Save(path, cfg); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Wrote %s\n", path)
	return nil
}
