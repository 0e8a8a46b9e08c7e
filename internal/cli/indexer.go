package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gupta2140/sensenet/internal/indexing"
	"github.com/gupta2140/sensenet/internal/search"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var indexerCmd = &cobra.Command{
	Use:   "indexer",
	Short: "Run indexing workers",
	Long: `Run indexing workers against the repository's activity queue.

Workers lease activities, build index documents and push them to the
configured search backend. Multiple workers (and multiple indexer
processes) cooperate through the lease protocol; an activity whose worker
dies is reclaimed after the lease times out.`,
	Run: runIndexer,
}

var (
	indexerWorkers   int
	indexerOnce      bool
	indexerLogLevel  string
	indexerLogFormat string
)

func init() {
	f := indexerCmd.Flags()
	f.IntVar(&indexerWorkers, "workers", 0, "Worker count (default: config worker_count)")
	f.BoolVar(&indexerOnce, "once", false, "Drain the queue once and exit")
	f.StringVar(&indexerLogLevel, "log-level", envOrDefault("SNSTORE_LOG_LEVEL", "info"), "Log level (debug|info|warn|error)")
	f.StringVar(&indexerLogFormat, "log-format", envOrDefault("SNSTORE_LOG_FORMAT", "text"), "Log format (json|text)")
}

func buildLogger() *slog.Logger {
	var level slog.Level
	switch indexerLogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}
	if indexerLogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func runIndexer(cmd *cobra.Command, args []string) {
	logger := buildLogger()

	c := initContext()
	defer c.Close()

	if c.Config.IndexURL == "" {
		exitError("no index_url configured; set one in %s", c.Config.StorePath())
	}

	sink, err := search.NewWeaviateSink(c.Config.IndexURL, "")
	if err != nil {
		exitError("failed to create search client: %v", err)
	}

	ctx := context.Background()
	if err := sink.Ping(ctx); err != nil {
		exitError("failed to connect to search backend: %v", err)
	}
	if err := sink.EnsureClass(ctx); err != nil {
		exitError("failed to ensure index class: %v", err)
	}

	retrying := search.NewRetrySink(sink, search.DefaultRetryConfig())

	workers := indexerWorkers
	if workers <= 0 {
		workers = c.Config.WorkerCount
	}

	cfg := indexing.DefaultWorkerConfig()
	cfg.LeaseTimeout = c.Config.LeaseTimeout()

	if indexerOnce {
		w := indexing.NewWorker(c.Store, retrying, nil, cfg, logger)
		done, err := w.RunOnce(ctx)
		if err != nil {
			exitError("indexer run failed: %v", err)
		}
		fmt.Printf("Completed %d activities.\n", done)
		return
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting indexing workers",
		"workers", workers, "backend", c.Config.IndexURL, "lease_timeout", cfg.LeaseTimeout)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		id := i
		g.Go(func() error {
			w := indexing.NewWorker(c.Store, retrying, nil, cfg, logger.With("worker", id))
			return w.Run(gctx)
		})
	}

	start := time.Now()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		exitError("indexer failed: %v", err)
	}
	logger.Info("indexer stopped", "uptime", time.Since(start).Truncate(time.Second))
}
