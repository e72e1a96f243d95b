// Command cardflowd runs the card-processing daemon: it watches the inbox
// directories for card images, pushes each one through the pipeline, and
// serves until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"cardflow/internal/app"
	"cardflow/internal/config"
	"cardflow/internal/ingest"
	"cardflow/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "cardflowd:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "cardflow.toml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Pipeline.Run(gctx)
		return nil
	})

	if len(cfg.Paths.InboxDirs) > 0 {
		events, errs, err := ingest.StartWatcher(gctx, ingest.WatchConfig{
			Roots:       cfg.Paths.InboxDirs,
			InitialScan: true,
		}, logger)
		if err != nil {
			return err
		}
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case path, ok := <-events:
					if !ok {
						return nil
					}
					id, err := a.Pipeline.Submit(gctx, path, ingest.MIMEForPath(path))
					if err != nil {
						logger.Error("inbox submit failed", "path", path, "error", err)
						continue
					}
					logger.Info("inbox file submitted", "path", path, "job_id", id)
				case werr, ok := <-errs:
					if ok && werr != nil {
						logger.Error("inbox watcher error", "error", werr)
					}
				}
			}
		})
	}

	logger.Info("cardflowd running",
		"concurrency", cfg.Pipeline.Concurrency,
		"backend", cfg.Database.Backend,
		"inbox_dirs", cfg.Paths.InboxDirs)
	return g.Wait()
}
