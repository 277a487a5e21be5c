package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ArcticLampyrid/aur-mirror-meta/internal/config"
	"github.com/ArcticLampyrid/aur-mirror-meta/internal/gitproto"
	"github.com/ArcticLampyrid/aur-mirror-meta/internal/index"
	"github.com/ArcticLampyrid/aur-mirror-meta/internal/supplement"
	"github.com/ArcticLampyrid/aur-mirror-meta/internal/syncer"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one synchronization pass against the configured upstream",
		RunE:  runSync,
	}
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd)
	if err != nil {
		return err
	}
	if cfg.UpstreamURL == "" {
		return fmt.Errorf("--upstream-url (or AURMIRROR_UPSTREAM_URL) is required")
	}

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		logger.Warn("received shutdown signal, cancelling sync")
		cancel()
	}()

	idx, err := index.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer idx.Close()

	git := gitproto.NewClient(cfg.UpstreamURL, cfg.UpstreamToken, logger)

	s := &syncer.Syncer{
		Git:         git,
		Index:       idx,
		Logger:      logger,
		Concurrency: cfg.Concurrency,
	}

	res, runErr := s.Run(ctx)
	if runErr != nil {
		logger.Error("sync pass failed", zap.Error(runErr))
	}
	logger.Info("sync pass complete",
		zap.Strings("added", res.Added),
		zap.Strings("changed", res.Changed),
		zap.Strings("removed", res.Removed),
		zap.Strings("no_srcinfo", res.NoSrcinfo),
		zap.Strings("fetch_failed", res.FetchFailed),
		zap.Int("parse_warnings", res.ParseWarnings),
	)

	if runErr == nil && supplementEnabled(cfg.SupplementSources) {
		if err := mergeSupplement(ctx, idx, cfg.SupplementSources, logger); err != nil {
			logger.Warn("supplement merge unavailable, index left untouched", zap.Error(err))
			res.SupplementFailed = true
		}
	}

	exitCode = res.ExitCode()
	if runErr != nil && exitCode == 0 {
		exitCode = 1
	}
	return nil
}

// supplementEnabled reports whether sources names at least one real
// supplement source. The literal token "none" (spec.md §6) disables
// supplementation outright; a sources list consisting only of "none"
// entries must not be treated as a configured-but-failing supplement
// stage, since no fetch was ever meant to run.
func supplementEnabled(sources []string) bool {
	for _, s := range sources {
		if s != "none" {
			return true
		}
	}
	return false
}

func mergeSupplement(ctx context.Context, idx *index.Store, sources []string, logger *zap.Logger) error {
	f := supplement.NewFetcher(logger)
	entries, err := f.Fetch(ctx, sources)
	if err != nil {
		return err
	}
	return idx.ReplaceSupplement(ctx, entries)
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
