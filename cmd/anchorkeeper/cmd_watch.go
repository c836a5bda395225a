package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"anchorkeeper/internal/keeper"
	"anchorkeeper/internal/logging"
	"anchorkeeper/internal/store"
	"anchorkeeper/internal/watcher"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// watchCmd runs the daemon until interrupted
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the saves directory and correct drifted anchors",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	k := keeper.New(ctx, st, keeperOptions())
	q := watcher.NewQueue()

	w, err := watcher.New(cfg.SavesDirectory, cfg.SaveExtension, cfg.GetDebounceInterval(), q)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		w.Stop()
		return fmt.Errorf("failed to watch %s: %w", cfg.SavesDirectory, err)
	}

	if cfg.ScanOnStart {
		paths, err := watcher.ScanExisting(cfg.SavesDirectory, cfg.SaveExtension)
		if err != nil {
			w.Stop()
			return err
		}
		logging.Boot("Queueing %d existing save file(s)", len(paths))
		for _, p := range paths {
			q.Put(p)
		}
	}

	logging.Boot("anchorkeeper watching %s (debounce %s)", cfg.SavesDirectory, cfg.GetDebounceInterval())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return k.Run(gctx, q)
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-w.Done():
		}
		if n := w.PendingPaths(); n > 0 {
			logging.Watcher("Dropping %d save file(s) still settling", n)
		}
		w.Stop()
		q.Close()
		return w.Err()
	})
	err = g.Wait()

	ws, ks := w.Stats(), k.Stats()
	logging.Boot("Shutting down: %d events queued, %d passes, %d failures, %d anchors corrected",
		ws.Enqueued, ks.Passes, ks.Failures, ks.Corrections)
	return err
}
