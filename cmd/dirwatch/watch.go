package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/anthropic/dirwatch/internal/daemon"
	"github.com/anthropic/dirwatch/internal/watcher"
)

type watchOptions struct {
	mergePaths bool
	skipHidden bool
	capacity   int
	backend    string
	interval   time.Duration
	count      int
}

func (o watchOptions) flags() watcher.Flags {
	var f watcher.Flags
	if o.mergePaths {
		f |= watcher.MergePaths
	}
	if o.skipHidden {
		f |= watcher.SkipHidden
	}
	return f
}

func watchCmd() *cobra.Command {
	opts := watchOptions{}

	cmd := &cobra.Command{
		Use:   "watch [dir...]",
		Short: "Print files closed after writing, without the daemon",
		Long: `Watch one or more directories in the foreground and print every file
that is closed after being written. Defaults to the current directory.

Nothing is journaled; use "start" for the daemon.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{"."}
			}
			ctx, cancel := daemon.SignalContext(cmd.Context())
			defer cancel()
			return runWatch(ctx, cmd.OutOrStdout(), opts, args)
		},
	}

	cmd.Flags().BoolVar(&opts.mergePaths, "merge-paths", true, "Print the directory joined with the file name")
	cmd.Flags().BoolVar(&opts.skipHidden, "skip-hidden", true, "Ignore names starting with a dot")
	cmd.Flags().IntVar(&opts.capacity, "capacity", 128, "Maximum number of watched directories")
	cmd.Flags().StringVar(&opts.backend, "backend", watcher.BackendNative, "Event backend: native or fsnotify")
	cmd.Flags().DurationVar(&opts.interval, "interval", time.Millisecond, "Sleep between polls")
	cmd.Flags().IntVar(&opts.count, "count", 0, "Exit after this many events (0 means run until interrupted)")

	return cmd
}

// runWatch polls a fresh watcher until ctx is done or opts.count events
// were printed. A directory that cannot be watched fails the whole run.
func runWatch(ctx context.Context, out io.Writer, opts watchOptions, dirs []string) error {
	if opts.interval <= 0 {
		return errors.New("interval must be positive")
	}

	w, err := watcher.New(opts.capacity, watcher.WithBackend(opts.backend))
	if err != nil {
		return err
	}
	defer w.Close()

	printed := 0
	emit := func(filename string, _ any, id int) {
		fmt.Fprintf(out, "%d\t%s\n", id, filename)
		printed++
	}

	for _, dir := range dirs {
		id, err := w.AddWatchpoint(dir, opts.flags())
		if err != nil {
			return fmt.Errorf("couldn't set watchpoint: %w", err)
		}
		if err := w.SetCallback(id, emit, nil, int(id)); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(opts.interval)
	defer ticker.Stop()

	for {
		for {
			ok, err := w.Poll(nil)
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			if opts.count > 0 && printed >= opts.count {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
