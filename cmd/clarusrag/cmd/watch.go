package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ba3ai/Clarus-Updated-sub000/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the tenant's docs directory and sync on changes",
		Long: `Watch runs an initial sync, then re-syncs whenever files under the
tenant's docs directory change. Bursts of events are debounced into a
single sync. Stop with Ctrl-C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			eng, closeEngine, err := buildEngine(cfg)
			if err != nil {
				return err
			}
			defer closeEngine()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			report, err := eng.SyncAndIndex(ctx, tenantFlag)
			if err != nil {
				return err
			}
			renderer().Sync(report)

			docsDir, err := eng.DocsDir(tenantFlag)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "watching %s\n", docsDir)

			w := watcher.New(docsDir, debounce, func(ctx context.Context) error {
				report, err := eng.SyncAndIndex(ctx, tenantFlag)
				if err != nil {
					return err
				}
				renderer().Sync(report)
				return nil
			})

			err = w.Run(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown on signal
			}
			return err
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", watcher.DefaultDebounce, "Quiet window before a change triggers a sync")
	return cmd
}
