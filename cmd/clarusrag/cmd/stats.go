package cmd

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ba3ai/Clarus-Updated-sub000/internal/telemetry"
)

func newStatsCmd() *cobra.Command {
	var recent int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show answer-mode statistics for a tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			recorder, err := telemetry.Open(filepath.Join(cfg.Storage.DataDir, "telemetry.db"))
			if err != nil {
				return err
			}
			defer func() { _ = recorder.Close() }()

			stats, err := recorder.ModeStats(tenantFlag)
			if err != nil {
				return err
			}
			events, err := recorder.RecentEvents(tenantFlag, recent)
			if err != nil {
				return err
			}

			renderer().Stats(stats, events)
			return nil
		},
	}

	cmd.Flags().IntVar(&recent, "recent", 10, "How many recent questions to list")
	return cmd
}
