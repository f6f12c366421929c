package cmd

import (
	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Ingest new or changed documents and update the indexes",
		Long: `Sync walks the tenant's docs directory, ingests files whose content
fingerprint changed, embeds the new chunks and refreshes the lexical
cache. Run it after any upload or delete.`,
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

			report, err := eng.SyncAndIndex(cmd.Context(), tenantFlag)
			if err != nil {
				return err
			}
			renderer().Sync(report)
			return nil
		},
	}
}
