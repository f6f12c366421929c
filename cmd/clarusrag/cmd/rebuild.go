package cmd

import (
	"github.com/spf13/cobra"
)

func newRebuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Discard the tenant's indexes and re-embed the whole corpus",
		Long: `Rebuild drops the vector index and lexical cache, re-syncs documents
and embeds every chunk again. Use it after deletions or when the
embedding model changed.`,
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

			report, err := eng.Rebuild(cmd.Context(), tenantFlag)
			if err != nil {
				return err
			}
			renderer().Sync(report)
			return nil
		},
	}
}
