package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ba3ai/Clarus-Updated-sub000/pkg/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "clarusrag %s (commit %s)\n", version.Version, version.Commit)
		},
	}
}
