package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newAskCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the tenant's documents",
		Long: `Ask retrieves the most relevant chunks with hybrid BM25 + vector
search, composes an answer from them, and escalates to a progressive
corpus scan when the retrieval answer is not confident enough.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				return fmt.Errorf("question must not be empty")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			eng, closeEngine, err := buildEngine(cfg)
			if err != nil {
				return err
			}
			defer closeEngine()

			answer, err := eng.Ask(cmd.Context(), tenantFlag, question)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(answer)
			}
			renderer().Answer(answer)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the full answer as JSON")
	return cmd
}
