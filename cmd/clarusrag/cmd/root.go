// Package cmd provides the CLI commands for clarusrag.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ba3ai/Clarus-Updated-sub000/internal/config"
	"github.com/ba3ai/Clarus-Updated-sub000/internal/engine"
	"github.com/ba3ai/Clarus-Updated-sub000/internal/logging"
	"github.com/ba3ai/Clarus-Updated-sub000/internal/output"
	"github.com/ba3ai/Clarus-Updated-sub000/internal/provider"
	"github.com/ba3ai/Clarus-Updated-sub000/internal/telemetry"
	"github.com/ba3ai/Clarus-Updated-sub000/pkg/version"
)

var (
	configPath     string
	tenantFlag     string
	plainFlag      bool
	debugFlag      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the clarusrag CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clarusrag",
		Short: "Hybrid RAG engine over tenant document sets",
		Long: `clarusrag indexes tenant documents into a hybrid BM25 + vector index
and answers questions from them, with multi-query expansion, reciprocal
rank fusion and a progressive full-corpus scanner for hard questions.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("clarusrag version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	cmd.PersistentFlags().StringVarP(&tenantFlag, "tenant", "t", "default", "Tenant whose documents to operate on")
	cmd.PersistentFlags().BoolVar(&plainFlag, "plain", false, "Disable styled terminal output")
	cmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logging")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = func(*cobra.Command, []string) {
		if loggingCleanup != nil {
			loggingCleanup()
		}
	}

	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newRebuildCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if debugFlag {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

func setupLogging(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logCfg := logging.DefaultConfig(cfg.Storage.DataDir)
	logCfg.Level = cfg.Logging.Level
	if cfg.Logging.File != "" {
		logCfg.FilePath = cfg.Logging.File
	}
	// Interactive commands keep stderr for output, not JSON logs.
	logCfg.WriteToStderr = debugFlag

	cleanup, err := logging.SetupDefault(logCfg)
	if err != nil {
		return err
	}
	loggingCleanup = cleanup
	return nil
}

// buildEngine wires the provider stack and telemetry into an engine.
// The returned close func flushes telemetry.
func buildEngine(cfg *config.Config) (*engine.Engine, func(), error) {
	client := provider.NewClient(provider.Config{
		BaseURL:         cfg.Provider.BaseURL,
		APIKey:          cfg.Provider.APIKey,
		EmbedModel:      cfg.Provider.EmbedModel,
		ChatModel:       cfg.Provider.ChatModel,
		RequestTimeout:  cfg.Provider.RequestTimeout,
		ChatMinInterval: cfg.Provider.ChatMinInterval,
		EmbedRatePerSec: cfg.Provider.EmbedRatePerSec,
		MaxConcurrency:  cfg.Provider.MaxConcurrency,
		MaxBatchItems:   cfg.Provider.MaxBatchItems,
		MaxBatchTokens:  cfg.Provider.MaxBatchTokens,
		MaxItemTokens:   cfg.Provider.MaxItemTokens,
	})

	var embedder provider.Embedder = provider.NewBatchEmbedder(client, provider.Config{
		MaxConcurrency: cfg.Provider.MaxConcurrency,
		MaxBatchItems:  cfg.Provider.MaxBatchItems,
		MaxBatchTokens: cfg.Provider.MaxBatchTokens,
		MaxItemTokens:  cfg.Provider.MaxItemTokens,
	})
	if cfg.Provider.QueryCacheSize > 0 {
		embedder = provider.NewCachedEmbedder(embedder, cfg.Provider.QueryCacheSize)
	}

	recorder, err := telemetry.Open(filepath.Join(cfg.Storage.DataDir, "telemetry.db"))
	if err != nil {
		// Telemetry is best effort; the engine runs without it.
		fmt.Fprintf(os.Stderr, "warning: telemetry disabled: %v\n", err)
		recorder = nil
	}

	eng := engine.New(cfg, embedder, client, recorder)
	return eng, func() { _ = recorder.Close() }, nil
}

func renderer() *output.Renderer {
	if plainFlag {
		return output.NewPlainRenderer(os.Stdout)
	}
	return output.NewRenderer(os.Stdout)
}
