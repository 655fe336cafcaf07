package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/late7/ai-doc-reader/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "ai-doc-reader",
	Short: "Financial figure extraction from company documents",
	Long:  "Serves a dashboard and CLI for extracting structured financial figures from uploaded documents via a RAG workspace or direct Claude file upload.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
