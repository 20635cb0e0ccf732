package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"diagnostics/internal/config"
	"diagnostics/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:          "diagnostics",
	Short:        "Adaptive diagnostic assessment engine",
	Long:         "Runs per-subject adaptive diagnostic sessions for students and signals when a student's diagnostics are complete.",
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(seedCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and builds the process logger
func setup() (*config.Config, *logger.Logger, error) {
	cfg := config.Load()
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}
