// Package main is the entry point for the anatomical marker server.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	debug   bool
	envFile string

	logger   *zap.Logger
	logLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "anatomap",
	Short: "Anatomical map marker server",
	Long: `anatomap places dataset markers on anatomical maps.

Datasets are lists of anatomical terms. Every term is placed on the
anatomical hierarchy, and each zoom level shows one marker per branch,
so zooming in walks the markers from whole organs down to cell types.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is normal.
		_ = godotenv.Load(envFile)

		if debug {
			logLevel.SetLevel(zapcore.DebugLevel)
		} else if v := os.Getenv("ANATOMAP_LOG_LEVEL"); v != "" {
			if err := logLevel.UnmarshalText([]byte(v)); err != nil {
				return fmt.Errorf("invalid ANATOMAP_LOG_LEVEL: %w", err)
			}
		}

		config := zap.NewProductionConfig()
		config.Level = logLevel
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file loaded before configuration")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(inspectCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
