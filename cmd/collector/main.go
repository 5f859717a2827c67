package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "collector",
	Short:         "Rate-limited collector for pages behind an authenticated session",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("store", "sqlite", "record store: sqlite, postgres or redis")
	rootCmd.PersistentFlags().String("db", "collector.db", "sqlite database file")
	rootCmd.PersistentFlags().String("batch", "", "batch id (default: latest batch of the target source)")

	rootCmd.AddCommand(newRunCmd(), newImportCmd())
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "collector:", err)
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}
