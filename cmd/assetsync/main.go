package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/openmined/assetsync/internal/version"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "assetsync",
	Short: "Publish optimized images to an S3 compatible bucket",
	Long: `assetsync walks the configured folders below a root directory and uploads an
optimized copy of every image the bucket does not have yet.`,
	Version: version.Detailed(),
	RunE:    runSync,
}

func init() {
	rootCmd.Flags().SortFlags = false
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default ./assetsync.yaml or ~/.config/assetsync/assetsync.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log debug messages")
	rootCmd.PersistentFlags().String("log-file", "", "also write logs to this file")
	addSyncFlags(rootCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
