package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/openmined/assetsync/internal/assetsync"
	"github.com/openmined/assetsync/internal/report"
	"github.com/openmined/assetsync/internal/store"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newSyncCmd())
}

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Upload optimized images the bucket does not have yet (default)",
		Args:  cobra.NoArgs,
		RunE:  runSync,
	}
	cmd.Flags().SortFlags = false
	addSyncFlags(cmd)
	return cmd
}

func addSyncFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("root", "r", "", "local root directory (default .)")
	cmd.Flags().StringSliceP("folder", "f", nil, "folder below root to sync, repeatable, in order")
	cmd.Flags().StringSlice("exclude", nil, "glob of keys to leave out, repeatable")
	cmd.Flags().String("lock", "", "run lock marker path (default .assetsync.lock)")
	cmd.Flags().Bool("dry-run", false, "check and optimize but do not upload")
	cmd.Flags().String("endpoint", "", "S3 endpoint URL")
	cmd.Flags().String("bucket", "", "bucket name")
	cmd.Flags().String("region", "", "bucket region (default auto)")
	cmd.Flags().String("access-key", "", "access key id")
	cmd.Flags().Bool("path-style", false, "use path style bucket addressing")
	cmd.Flags().Bool("all", false, "list skipped assets in the summary")
	cmd.Flags().String("report", "", "write a JSON run report to this file")
}

func runSync(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	closeLog, err := setupLogging(cmd, cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	if err := cfg.ResolveSecret(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		return err
	}

	// config is good, usage output is noise from here on
	cmd.SilenceUsage = true
	showHeader(cmd.OutOrStdout(), cfg.DryRun)

	st, err := store.NewS3StoreWithConfig(cmd.Context(), &cfg.Store)
	if err != nil {
		return err
	}

	summary, runErr := assetsync.New(cfg, st).Run(cmd.Context())
	if err := finish(cmd, summary); err != nil {
		return err
	}
	if runErr != nil {
		slog.Error("sync failed", "error", runErr)
	}
	return runErr
}

// finish prints the summary table and writes the JSON report if asked to.
func finish(cmd *cobra.Command, summary *report.Summary) error {
	if summary == nil {
		return nil
	}
	all, _ := cmd.Flags().GetBool("all")
	if err := summary.Render(cmd.OutOrStdout(), all); err != nil {
		return err
	}

	path, _ := cmd.Flags().GetString("report")
	if path == "" {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	defer f.Close()
	if err := summary.WriteJSON(f); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return f.Close()
}
