package main

import (
	"log/slog"

	"github.com/openmined/assetsync/internal/compress"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newCompressCmd())
}

func newCompressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compress <input dir> <output dir>",
		Short: "Write optimized copies of local images, no upload",
		Long: `compress mirrors every image below the input directory into the output
directory, downsized and recompressed. Outputs newer than their input are kept.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			closeLog, err := setupLogging(cmd, cfg)
			if err != nil {
				return err
			}
			defer closeLog()

			if err := cfg.ValidateLocal(); err != nil {
				return err
			}

			c, err := compress.New(args[0], args[1], cfg.Compress, compress.WithExclude(cfg.Exclude))
			if err != nil {
				return err
			}

			cmd.SilenceUsage = true
			showHeader(cmd.OutOrStdout(), false)

			summary, runErr := c.Run(cmd.Context())
			if err := finish(cmd, summary); err != nil {
				return err
			}
			if runErr != nil {
				slog.Error("compress failed", "error", runErr)
			}
			return runErr
		},
	}
	cmd.Flags().SortFlags = false
	cmd.Flags().Int("max-width", 0, "maximum output width in pixels (default 1600)")
	cmd.Flags().Int("quality", 0, "output quality 1..100 (default 70)")
	cmd.Flags().StringSlice("exclude", nil, "glob of paths to leave out, repeatable")
	cmd.Flags().Bool("all", false, "list skipped files in the summary")
	cmd.Flags().String("report", "", "write a JSON run report to this file")
	return cmd
}
