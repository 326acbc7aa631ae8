// Package cli provides the command-line interface for geococo.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/menta2k/geococo"
	"github.com/menta2k/geococo/internal/cli/commands"
	"github.com/menta2k/geococo/internal/config"
	"github.com/menta2k/geococo/internal/logging"
	"github.com/menta2k/geococo/internal/metrics"
)

var cfgFile string

// Version information (set at build time).
var (
	Version   = geococo.Version
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "geococo",
		Short: "geococo - COCO dataset tooling for overhead imagery",
		Long: `geococo prepares COCO-style overhead-imagery datasets for training.

It cuts large source rasters into fixed-size chips, repairs annotation boxes
that extend past their image, and remaps category tables. Every command
reads an annotation file and writes a new one; inputs are never modified.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			file := cfgFile
			if file == "" {
				file = config.GetConfigPath()
			}
			cfg, err := config.Load(file, cmd.Flags())
			if err != nil {
				return err
			}

			logger, err := logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			if file != "" {
				logger.Debug("using config file", "path", file)
			}

			m, err := metrics.New(nil)
			if err != nil {
				return err
			}

			cmd.SetContext(commands.WithRuntime(cmd.Context(), &commands.Runtime{
				Config:  cfg,
				Logger:  logger,
				Metrics: m,
			}))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			rt := commands.GetRuntime(cmd.Context())
			if rt.Config.MetricsFile == "" {
				return nil
			}
			if err := rt.Metrics.WriteTextfile(rt.Config.MetricsFile); err != nil {
				return err
			}
			rt.Logger.Debug("metrics written", "path", rt.Config.MetricsFile)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
`)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./geococo.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text|json)")
	rootCmd.PersistentFlags().Int("workers", 4, "Images decoded in parallel")
	rootCmd.PersistentFlags().Bool("overwrite", false, "Overwrite existing output annotation files")
	rootCmd.PersistentFlags().String("metrics-file", "", "Write run metrics in Prometheus text format to this file")

	_ = rootCmd.RegisterFlagCompletionFunc("log-format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "json"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(commands.NewChipCommand())
	rootCmd.AddCommand(commands.NewRepairCommand())
	rootCmd.AddCommand(commands.NewSupercategoriesCommand())
	rootCmd.AddCommand(commands.NewSubsetCommand())
	rootCmd.AddCommand(commands.NewAlignCommand())
	rootCmd.AddCommand(commands.NewValidateCommand())
	rootCmd.AddCommand(commands.NewCenterpointsCommand())
	rootCmd.AddCommand(commands.NewSelectCommand())
	rootCmd.AddCommand(commands.NewAttachGSDCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
