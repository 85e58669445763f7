package main

import (
	"fmt"
	"log/slog"

	"github.com/fatih/color"
	"github.com/panbanda/excise/pkg/config"
	"github.com/spf13/cobra"
)

var (
	cfgFile    string
	verbose    bool
	noProgress bool

	// set by PersistentPreRunE for every subcommand
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "excise",
	Short: "Find and remove unused methods",
	Long: `Excise finds methods nothing calls and removes them from source.

Candidates come from a cross-file, cross-module reference graph built from
the sources themselves (unused, prune) or from a ReSharper inspection report
(report). Every command is a dry run unless --apply is given.

Supports: C#, Java, Go`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := loadConfig()
		if err != nil {
			return err
		}
		cfg = loaded
		if !cfg.Output.Color {
			color.NoColor = true
		}

		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to config file (TOML, YAML, or JSON)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noProgress, "no-progress", false, "Disable progress bars")
	rootCmd.PersistentFlags().StringP("format", "f", "", "Output format: text, json, markdown, toon, yaml")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Write output to file")
}

func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return config.LoadOrDefault()
	}
	loaded, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return loaded, nil
}
