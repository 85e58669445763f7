package main

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var pruneCmd = &cobra.Command{
	Use:   "prune [path...]",
	Short: "Remove methods with no resolved callers",
	Long: `Builds the reference graph like "unused" and removes every unused
method declaration, together with its doc comment. Without --apply nothing
is written; the plan shows what would be removed.

Files with uncommitted changes are refused unless --force is given or
patch.require_clean is false. Files edited after the graph was built are
skipped.`,
	RunE: runPrune,
}

func init() {
	pruneCmd.Flags().Bool("apply", false, "Write changes to disk")
	pruneCmd.Flags().Bool("transitive", false, "Also remove methods only called from unused methods")
	pruneCmd.Flags().Bool("force", false, "Rewrite files with uncommitted changes")

	rootCmd.AddCommand(pruneCmd)
}

func runPrune(cmd *cobra.Command, args []string) error {
	apply, _ := cmd.Flags().GetBool("apply")
	transitive, _ := cmd.Flags().GetBool("transitive")
	force, _ := cmd.Flags().GetBool("force")
	transitive = transitive || cfg.Analysis.Transitive

	paths := getPaths(args)
	g, err := buildGraph(cmd.Context(), cmd, paths)
	if errors.Is(err, errNoSources) {
		color.Yellow("No source files found")
		return nil
	}
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	targets := symbolTargets(g, unusedSymbols(g, transitive))
	if len(targets) == 0 {
		color.Green("No unused methods found")
		return nil
	}

	return runPlan(cmd, "Prune", newApplier(paths[0], apply, force), targets)
}
