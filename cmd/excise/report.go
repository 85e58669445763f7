package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/panbanda/excise/pkg/issues"
	"github.com/panbanda/excise/pkg/patch"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report <report.xml>",
	Short: "Remove methods flagged in a ReSharper inspection report",
	Long: `Reads a ReSharper InspectCode XML report, keeps the issues whose
category starts with the prefix (UnusedMember. by default), and removes the
method declaration each issue points at. Issues pointing at anything other
than a method are skipped.

File paths in the report are resolved against --base, which defaults to the
report's directory. Without --apply nothing is written.

Examples:
  excise report inspect.xml
  excise report inspect.xml --base ./src --apply
  excise report inspect.xml --prefix UnusedMember.Global -f json`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

func init() {
	reportCmd.Flags().String("base", "", "Directory report paths are relative to (default: report's directory)")
	reportCmd.Flags().String("prefix", "", "Issue category prefix (default from config: UnusedMember.)")
	reportCmd.Flags().Bool("skip-malformed", false, "Skip malformed issue records instead of failing")
	reportCmd.Flags().Bool("apply", false, "Write changes to disk")
	reportCmd.Flags().Bool("force", false, "Rewrite files with uncommitted changes")

	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	reportPath := args[0]
	base, _ := cmd.Flags().GetString("base")
	prefix, _ := cmd.Flags().GetString("prefix")
	skipMalformed, _ := cmd.Flags().GetBool("skip-malformed")
	apply, _ := cmd.Flags().GetBool("apply")
	force, _ := cmd.Flags().GetBool("force")

	if base == "" {
		base = filepath.Dir(reportPath)
	}
	if prefix == "" {
		prefix = cfg.Report.CategoryPrefix
	}

	f, err := os.Open(reportPath)
	if err != nil {
		return err
	}
	defer f.Close()

	var opts []issues.Option
	if skipMalformed || cfg.Report.SkipMalformed {
		opts = append(opts, issues.WithSkipMalformed(func(e *issues.MalformedReportError) {
			logger.Warn("skipping malformed issue", "index", e.Index, "attribute", e.Attribute, "error", e)
		}))
	}
	list, err := issues.Parse(f, base, opts...)
	if err != nil {
		return fmt.Errorf("read report %s: %w", reportPath, err)
	}

	candidates := issues.Filter(list, issues.CategoryPrefix(prefix))
	logger.Debug("report loaded", "issues", len(list), "candidates", len(candidates), "prefix", prefix)
	if len(candidates) == 0 {
		color.Green("No %s issues in report", prefix)
		return nil
	}

	return runPlan(cmd, "Report", newApplier(base, apply, force), issueTargets(candidates))
}

// issueTargets addresses each issue's span, expecting the member name its
// message quotes.
func issueTargets(list []issues.Issue) []patch.Target {
	targets := make([]patch.Target, 0, len(list))
	for _, is := range list {
		targets = append(targets, patch.Target{
			Path: is.File,
			Span: patch.Span{Start: is.Start, End: is.End, Name: is.SymbolName()},
		})
	}
	return targets
}
