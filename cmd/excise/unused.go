package main

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/panbanda/excise/internal/output"
	"github.com/panbanda/excise/pkg/refgraph"
	"github.com/spf13/cobra"
)

var unusedCmd = &cobra.Command{
	Use:   "unused [path...]",
	Short: "List methods with no resolved callers",
	Long: `Builds the reference graph for every supported source file under the
given paths and lists the method declarations no call site resolves to.
Each directory holding a *.csproj, go.mod, pom.xml or build.gradle is a
module; calls across modules count.

Entry points, overrides, interface implementations and methods referenced
by name are never listed.`,
	RunE: runUnused,
}

func init() {
	unusedCmd.Flags().Bool("transitive", false, "Also list methods only called from unused methods")
	unusedCmd.Flags().Bool("stats", false, "Include resolution statistics")

	rootCmd.AddCommand(unusedCmd)
}

// unusedRow is the structured form of one listed method.
type unusedRow struct {
	Method string `json:"method" yaml:"method" toon:"method"`
	Kind   string `json:"kind" yaml:"kind" toon:"kind"`
	Module string `json:"module" yaml:"module" toon:"module"`
	Path   string `json:"path" yaml:"path" toon:"path"`
	Line   int    `json:"line" yaml:"line" toon:"line"`
}

type unusedResult struct {
	Unused []unusedRow     `json:"unused" yaml:"unused" toon:"unused"`
	Stats  *refgraph.Stats `json:"stats,omitempty" yaml:"stats,omitempty" toon:"stats"`
}

func runUnused(cmd *cobra.Command, args []string) error {
	transitive, _ := cmd.Flags().GetBool("transitive")
	withStats, _ := cmd.Flags().GetBool("stats")
	transitive = transitive || cfg.Analysis.Transitive

	g, err := buildGraph(cmd.Context(), cmd, getPaths(args))
	if errors.Is(err, errNoSources) {
		color.Yellow("No source files found")
		return nil
	}
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	syms := unusedSymbols(g, transitive)
	result := unusedResult{Unused: make([]unusedRow, 0, len(syms))}
	rows := make([][]string, 0, len(syms))
	for _, s := range syms {
		result.Unused = append(result.Unused, unusedRow{
			Method: s.String(),
			Kind:   s.Kind,
			Module: s.Module,
			Path:   s.Path,
			Line:   s.Line,
		})
		rows = append(rows, []string{
			fmt.Sprintf("%s:%d", displayPath(s.Path), s.Line),
			s.String(),
			s.Module,
		})
	}

	stats := g.Stats()
	sections := []output.Renderable{
		output.NewTable("", []string{"Location", "Method", "Module"}, rows, nil, result.Unused),
	}
	if withStats {
		result.Stats = &stats
		sections = append(sections, statsTable(stats))
	}

	formatter, err := newFormatter(cmd)
	if err != nil {
		return err
	}
	defer formatter.Close()

	return formatter.Output(&output.Report{
		Title: "Unused Methods",
		Summary: printer.Sprintf("%d of %d methods unused across %d files",
			len(syms), stats.Declarations, stats.Units),
		Sections: sections,
		Data:     result,
	})
}

func statsTable(s refgraph.Stats) *output.Table {
	row := func(label string, n int) []string {
		return []string{label, printer.Sprintf("%d", n)}
	}
	return output.NewTable("Resolution", []string{"Metric", "Count"}, [][]string{
		row("Files", s.Units),
		row("Declarations", s.Declarations),
		row("Pinned", s.Pinned),
		row("Call sites", s.CallSites),
		row("Resolved", s.Resolved),
		row("Unresolved", s.Unresolved),
		row("Ambiguous", s.Ambiguous),
		row("Resolver faults", s.Faults),
	}, nil, s)
}
