package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/panbanda/excise/internal/output"
	"github.com/panbanda/excise/internal/progress"
	"github.com/panbanda/excise/internal/scanner"
	"github.com/panbanda/excise/internal/vcs"
	"github.com/panbanda/excise/pkg/patch"
	"github.com/panbanda/excise/pkg/refgraph"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// printer formats counts with digit grouping.
var printer = message.NewPrinter(language.English)

// getPaths returns paths from args, defaulting to ["."]
func getPaths(args []string) []string {
	if len(args) == 0 {
		return []string{"."}
	}
	return args
}

// getFormat returns the --format flag, falling back to the config.
func getFormat(cmd *cobra.Command) output.Format {
	format, _ := cmd.Flags().GetString("format")
	if format == "" {
		format = cfg.Output.Format
	}
	return output.ParseFormat(format)
}

// getOutputFile returns the output file path from the command.
func getOutputFile(cmd *cobra.Command) string {
	outputFile, _ := cmd.Flags().GetString("output")
	return outputFile
}

func newFormatter(cmd *cobra.Command) (*output.Formatter, error) {
	colored := cfg.Output.Color && !color.NoColor
	return output.NewFormatter(getFormat(cmd), cmd.OutOrStdout(), getOutputFile(cmd), colored)
}

func newTracker(cmd *cobra.Command, label string, total int) *progress.Tracker {
	visible := !noProgress
	if f, ok := cmd.ErrOrStderr().(*os.File); !ok || !isatty.IsTerminal(f.Fd()) {
		visible = false
	}
	return progress.NewTracker(cmd.ErrOrStderr(), label, total, visible)
}

// buildGraph scans paths, loads every source file, and builds the
// reference graph. Files that fail to load are logged and left out.
func buildGraph(ctx context.Context, cmd *cobra.Command, paths []string) (*refgraph.Graph, error) {
	scan := scanner.NewScanner(cfg)
	files, err := scan.Sources(paths)
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	if len(files) == 0 {
		return nil, errNoSources
	}

	tracker := newTracker(cmd, "Loading sources...", len(files))
	units, loadErrs := refgraph.LoadUnits(ctx, files, refgraph.LoadOptions{
		Workers:     cfg.Patch.Workers,
		MaxFileSize: cfg.Analysis.MaxFileSize,
		OnProgress:  tracker.Tick,
	})
	tracker.Finish()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if loadErrs.HasErrors() {
		for _, pe := range loadErrs.Errors {
			logger.Warn("skipping file", "path", pe.Path, "error", pe.Err)
		}
	}

	opts := []refgraph.Option{
		refgraph.WithLogger(logger),
		refgraph.WithWorkers(cfg.Patch.Workers),
		refgraph.WithConservative(cfg.Analysis.Conservative),
	}
	if cfg.Analysis.ValueReferences {
		opts = append(opts, refgraph.WithContextOptions(refgraph.WithValueReferences()))
	}
	return refgraph.NewBuilder(opts...).Build(ctx, units)
}

var errNoSources = errors.New("no source files found")

// unusedSymbols returns the graph's unused declarations, following dead
// callers transitively when asked.
func unusedSymbols(g *refgraph.Graph, transitive bool) []*refgraph.Symbol {
	if transitive {
		return g.UnusedTransitive()
	}
	return g.Unused()
}

// symbolTargets turns declarations into removal targets addressed by their
// name span, pinned to the text the graph was built from.
func symbolTargets(g *refgraph.Graph, syms []*refgraph.Symbol) []patch.Target {
	fingerprints := make(map[string]string, len(g.Units()))
	for _, u := range g.Units() {
		fingerprints[u.Path] = u.Fingerprint
	}
	targets := make([]patch.Target, 0, len(syms))
	for _, s := range syms {
		targets = append(targets, patch.Target{
			Path:        s.Path,
			Span:        patch.Span{Start: s.NameSpan.Start, End: s.NameSpan.End, Name: s.Name},
			Fingerprint: fingerprints[s.Path],
		})
	}
	return targets
}

// newApplier builds an Applier. Writing requires a clean working tree for
// each touched file unless force is set or the config allows it.
func newApplier(root string, apply, force bool) *patch.Applier {
	opts := []patch.ApplierOption{
		patch.WithApply(apply),
		patch.WithWorkers(cfg.Patch.Workers),
		patch.WithLogger(logger),
	}
	if apply && cfg.Patch.RequireClean && !force {
		wt, err := vcs.Open(root)
		switch {
		case err == nil:
			opts = append(opts, patch.WithGuard(wt.Guard()))
		case errors.Is(err, vcs.ErrNotRepository):
			logger.Debug("not under version control, skipping clean check", "path", root)
		default:
			logger.Warn("cannot read working tree status", "path", root, "error", err)
		}
	}
	return patch.NewApplier(opts...)
}

// runPlan applies targets and renders the outcome. It fails when any file
// failed, so scripts see a non-zero exit.
func runPlan(cmd *cobra.Command, title string, applier *patch.Applier, targets []patch.Target) error {
	files, _ := patch.Group(targets)
	tracker := newTracker(cmd, "Patching...", len(files))
	plan, err := applier.Apply(cmd.Context(), targets)
	tracker.Finish()
	if err != nil {
		return err
	}

	formatter, err := newFormatter(cmd)
	if err != nil {
		return err
	}
	defer formatter.Close()

	if err := formatter.Output(planReport(title, plan)); err != nil {
		return err
	}
	if plan.Failed > 0 {
		return fmt.Errorf("%d of %d files failed", plan.Failed, len(plan.Files))
	}
	return nil
}

func planReport(title string, plan *patch.Plan) *output.Report {
	var rows [][]string
	bytesSaved := 0
	for _, f := range plan.Files {
		status := "dry run"
		switch {
		case f.Err != nil:
			status = color.RedString("error: %s", f.Error)
		case f.Written:
			status = color.GreenString("written")
		case len(f.Removed) == 0:
			status = "unchanged"
		}
		bytesSaved += f.BytesSaved
		for _, r := range f.Removed {
			rows = append(rows, []string{
				fmt.Sprintf("%s:%d", displayPath(f.Path), r.Line),
				r.Name,
				r.Kind,
				status,
			})
		}
		for _, m := range f.Mismatches {
			rows = append(rows, []string{
				displayPath(f.Path),
				m.Span.Name,
				m.Kind,
				color.YellowString("skipped: unexpected node kind at span"),
			})
		}
		if len(f.Removed) == 0 && len(f.Mismatches) == 0 {
			rows = append(rows, []string{displayPath(f.Path), "", "", status})
		}
	}

	verb := "would be removed"
	if plan.Applied {
		verb = "removed"
	}
	summary := printer.Sprintf("%d methods %s from %d files (%d bytes), %d skipped, %d files failed",
		plan.Removed, verb, len(plan.Files), bytesSaved, plan.Skipped, plan.Failed)

	return &output.Report{
		Title:   title,
		Summary: summary,
		Sections: []output.Renderable{
			output.NewTable("", []string{"Location", "Method", "Kind", "Status"}, rows, nil, plan.Files),
		},
		Data: plan,
	}
}

// displayPath shortens path relative to the working directory when it is
// below it.
func displayPath(path string) string {
	wd, err := os.Getwd()
	if err != nil {
		return path
	}
	rel, err := filepath.Rel(wd, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}
