package patch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/panbanda/excise/internal/digest"
	"github.com/panbanda/excise/internal/fileproc"
	"github.com/panbanda/excise/pkg/parser"
)

// Target asks for the declaration enclosing Span in Path to be removed.
type Target struct {
	Path string `json:"path" toon:"path"`
	Span Span   `json:"span" toon:"span"`
	// Fingerprint, when set, is the digest of the file text Span refers to.
	// A file whose current digest differs is skipped with ErrStaleFile.
	Fingerprint string `json:"fingerprint,omitempty" toon:"fingerprint"`
}

// FileResult is the outcome for one file.
type FileResult struct {
	Path       string               `json:"path" toon:"path"`
	Removed    []Removal            `json:"removed,omitempty" toon:"removed"`
	Mismatches []*SpanMismatchError `json:"-" toon:"-"`
	Skipped    int                  `json:"skipped" toon:"skipped"`
	BytesSaved int                  `json:"bytes_saved" toon:"bytes_saved"`
	Written    bool                 `json:"written" toon:"written"`
	Err        error                `json:"-" toon:"-"`
	Error      string               `json:"error,omitempty" toon:"error"`

	// Text is the patched content, whether or not it was written.
	Text []byte `json:"-" toon:"-"`
}

// Plan is the outcome of a batch, with files sorted by path.
type Plan struct {
	Files   []FileResult `json:"files" toon:"files"`
	Removed int          `json:"removed" toon:"removed"`
	Skipped int          `json:"skipped" toon:"skipped"`
	Failed  int          `json:"failed" toon:"failed"`
	Applied bool         `json:"applied" toon:"applied"`
}

// GuardFunc vets a file before it is rewritten. A non-nil error leaves the
// file untouched and is recorded in its FileResult.
type GuardFunc func(path string) error

// Applier applies batches of targets, one file per worker.
type Applier struct {
	workers    int
	apply      bool
	guard      GuardFunc
	logger     *slog.Logger
	onProgress fileproc.ProgressFunc
}

// ApplierOption configures an Applier.
type ApplierOption func(*Applier)

// WithWorkers caps the number of files patched concurrently.
func WithWorkers(n int) ApplierOption {
	return func(a *Applier) {
		a.workers = n
	}
}

// WithApply writes patched files. Without it the Applier is a dry run.
func WithApply(apply bool) ApplierOption {
	return func(a *Applier) {
		a.apply = apply
	}
}

// WithGuard installs a check run before each file is written.
func WithGuard(g GuardFunc) ApplierOption {
	return func(a *Applier) {
		a.guard = g
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ApplierOption {
	return func(a *Applier) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithProgress is called once per file.
func WithProgress(fn func()) ApplierOption {
	return func(a *Applier) {
		a.onProgress = fn
	}
}

// NewApplier creates an Applier. The default is a dry run.
func NewApplier(opts ...ApplierOption) *Applier {
	a := &Applier{
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type fileJob struct {
	path        string
	spans       []Span
	fingerprint string
}

// Group buckets targets by cleaned absolute path, drops duplicate spans and
// orders each file's spans by descending start, so every removal happens
// before any edit shifts its offsets.
func Group(targets []Target) ([]string, map[string][]Span) {
	byFile := make(map[string][]Span)
	seen := make(map[string]map[Span]bool)
	var paths []string
	for _, t := range targets {
		p := cleanPath(t.Path)
		if _, ok := byFile[p]; !ok {
			paths = append(paths, p)
			seen[p] = make(map[Span]bool)
			byFile[p] = nil
		}
		if seen[p][t.Span] {
			continue
		}
		seen[p][t.Span] = true
		byFile[p] = append(byFile[p], t.Span)
	}
	for _, spans := range byFile {
		sort.SliceStable(spans, func(i, j int) bool {
			if spans[i].Start != spans[j].Start {
				return spans[i].Start > spans[j].Start
			}
			return spans[i].End > spans[j].End
		})
	}
	sort.Strings(paths)
	return paths, byFile
}

func cleanPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

// Apply removes every target's declaration. Files are processed in parallel;
// spans within a file strictly in descending start order. A failure in one
// file never affects another.
func (a *Applier) Apply(ctx context.Context, targets []Target) (*Plan, error) {
	paths, byFile := Group(targets)
	fingerprints := make(map[string]string)
	for _, t := range targets {
		if t.Fingerprint != "" {
			fingerprints[cleanPath(t.Path)] = t.Fingerprint
		}
	}

	jobs := make(map[string]fileJob, len(paths))
	for _, p := range paths {
		jobs[p] = fileJob{path: p, spans: byFile[p], fingerprint: fingerprints[p]}
	}

	opts := fileproc.Options{Workers: a.workers, OnProgress: a.onProgress}
	results, errs := fileproc.ForEach(ctx, paths, opts, func(path string) (FileResult, error) {
		return a.patchFile(ctx, jobs[path]), nil
	})
	if errs.HasErrors() {
		for _, pe := range errs.Errors {
			results = append(results, FileResult{Path: pe.Path, Err: pe.Err})
		}
	}

	plan := &Plan{Applied: a.apply}
	for i := range results {
		r := &results[i]
		if r.Err != nil {
			r.Error = r.Err.Error()
			plan.Failed++
		}
		plan.Removed += len(r.Removed)
		plan.Skipped += r.Skipped
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Path < results[j].Path })
	plan.Files = results

	if err := ctx.Err(); err != nil {
		return plan, fmt.Errorf("patching cancelled: %w", err)
	}
	return plan, nil
}

func (a *Applier) patchFile(ctx context.Context, job fileJob) FileResult {
	res := FileResult{Path: job.path}
	unlock := pathLocks.lock(job.path)
	defer unlock()

	lang := parser.DetectLanguage(job.path)
	if lang == parser.LangUnknown {
		res.Err = &ParseError{Path: job.path, Err: parser.ErrUnsupportedLanguage}
		return res
	}

	src, err := os.ReadFile(job.path)
	if err != nil {
		res.Err = fmt.Errorf("read %s: %w", job.path, err)
		return res
	}
	if job.fingerprint != "" && digest.Bytes(src) != job.fingerprint {
		res.Err = fmt.Errorf("%w: %s", ErrStaleFile, job.path)
		return res
	}

	p := NewPatcher(WithPath(job.path), WithPatcherLogger(a.logger))
	defer p.Close()

	text := src
	for _, span := range job.spans {
		if err := ctx.Err(); err != nil {
			res.Err = err
			return res
		}
		out, err := p.RemoveDeclarationAt(ctx, text, lang, span)
		var mismatch *SpanMismatchError
		switch {
		case err == nil:
			res.Removed = append(res.Removed, *out.Removed)
			text = out.Text
		case errors.As(err, &mismatch):
			res.Mismatches = append(res.Mismatches, mismatch)
			res.Skipped++
		default:
			// the whole file is abandoned, including removals already made
			a.logger.Error("abandoning file", "path", job.path, "error", err)
			res.Removed = nil
			res.Err = err
			return res
		}
	}

	res.Text = text
	res.BytesSaved = len(src) - len(text)
	if !a.apply || len(res.Removed) == 0 {
		return res
	}

	if a.guard != nil {
		if err := a.guard(job.path); err != nil {
			res.Err = err
			return res
		}
	}
	if err := writeFileAtomic(job.path, text); err != nil {
		res.Err = err
		return res
	}
	res.Written = true
	a.logger.Info("patched file", "path", job.path, "removed", len(res.Removed), "bytes", res.BytesSaved)
	return res
}

// writeFileAtomic replaces path with data via a temp file in the same
// directory, keeping the original permissions.
func writeFileAtomic(path string, data []byte) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".excise-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName) // no-op after a successful rename
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(info.Mode().Perm()); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
