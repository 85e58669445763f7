package refgraph

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/panbanda/excise/internal/digest"
	"github.com/panbanda/excise/internal/fileproc"
	"github.com/panbanda/excise/pkg/parser"
)

// SourceFile names a file on disk and the module it belongs to.
type SourceFile struct {
	Path   string
	Module string
}

// ParseUnit parses source and enumerates its declarations, call sites and
// value references. The syntax tree is released before returning; the unit
// keeps only the source bytes and what was extracted from them.
func ParseUnit(ctx context.Context, psr *parser.Parser, module, path string, source []byte) (*TranslationUnit, error) {
	lang := parser.DetectLanguage(path)
	d := parser.DialectFor(lang)
	if d == nil {
		return nil, fmt.Errorf("%w: %s", parser.ErrUnsupportedLanguage, path)
	}

	result, err := psr.Parse(ctx, source, lang, path)
	if err != nil {
		return nil, err
	}
	defer result.Close()

	unit := &TranslationUnit{
		Module:      module,
		Path:        path,
		Language:    lang,
		Source:      source,
		Fingerprint: digest.Bytes(source),
	}
	unit.ValueRefs = newExtractor(unit, d).run(result.Root())
	return unit, nil
}

// LoadOptions tunes LoadUnits.
type LoadOptions struct {
	Workers     int
	MaxFileSize int64
	OnProgress  fileproc.ProgressFunc
}

// ErrFileTooLarge is returned for files above LoadOptions.MaxFileSize.
var ErrFileTooLarge = errors.New("file exceeds size limit")

// LoadUnits reads and enumerates files in parallel, one parser per worker.
// Units come back in input order. Unreadable or unparsable files are
// reported in the ProcessingErrors and skipped.
func LoadUnits(ctx context.Context, files []SourceFile, opts LoadOptions) ([]*TranslationUnit, *fileproc.ProcessingErrors) {
	modules := make(map[string]string, len(files))
	paths := make([]string, 0, len(files))
	for _, f := range files {
		if _, dup := modules[f.Path]; dup {
			continue
		}
		modules[f.Path] = f.Module
		paths = append(paths, f.Path)
	}

	popts := fileproc.Options{Workers: opts.Workers, OnProgress: opts.OnProgress}
	return fileproc.Map(ctx, paths, popts, func(psr *parser.Parser, path string) (*TranslationUnit, error) {
		if opts.MaxFileSize > 0 {
			info, err := os.Stat(path)
			if err != nil {
				return nil, err
			}
			if info.Size() > opts.MaxFileSize {
				return nil, fmt.Errorf("%w (%d bytes)", ErrFileTooLarge, info.Size())
			}
		}
		source, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read file: %w", err)
		}
		return ParseUnit(ctx, psr, modules[path], path, source)
	})
}
