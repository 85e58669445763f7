package scanner

import (
	"bufio"
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/panbanda/excise/pkg/config"
	"github.com/panbanda/excise/pkg/parser"
	"github.com/panbanda/excise/pkg/refgraph"
)

// Scanner finds source files in a directory and assigns each to the module
// (project) that owns it.
type Scanner struct {
	config   *config.Config
	langs    []parser.Language
	matchers []gitignore.Matcher
	modules  map[string]string
}

// NewScanner creates a new file scanner.
func NewScanner(cfg *config.Config) *Scanner {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Scanner{
		config:  cfg,
		langs:   cfg.Languages(),
		modules: make(map[string]string),
	}
}

// findGitRoot finds the root of the git repository by looking for .git directory.
// Returns empty string if not in a git repository.
func findGitRoot(start string) string {
	dir := start
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadExcludePatterns loads exclusion patterns from both config and .gitignore files.
// Config patterns are parsed as gitignore patterns and combined with .gitignore files.
func (s *Scanner) loadExcludePatterns(root string) {
	var patterns []gitignore.Pattern
	for _, pattern := range s.config.Exclude.Patterns {
		patterns = append(patterns, gitignore.ParsePattern(pattern, nil))
	}

	if s.config.Exclude.Gitignore {
		if gitRoot := findGitRoot(root); gitRoot != "" {
			if gitPatterns, err := gitignore.ReadPatterns(osfs.New(gitRoot), nil); err == nil {
				// .gitignore patterns are relative to the repository root
				rel, _ := filepath.Rel(gitRoot, root)
				if rel == "." {
					patterns = append(patterns, gitPatterns...)
				} else {
					s.matchers = append(s.matchers, &prefixedMatcher{
						prefix:  splitPath(rel),
						matcher: gitignore.NewMatcher(gitPatterns),
					})
				}
			}
		}
	}

	if len(patterns) > 0 {
		s.matchers = append(s.matchers, gitignore.NewMatcher(patterns))
	}
}

// prefixedMatcher matches scan-relative paths against patterns rooted
// higher up, at the repository root.
type prefixedMatcher struct {
	prefix  []string
	matcher gitignore.Matcher
}

func (m *prefixedMatcher) Match(path []string, isDir bool) bool {
	return m.matcher.Match(append(slices.Clone(m.prefix), path...), isDir)
}

func splitPath(p string) []string {
	return strings.Split(filepath.ToSlash(p), "/")
}

func (s *Scanner) isExcluded(path string, isDir bool) bool {
	if isDir && slices.Contains(s.config.Exclude.Dirs, filepath.Base(path)) {
		return true
	}
	parts := splitPath(path)
	for _, m := range s.matchers {
		if m.Match(parts, isDir) {
			return true
		}
	}
	return false
}

func (s *Scanner) wants(path string) bool {
	lang := parser.DetectLanguage(path)
	return lang != parser.LangUnknown && slices.Contains(s.langs, lang)
}

// ScanDir recursively scans a directory for source files in the configured
// languages, skipping excluded paths and symlinks that leave the root.
func (s *Scanner) ScanDir(root string) ([]string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	absRoot, err = filepath.EvalSymlinks(absRoot)
	if err != nil {
		return nil, err
	}

	s.matchers = nil
	s.loadExcludePatterns(absRoot)

	files := make([]string, 0, 256)
	walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path == absRoot {
			return nil
		}
		relPath, _ := filepath.Rel(absRoot, path)

		if d.Type()&fs.ModeSymlink != 0 {
			resolved, err := filepath.EvalSymlinks(path)
			if err != nil || !isWithinRoot(resolved, absRoot) {
				return nil
			}
		}

		if d.IsDir() {
			if s.isExcluded(relPath, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if s.isExcluded(relPath, false) {
			return nil
		}
		if s.wants(path) {
			files = append(files, path)
		}
		return nil
	})

	return files, walkErr
}

// isWithinRoot checks if a path is contained within the root directory.
func isWithinRoot(path, root string) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	absPath = filepath.Clean(absPath)
	root = filepath.Clean(root)
	return absPath == root || strings.HasPrefix(absPath, root+string(filepath.Separator))
}

// Sources scans every path (a directory or a single file) and returns the
// files with their owning module, sorted by path with duplicates removed.
func (s *Scanner) Sources(paths []string) ([]refgraph.SourceFile, error) {
	seen := make(map[string]bool)
	var out []refgraph.SourceFile
	add := func(path string) {
		if seen[path] {
			return
		}
		seen[path] = true
		out = append(out, refgraph.SourceFile{Path: path, Module: s.Module(path)})
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			abs, err := filepath.Abs(p)
			if err != nil {
				return nil, err
			}
			if resolved, err := filepath.EvalSymlinks(abs); err == nil {
				abs = resolved
			}
			if s.wants(abs) && !s.config.ShouldExclude(abs) {
				add(abs)
			}
			continue
		}
		files, err := s.ScanDir(p)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			add(f)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Module returns the name of the module owning path: the nearest enclosing
// directory with a project manifest (*.csproj, go.mod, pom.xml,
// build.gradle). Files with no manifest above them share the empty module.
func (s *Scanner) Module(path string) string {
	dir := filepath.Dir(path)
	var visited []string
	name := ""
	for {
		if cached, ok := s.modules[dir]; ok {
			name = cached
			break
		}
		visited = append(visited, dir)
		if n, ok := manifestModule(dir); ok {
			name = n
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	for _, d := range visited {
		s.modules[d] = name
	}
	return name
}

func manifestModule(dir string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".csproj"):
			return strings.TrimSuffix(name, ".csproj"), true
		case name == "go.mod":
			if mod := goModulePath(filepath.Join(dir, name)); mod != "" {
				return mod, true
			}
			return filepath.Base(dir), true
		case name == "pom.xml", name == "build.gradle", name == "build.gradle.kts":
			return filepath.Base(dir), true
		}
	}
	return "", false
}

func goModulePath(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if rest, ok := strings.CutPrefix(line, "module "); ok {
			return strings.Trim(strings.TrimSpace(rest), `"`)
		}
	}
	return ""
}

// FilterBySize filters files that exceed the configured maximum size.
// Returns the filtered list and the count of files that were skipped.
// If maxSize is 0, returns the original list unchanged.
func FilterBySize(files []refgraph.SourceFile, maxSize int64) ([]refgraph.SourceFile, int) {
	if maxSize <= 0 {
		return files, 0
	}

	filtered := make([]refgraph.SourceFile, 0, len(files))
	skipped := 0
	for _, f := range files {
		info, err := os.Stat(f.Path)
		if err != nil || info.Size() > maxSize {
			skipped++
			continue
		}
		filtered = append(filtered, f)
	}
	return filtered, skipped
}
