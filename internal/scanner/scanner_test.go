package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/panbanda/excise/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func rel(t *testing.T, root string, files []string) []string {
	t.Helper()
	root, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	out := make([]string, 0, len(files))
	for _, f := range files {
		r, err := filepath.Rel(root, f)
		require.NoError(t, err)
		out = append(out, filepath.ToSlash(r))
	}
	return out
}

func TestNewScanner(t *testing.T) {
	s := NewScanner(nil)
	require.NotNil(t, s)
	assert.NotNil(t, s.config)

	cfg := config.DefaultConfig()
	assert.Same(t, cfg, NewScanner(cfg).config)
}

func TestScanDir(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"App/Program.cs":        "class P {}",
		"App/obj/Debug/Gen.cs":  "class G {}",
		"App/Form1.Designer.cs": "class F {}",
		"lib/src/Main.java":     "class M {}",
		"tools/main.go":         "package main",
		"tools/notes.txt":       "hello",
		"vendor/dep/dep.go":     "package dep",
		"scripts/build.py":      "print(1)",
	})

	files, err := NewScanner(nil).ScanDir(root)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"App/Program.cs",
		"lib/src/Main.java",
		"tools/main.go",
	}, rel(t, root, files))
}

func TestScanDirLanguages(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.cs":   "class A {}",
		"b.java": "class B {}",
		"c.go":   "package c",
	})

	cfg := config.DefaultConfig()
	cfg.Analysis.Languages = []string{"csharp"}
	files, err := NewScanner(cfg).ScanDir(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.cs"}, rel(t, root, files))
}

func TestScanDirGitignore(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	writeTree(t, root, map[string]string{
		".gitignore":           "Generated/\n*.tmp.cs\n",
		"src/Keep.cs":          "class K {}",
		"src/Scratch.tmp.cs":   "class S {}",
		"src/Generated/Gen.cs": "class G {}",
	})

	files, err := NewScanner(nil).ScanDir(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"src/Keep.cs"}, rel(t, root, files))

	// scanning a subdirectory still honors the repository's .gitignore
	files, err = NewScanner(nil).ScanDir(filepath.Join(root, "src"))
	require.NoError(t, err)
	assert.Equal(t, []string{"src/Keep.cs"}, rel(t, root, files))

	cfg := config.DefaultConfig()
	cfg.Exclude.Gitignore = false
	files, err = NewScanner(cfg).ScanDir(root)
	require.NoError(t, err)
	assert.Len(t, files, 3)
}

func TestScanDirSymlinkOutsideRoot(t *testing.T) {
	outside := t.TempDir()
	writeTree(t, outside, map[string]string{"Secret.cs": "class S {}"})

	root := t.TempDir()
	writeTree(t, root, map[string]string{"In.cs": "class I {}"})
	if err := os.Symlink(filepath.Join(outside, "Secret.cs"), filepath.Join(root, "Link.cs")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	files, err := NewScanner(nil).ScanDir(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"In.cs"}, rel(t, root, files))
}

func TestSourcesAndModules(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"Core/Core.csproj":      "<Project />",
		"Core/Models/User.cs":   "class U {}",
		"Web/Web.csproj":        "<Project />",
		"Web/Program.cs":        "class P {}",
		"svc/go.mod":            "module example.com/svc\n\ngo 1.22\n",
		"svc/internal/h/h.go":   "package h",
		"jvm/app/pom.xml":       "<project/>",
		"jvm/app/src/Main.java": "class M {}",
		"loose/Orphan.cs":       "class O {}",
	})

	s := NewScanner(nil)
	sources, err := s.Sources([]string{root, filepath.Join(root, "Web", "Program.cs")})
	require.NoError(t, err)

	byRel := make(map[string]string)
	var paths []string
	for _, src := range sources {
		paths = append(paths, src.Path)
		byRel[rel(t, root, []string{src.Path})[0]] = src.Module
	}
	assert.IsIncreasing(t, paths)
	assert.Equal(t, map[string]string{
		"Core/Models/User.cs":   "Core",
		"Web/Program.cs":        "Web",
		"svc/internal/h/h.go":   "example.com/svc",
		"jvm/app/src/Main.java": "app",
		"loose/Orphan.cs":       "",
	}, byRel)
}

func TestSourcesMissingPath(t *testing.T) {
	_, err := NewScanner(nil).Sources([]string{filepath.Join(t.TempDir(), "missing")})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFilterBySize(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"small.cs": "class S {}",
		"big.cs":   "class B { /* padding padding padding padding */ }",
	})

	sources, err := NewScanner(nil).Sources([]string{root})
	require.NoError(t, err)

	kept, skipped := FilterBySize(sources, 20)
	assert.Equal(t, 1, skipped)
	require.Len(t, kept, 1)
	assert.Equal(t, "small.cs", filepath.Base(kept[0].Path))

	kept, skipped = FilterBySize(sources, 0)
	assert.Zero(t, skipped)
	assert.Len(t, kept, 2)
}
