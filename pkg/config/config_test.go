package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/panbanda/excise/pkg/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, "UnusedMember.", cfg.Report.CategoryPrefix)
	assert.False(t, cfg.Report.SkipMalformed)
	assert.Equal(t, []string{"csharp", "java", "go"}, cfg.Analysis.Languages)
	assert.True(t, cfg.Analysis.Conservative)
	assert.True(t, cfg.Analysis.ValueReferences)
	assert.False(t, cfg.Analysis.Transitive)
	assert.Equal(t, int64(1<<20), cfg.Analysis.MaxFileSize)
	assert.Zero(t, cfg.Patch.Workers)
	assert.True(t, cfg.Patch.RequireClean)
	assert.True(t, cfg.Exclude.Gitignore)
	assert.Contains(t, cfg.Exclude.Dirs, "obj")
	assert.Equal(t, "text", cfg.Output.Format)
	assert.True(t, cfg.Output.Color)
	assert.NoError(t, cfg.Validate())
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "toml",
			file: "excise.toml",
			content: `
[report]
category_prefix = "UnusedMember.Global"

[analysis]
languages = ["csharp"]
transitive = true

[patch]
workers = 4
require_clean = false

[exclude]
dirs = ["generated"]

[output]
format = "json"
`,
		},
		{
			name: "yaml",
			file: "excise.yaml",
			content: `
report:
  category_prefix: UnusedMember.Global
analysis:
  languages: [csharp]
  transitive: true
patch:
  workers: 4
  require_clean: false
exclude:
  dirs: [generated]
output:
  format: json
`,
		},
		{
			name: "json",
			file: "excise.json",
			content: `{
  "report": {"category_prefix": "UnusedMember.Global"},
  "analysis": {"languages": ["csharp"], "transitive": true},
  "patch": {"workers": 4, "require_clean": false},
  "exclude": {"dirs": ["generated"]},
  "output": {"format": "json"}
}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tt.file, tt.content))
			require.NoError(t, err)

			assert.Equal(t, "UnusedMember.Global", cfg.Report.CategoryPrefix)
			assert.Equal(t, []string{"csharp"}, cfg.Analysis.Languages)
			assert.True(t, cfg.Analysis.Transitive)
			assert.True(t, cfg.Analysis.Conservative, "unset keys keep defaults")
			assert.Equal(t, 4, cfg.Patch.Workers)
			assert.False(t, cfg.Patch.RequireClean)
			assert.Equal(t, []string{"generated"}, cfg.Exclude.Dirs)
			assert.Equal(t, "json", cfg.Output.Format)
			assert.Equal(t, []parser.Language{parser.LangCSharp}, cfg.Languages())
		})
	}
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
		assert.Error(t, err)
	})

	t.Run("invalid toml", func(t *testing.T) {
		_, err := Load(writeConfig(t, "excise.toml", "[analysis\n"))
		assert.Error(t, err)
	})

	t.Run("unknown language", func(t *testing.T) {
		_, err := Load(writeConfig(t, "excise.toml", "[analysis]\nlanguages = [\"cobol\"]\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cobol")
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := Load(writeConfig(t, "excise.toml", "[output]\nformat = \"xml\"\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "output.format")
	})

	t.Run("negative workers", func(t *testing.T) {
		_, err := Load(writeConfig(t, "excise.toml", "[patch]\nworkers = -1\n"))
		assert.Error(t, err)
	})

	t.Run("misspelled key", func(t *testing.T) {
		_, err := Load(writeConfig(t, "excise.toml", "[analysis]\nconservativ = false\n"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidConfig)
		assert.Contains(t, err.Error(), "conservativ")
	})

	t.Run("unknown section", func(t *testing.T) {
		_, err := Load(writeConfig(t, "excise.yaml", "reports:\n  category_prefix: X\n"))
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("wrong type", func(t *testing.T) {
		_, err := Load(writeConfig(t, "excise.json", `{"output": {"color": "true"}}`))
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestSchemaAcceptsDefaults(t *testing.T) {
	var raw map[string]any
	data, err := json.Marshal(map[string]any{
		"report":   map[string]any{"category_prefix": "UnusedMember.", "skip_malformed": false},
		"analysis": map[string]any{"languages": []string{"go"}, "value_references": true, "max_file_size": 1024},
		"patch":    map[string]any{"workers": 0, "require_clean": true},
		"exclude":  map[string]any{"patterns": []string{"*.pb.go"}, "dirs": []string{}, "gitignore": true},
		"output":   map[string]any{"format": "toon", "color": false},
	})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.NoError(t, checkSchema(raw))
}

func TestFind(t *testing.T) {
	dir := t.TempDir()
	assert.Empty(t, Find(dir))

	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".excise"), 0o755))
	nested := filepath.Join(dir, ".excise", "excise.yaml")
	require.NoError(t, os.WriteFile(nested, []byte("output:\n  format: json\n"), 0o644))
	assert.Equal(t, nested, Find(dir))

	top := filepath.Join(dir, ".excise.toml")
	require.NoError(t, os.WriteFile(top, []byte(""), 0o644))
	assert.Equal(t, top, Find(dir), "the working directory wins over .excise/")
}

func TestLanguagesDefaultsToAll(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Analysis.Languages = nil
	assert.Equal(t, []parser.Language{parser.LangCSharp, parser.LangJava, parser.LangGo}, cfg.Languages())
}

func TestShouldExclude(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		path string
		want bool
	}{
		{"src/App.cs", false},
		{"obj/Debug/App.cs", true},
		{"src/obj/App.cs", true},
		{"src/Form1.Designer.cs", true},
		{"src/Views/Home.g.cs", true},
		{"api/types.pb.go", true},
		{"src/objects/App.cs", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, cfg.ShouldExclude(filepath.FromSlash(tt.path)))
		})
	}
}
