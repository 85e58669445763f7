package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/panbanda/excise/pkg/parser"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ErrInvalidConfig is returned when a config file has unknown keys or
// values of the wrong type.
var ErrInvalidConfig = errors.New("invalid config")

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "excise.schema.json"

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, err
	}
	return c.Compile(schemaURL)
})

// checkSchema validates the raw key tree of a loaded file. The tree goes
// through JSON first so every parser's value types look the same.
func checkSchema(raw map[string]any) error {
	sch, err := compileSchema()
	if err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Config holds all configuration options for excise.
type Config struct {
	// Inspection report settings
	Report ReportConfig `koanf:"report" toml:"report"`

	// Reference graph settings
	Analysis AnalysisConfig `koanf:"analysis" toml:"analysis"`

	// Rewriting settings
	Patch PatchConfig `koanf:"patch" toml:"patch"`

	// File exclusion patterns
	Exclude ExcludeConfig `koanf:"exclude" toml:"exclude"`

	// Output settings
	Output OutputConfig `koanf:"output" toml:"output"`
}

// ReportConfig controls how inspection reports are read.
type ReportConfig struct {
	// CategoryPrefix selects which issue categories are removal candidates.
	CategoryPrefix string `koanf:"category_prefix" toml:"category_prefix"`
	// SkipMalformed drops bad records instead of failing the whole report.
	SkipMalformed bool `koanf:"skip_malformed" toml:"skip_malformed"`
}

// AnalysisConfig controls reference graph construction.
type AnalysisConfig struct {
	Languages    []string `koanf:"languages" toml:"languages"`
	Conservative bool     `koanf:"conservative" toml:"conservative"`
	// ValueReferences keeps methods whose name is read as a value anywhere.
	ValueReferences bool  `koanf:"value_references" toml:"value_references"`
	Transitive      bool  `koanf:"transitive" toml:"transitive"`
	MaxFileSize     int64 `koanf:"max_file_size" toml:"max_file_size"` // bytes, 0 = unlimited
}

// PatchConfig controls file rewriting.
type PatchConfig struct {
	Workers      int  `koanf:"workers" toml:"workers"` // 0 = 2x NumCPU
	RequireClean bool `koanf:"require_clean" toml:"require_clean"`
}

// ExcludeConfig defines file exclusion patterns.
type ExcludeConfig struct {
	Patterns  []string `koanf:"patterns" toml:"patterns"`
	Dirs      []string `koanf:"dirs" toml:"dirs"`
	Gitignore bool     `koanf:"gitignore" toml:"gitignore"`
}

// OutputConfig controls output formatting.
type OutputConfig struct {
	Format string `koanf:"format" toml:"format"` // text, json, markdown, toon, yaml
	Color  bool   `koanf:"color" toml:"color"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Report: ReportConfig{
			CategoryPrefix: "UnusedMember.",
		},
		Analysis: AnalysisConfig{
			Languages:       []string{"csharp", "java", "go"},
			Conservative:    true,
			ValueReferences: true,
			MaxFileSize:     1 << 20,
		},
		Patch: PatchConfig{
			RequireClean: true,
		},
		Exclude: ExcludeConfig{
			Patterns: []string{
				"*.g.cs",
				"*.Designer.cs",
				"*.pb.go",
			},
			Dirs: []string{
				"vendor",
				"node_modules",
				".git",
				".excise",
				"bin",
				"obj",
				"build",
				"target",
			},
			Gitignore: true,
		},
		Output: OutputConfig{
			Format: "text",
			Color:  true,
		},
	}
}

// Load loads configuration from a file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	// Determine parser based on extension
	var p koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		p = toml.Parser()
	case ".yaml", ".yml":
		p = yaml.Parser()
	case ".json":
		p = kjson.Parser()
	default:
		p = toml.Parser()
	}

	if err := k.Load(file.Provider(path), p); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := checkSchema(k.Raw()); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// configNames are searched in order in each search directory.
var configNames = []string{
	"excise.toml",
	"excise.yaml",
	"excise.yml",
	"excise.json",
	".excise.toml",
	".excise.yaml",
	".excise.yml",
	".excise.json",
}

// Find returns the first config file under the standard locations rooted
// at dir, or "" when there is none.
func Find(dir string) string {
	for _, d := range []string{dir, filepath.Join(dir, ".excise")} {
		for _, name := range configNames {
			path := filepath.Join(d, name)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// LoadOrDefault loads the config found by Find in the working directory,
// or returns defaults when there is none. A config file that exists but
// cannot be loaded is an error.
func LoadOrDefault() (*Config, error) {
	path := Find(".")
	if path == "" {
		return DefaultConfig(), nil
	}
	return Load(path)
}

// Validate rejects values no command can act on.
func (c *Config) Validate() error {
	for _, name := range c.Analysis.Languages {
		if parser.ParseLanguage(name) == parser.LangUnknown {
			return fmt.Errorf("analysis.languages: unsupported language %q", name)
		}
	}
	if c.Analysis.MaxFileSize < 0 {
		return fmt.Errorf("analysis.max_file_size must not be negative (got %d)", c.Analysis.MaxFileSize)
	}
	if c.Patch.Workers < 0 {
		return fmt.Errorf("patch.workers must not be negative (got %d)", c.Patch.Workers)
	}
	switch c.Output.Format {
	case "", "text", "json", "markdown", "toon", "yaml":
	default:
		return fmt.Errorf("output.format: unknown format %q", c.Output.Format)
	}
	return nil
}

// Languages returns the configured languages. An empty list means all
// supported languages.
func (c *Config) Languages() []parser.Language {
	if len(c.Analysis.Languages) == 0 {
		return parser.Languages
	}
	langs := make([]parser.Language, 0, len(c.Analysis.Languages))
	for _, name := range c.Analysis.Languages {
		if lang := parser.ParseLanguage(name); lang != parser.LangUnknown {
			langs = append(langs, lang)
		}
	}
	return langs
}

// ShouldExclude checks if a path should be excluded from analysis.
func (c *Config) ShouldExclude(path string) bool {
	sep := string(filepath.Separator)
	for _, dir := range c.Exclude.Dirs {
		if strings.Contains(path, sep+dir+sep) || strings.HasPrefix(path, dir+sep) {
			return true
		}
	}

	base := filepath.Base(path)
	for _, pattern := range c.Exclude.Patterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}
